package modbus

import "fmt"

// Exception codes from the Modbus application protocol, as used in
// spec.md §4.4/§7. Adapted from the teacher's *Error type
// (rolfl-modbus/errors.go), trimmed to the three codes this slave ever
// returns.
const (
	IllegalFunction  byte = 1
	IllegalAddress   byte = 2
	IllegalDataValue byte = 3
)

// Exception is a Modbus exception response: it carries the function code
// that failed (as requested; the server sets the high bit when it writes
// the response) and one of the codes above.
type Exception struct {
	Function byte
	Code     byte
}

func (e *Exception) Error() string {
	switch e.Code {
	case IllegalFunction:
		return fmt.Sprintf("function 0x%02x: illegal function", e.Function)
	case IllegalAddress:
		return fmt.Sprintf("function 0x%02x: illegal data address", e.Function)
	case IllegalDataValue:
		return fmt.Sprintf("function 0x%02x: illegal data value", e.Function)
	default:
		return fmt.Sprintf("function 0x%02x: exception 0x%02x", e.Function, e.Code)
	}
}

func illegalFunction(fn byte) *Exception  { return &Exception{fn, IllegalFunction} }
func illegalAddress(fn byte) *Exception   { return &Exception{fn, IllegalAddress} }
func illegalDataValue(fn byte) *Exception { return &Exception{fn, IllegalDataValue} }
