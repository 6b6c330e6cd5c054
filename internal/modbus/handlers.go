package modbus

import (
	"github.com/roplant/wtptwin/internal/plant"
	"github.com/roplant/wtptwin/internal/registermap"
)

// dispatch runs one decoded PDU against st and returns the response PDU
// bytes, or a Modbus exception, or a plain (protocol-level) error. Only the
// function codes spec.md §4.4 lists are implemented; anything else is
// IllegalFunction (spec.md §6, "all other FCs return exception 01").
func dispatch(fn byte, data []byte, st *plant.State) ([]byte, error) {
	switch fn {
	case 0x01:
		return readCoils(data, st)
	case 0x03:
		return readHoldings(data, st)
	case 0x05:
		return writeSingleCoil(data, st)
	case 0x06:
		return writeSingleHolding(data, st)
	case 0x0f:
		return writeMultipleCoils(data, st)
	case 0x10:
		return writeMultipleHoldings(data, st)
	default:
		return nil, illegalFunction(fn)
	}
}

func readCoils(data []byte, st *plant.State) ([]byte, error) {
	r := newReader(data)
	addr, err := r.word()
	if err != nil {
		return nil, err
	}
	count, err := r.word()
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, illegalDataValue(0x01)
	}
	if count < 1 || addr < 0 || addr+count > registermap.CoilCount {
		return nil, illegalAddress(0x01)
	}

	vals := make([]bool, count)
	for i := 0; i < count; i++ {
		entry, _ := registermap.Coil(addr + i)
		vals[i] = st.ReadBoolControl(entry.Control)
	}

	b := &dataBuilder{}
	b.bits(vals)
	return b.bytes(), nil
}

func writeSingleCoil(data []byte, st *plant.State) ([]byte, error) {
	r := newReader(data)
	addr, err := r.word()
	if err != nil {
		return nil, err
	}
	raw, err := r.word()
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, illegalDataValue(0x05)
	}
	if raw != 0x0000 && raw != 0xff00 {
		return nil, illegalDataValue(0x05)
	}
	entry, ok := registermap.Coil(addr)
	if !ok {
		return nil, illegalAddress(0x05)
	}

	st.ApplyControl(entry.Control, raw == 0xff00)

	b := &dataBuilder{}
	b.words(addr, raw)
	return b.bytes(), nil
}

func writeMultipleCoils(data []byte, st *plant.State) ([]byte, error) {
	r := newReader(data)
	addr, err := r.word()
	if err != nil {
		return nil, err
	}
	count, err := r.word()
	if err != nil {
		return nil, err
	}
	byteCount, err := r.byte()
	if err != nil {
		return nil, err
	}
	if byteCount != (count+7)/8 {
		return nil, illegalDataValue(0x0f)
	}
	vals, err := r.bits(count)
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, illegalDataValue(0x0f)
	}
	if count < 1 || addr < 0 || addr+count > registermap.CoilCount {
		return nil, illegalAddress(0x0f)
	}

	for i, v := range vals {
		entry, _ := registermap.Coil(addr + i)
		st.ApplyControl(entry.Control, v)
	}

	b := &dataBuilder{}
	b.words(addr, count)
	return b.bytes(), nil
}

func readHoldings(data []byte, st *plant.State) ([]byte, error) {
	r := newReader(data)
	addr, err := r.word()
	if err != nil {
		return nil, err
	}
	count, err := r.word()
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, illegalDataValue(0x03)
	}
	if count < 1 {
		return nil, illegalAddress(0x03)
	}

	vals := make([]int, count)
	for i := 0; i < count; i++ {
		entry, ok := registermap.Holding(addr + i)
		if !ok {
			return nil, illegalAddress(0x03)
		}
		var eng float64
		if entry.Direction == registermap.RW {
			eng = st.ReadNumControl(entry.Setpoint)
		} else {
			eng = st.ReadReading(entry.Reading)
		}
		vals[i] = registermap.EncodeHolding(eng, entry.Scale)
	}

	b := &dataBuilder{}
	b.byte(2 * count)
	b.words(vals...)
	return b.bytes(), nil
}

// writeOneHolding applies a single raw wire value to addr, rejecting writes
// to undefined or read-only addresses per the resolved Open Question in
// SPEC_FULL.md §4.4 (RO writes are IllegalAddress, not silently dropped).
func writeOneHolding(fn byte, addr, raw int, st *plant.State) error {
	entry, ok := registermap.Holding(addr)
	if !ok || entry.Direction != registermap.RW {
		return illegalAddress(fn)
	}
	if raw < 0 || raw > 0xffff {
		return illegalDataValue(fn)
	}
	st.ApplyNumControl(entry.Setpoint, registermap.DecodeHolding(raw, entry.Scale))
	return nil
}

func writeSingleHolding(data []byte, st *plant.State) ([]byte, error) {
	r := newReader(data)
	addr, err := r.word()
	if err != nil {
		return nil, err
	}
	raw, err := r.word()
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, illegalDataValue(0x06)
	}
	if err := writeOneHolding(0x06, addr, raw, st); err != nil {
		return nil, err
	}

	b := &dataBuilder{}
	b.words(addr, raw)
	return b.bytes(), nil
}

func writeMultipleHoldings(data []byte, st *plant.State) ([]byte, error) {
	r := newReader(data)
	addr, err := r.word()
	if err != nil {
		return nil, err
	}
	count, err := r.word()
	if err != nil {
		return nil, err
	}
	byteCount, err := r.byte()
	if err != nil {
		return nil, err
	}
	if byteCount != count*2 {
		return nil, illegalDataValue(0x10)
	}
	words, err := r.words(count)
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, illegalDataValue(0x10)
	}
	if count < 1 {
		return nil, illegalAddress(0x10)
	}

	// Validate every address and value before applying any of them, so a
	// rejected write never partially lands (spec.md §7: domain errors
	// cause no state change).
	entries := make([]*registermap.HoldingEntry, count)
	for i, raw := range words {
		entry, ok := registermap.Holding(addr + i)
		if !ok || entry.Direction != registermap.RW {
			return nil, illegalAddress(0x10)
		}
		if raw < 0 || raw > 0xffff {
			return nil, illegalDataValue(0x10)
		}
		entries[i] = entry
	}
	for i, raw := range words {
		st.ApplyNumControl(entries[i].Setpoint, registermap.DecodeHolding(raw, entries[i].Scale))
	}

	b := &dataBuilder{}
	b.words(addr, count)
	return b.bytes(), nil
}
