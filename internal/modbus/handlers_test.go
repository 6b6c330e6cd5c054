package modbus

import (
	"errors"
	"testing"

	"github.com/roplant/wtptwin/internal/plant"
)

func wordsPDU(vs ...int) []byte {
	b := &dataBuilder{}
	b.words(vs...)
	return b.bytes()
}

func exceptionCode(t *testing.T, err error) byte {
	t.Helper()
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("expected *Exception, got %v (%T)", err, err)
	}
	return exc.Code
}

func TestReadCoils(t *testing.T) {
	st := plant.New(1)
	st.ApplyControl(plant.WellfieldOn, true)

	out, err := dispatch(0x01, wordsPDU(0, 2), st)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	// byte count 1, packed bits: bit0=wellfield_on(1), bit1=ro_feed_pump_on(0)
	if len(out) != 2 || out[0] != 1 || out[1]&0x03 != 0x01 {
		t.Fatalf("readCoils response = %v", out)
	}
}

func TestReadCoilsIllegalAddress(t *testing.T) {
	st := plant.New(1)
	_, err := dispatch(0x01, wordsPDU(5, 10), st)
	if exceptionCode(t, err) != IllegalAddress {
		t.Errorf("want IllegalAddress")
	}
}

func TestWriteSingleCoil(t *testing.T) {
	st := plant.New(1)
	out, err := dispatch(0x05, wordsPDU(0, 0xff00), st)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !st.ReadBoolControl(plant.WellfieldOn) {
		t.Error("expected WellfieldOn to be set")
	}
	if len(out) != 4 {
		t.Errorf("echo response length = %d, want 4", len(out))
	}
}

func TestWriteSingleCoilIllegalValue(t *testing.T) {
	st := plant.New(1)
	_, err := dispatch(0x05, wordsPDU(0, 0x1234), st)
	if exceptionCode(t, err) != IllegalDataValue {
		t.Errorf("want IllegalDataValue")
	}
}

func TestWriteSingleHoldingRejectsReadOnly(t *testing.T) {
	st := plant.New(1)
	// address 10 (Q_wellfield) is read-only.
	_, err := dispatch(0x06, wordsPDU(10, 5), st)
	if exceptionCode(t, err) != IllegalAddress {
		t.Errorf("want IllegalAddress writing a read-only register")
	}
}

func TestWriteSingleHoldingAppliesSetpoint(t *testing.T) {
	st := plant.New(1)
	// address 0 is NaOH_dose, scale 10: wire 55 -> 5.5 mg/L
	if _, err := dispatch(0x06, wordsPDU(0, 55), st); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := st.ReadNumControl(plant.NaOHDose); got != 5.5 {
		t.Errorf("NaOHDose = %v, want 5.5", got)
	}
}

func TestWriteMultipleHoldingsAllOrNothing(t *testing.T) {
	st := plant.New(1)
	st.ApplyNumControl(plant.QOutSP, 10)

	// addresses 2 (Q_out_sp, valid) and 3 (gap, invalid): the whole write
	// must be rejected, leaving Q_out_sp untouched (spec.md §7).
	b := &dataBuilder{}
	b.words(2, 2)
	b.byte(4)
	b.words(30, 0)

	_, err := dispatch(0x10, b.bytes(), st)
	if exceptionCode(t, err) != IllegalAddress {
		t.Fatalf("want IllegalAddress, got %v", err)
	}
	if got := st.ReadNumControl(plant.QOutSP); got != 10 {
		t.Errorf("Q_out_sp = %v, want unchanged 10 after rejected multi-write", got)
	}
}

func TestUnknownFunctionIsIllegalFunction(t *testing.T) {
	st := plant.New(1)
	_, err := dispatch(0x99, nil, st)
	if exceptionCode(t, err) != IllegalFunction {
		t.Errorf("want IllegalFunction")
	}
}

func TestReadHoldingsRoundTrip(t *testing.T) {
	st := plant.New(1)
	st.ApplyNumControl(plant.QOutSP, 42)

	out, err := dispatch(0x03, wordsPDU(2, 1), st)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(out) != 3 || out[0] != 2 {
		t.Fatalf("readHoldings response = %v", out)
	}
	got := int(out[1])<<8 | int(out[2])
	if got != 42 {
		t.Errorf("Q_out_sp wire value = %v, want 42", got)
	}
}
