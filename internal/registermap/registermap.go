// Package registermap defines the immutable, compile-time binding between
// Modbus coil/holding-register addresses and the plant's symbolic controls
// and readings (spec.md §3.1, §4.1, §6). Lookups are O(1) array indexing —
// there is no runtime registration, because the layout never changes.
package registermap

import "github.com/roplant/wtptwin/internal/plant"

// Direction records whether a holding register is writable from the network
// (a setpoint) or read-only (a process variable / health scalar).
type Direction int

const (
	RW Direction = iota
	RO
)

// CoilCount is the number of defined coil addresses (spec.md §6.1).
const CoilCount = 10

// CoilEntry binds one coil address to a boolean control. All coils are RW.
type CoilEntry struct {
	Name    string
	Control plant.BoolControl
}

// Coils is indexed directly by Modbus coil address, 0..CoilCount-1.
var Coils = [CoilCount]CoilEntry{
	{"wellfield_on", plant.WellfieldOn},
	{"ro_feed_pump_on", plant.ROFeedPumpOn},
	{"dist_pump_on", plant.DistPumpOn},
	{"valve_101_open", plant.Valve101Open},
	{"valve_201_open", plant.Valve201Open},
	{"valve_202_open", plant.Valve202Open},
	{"valve_203_open", plant.Valve203Open},
	{"valve_401_open", plant.Valve401Open},
	{"naoh_pump_on", plant.NaOHPumpOn},
	{"cl_pump_on", plant.ClPumpOn},
}

// HoldingEntry binds one holding-register address to either a numeric
// setpoint (Direction == RW) or a reading (Direction == RO). Scale is the
// integer divisor applied to the wire value (spec.md §3.1): engineering
// value = wire value / Scale.
type HoldingEntry struct {
	Name      string
	Direction Direction
	Scale     int
	Setpoint  plant.NumControl // valid iff Direction == RW
	Reading   plant.ReadingKey // valid iff Direction == RO
}

// SetpointEntry names one of the three numeric setpoints, independent of
// its Modbus address — used by internal/publish to map JSON control keys
// from POST /sync onto plant.NumControl values.
type SetpointEntry struct {
	Name    string
	Control plant.NumControl
}

// Setpoints lists the numeric setpoints in the same symbolic-name form as
// Coils, for HTTP callers that address controls by name rather than by
// Modbus register (spec.md §4.5, POST /sync).
var Setpoints = [3]SetpointEntry{
	{"NaOH_dose", plant.NaOHDose},
	{"Cl_dose", plant.ClDose},
	{"Q_out_sp", plant.QOutSP},
}

// HoldingSpan is one past the highest defined holding-register address
// (spec.md §6.2 goes up to 36), sizing the O(1) lookup table.
const HoldingSpan = 37

// holdings is indexed directly by Modbus holding-register address.
// Addresses with no HoldingEntry (3-9 and 25-29) are left as nil and
// rejected by IllegalAddress checks in internal/modbus.
var holdings [HoldingSpan]*HoldingEntry

func setpoint(addr int, name string, scale int, c plant.NumControl) {
	holdings[addr] = &HoldingEntry{Name: name, Direction: RW, Scale: scale, Setpoint: c}
}

func reading(addr int, name string, scale int, r plant.ReadingKey) {
	holdings[addr] = &HoldingEntry{Name: name, Direction: RO, Scale: scale, Reading: r}
}

func init() {
	setpoint(0, "NaOH_dose", 10, plant.NaOHDose)
	setpoint(1, "Cl_dose", 10, plant.ClDose)
	setpoint(2, "Q_out_sp", 1, plant.QOutSP)

	reading(10, "Q_wellfield", 1, plant.QWellfield)
	reading(11, "Q_feed", 1, plant.QFeed)
	reading(12, "Q_perm", 1, plant.QPerm)
	reading(13, "Q_brine", 1, plant.QBrine)
	reading(14, "Q_out", 1, plant.QOut)
	reading(15, "level_feed_tank", 100, plant.LevelFeedTank)
	reading(16, "level_clearwell", 100, plant.LevelClearwell)
	reading(17, "pressure_well", 10, plant.PressureWell)
	reading(18, "pressure_feed", 10, plant.PressureFeed)
	reading(19, "pressure_dist", 10, plant.PressureDist)
	reading(20, "dP_ro_true", 100, plant.DPROTrue)
	reading(21, "TDS_feed", 1, plant.TDSFeed)
	reading(22, "TDS_perm", 1, plant.TDSPerm)
	reading(23, "pH_true", 100, plant.PHTrue)
	reading(24, "Cl_true", 100, plant.ClTrue)

	reading(30, "membrane_health", 10, plant.MembraneHealth)
	reading(31, "pump_well_health", 10, plant.PumpWellHealth)
	reading(32, "pump_feed_health", 10, plant.PumpFeedHealth)
	reading(33, "pump_dist_health", 10, plant.PumpDistHealth)
	reading(34, "pipe_well_health", 10, plant.PipeWellHealth)
	reading(35, "pipe_feed_health", 10, plant.PipeFeedHealth)
	reading(36, "pipe_dist_health", 10, plant.PipeDistHealth)
}

// Holding returns the entry at addr, and whether one is defined there.
// O(1): a direct slice index plus a nil check.
func Holding(addr int) (*HoldingEntry, bool) {
	if addr < 0 || addr >= HoldingSpan {
		return nil, false
	}
	e := holdings[addr]
	return e, e != nil
}

// Coil returns the entry at addr, and whether one is defined there.
func Coil(addr int) (CoilEntry, bool) {
	if addr < 0 || addr >= CoilCount {
		return CoilEntry{}, false
	}
	return Coils[addr], true
}

// EncodeHolding converts an engineering-unit reading value to its wire
// representation for a given scale: wire = round(value * scale).
func EncodeHolding(value float64, scale int) int {
	return int(value*float64(scale) + roundBias(value))
}

func roundBias(value float64) float64 {
	if value >= 0 {
		return 0.5
	}
	return -0.5
}

// DecodeHolding converts a wire value back to engineering units for a given
// scale: value = wire / scale.
func DecodeHolding(wire int, scale int) float64 {
	return float64(wire) / float64(scale)
}
