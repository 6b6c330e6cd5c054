package plant

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
)

// physics holds the integrated ("true") quantities from spec.md §3.1. These
// are never jittered; jitter is applied only when producing a published
// Snapshot, so it can never feed back into the integrator (spec.md §4.3.6).
type physics struct {
	qWellfield, qFeed, qOut       float64
	pressureWell, pressureFeed    float64
	pressureDist                  float64
	levelFeedTank, levelClearwell float64
	tdsFeed, tdsPerm              float64
	phTrue, clTrue                float64
	dpROTrue                      float64

	membraneHealth  float64
	pumpWellHealth  float64
	pumpFeedHealth  float64
	pumpDistHealth  float64
	pipeWellHealth  float64
	pipeFeedHealth  float64
	pipeDistHealth  float64
}

// State is the single owned record described in spec.md §4.2. All access
// from Modbus and HTTP handlers, and from the tick driver, goes through the
// exported methods below; the mutex discipline follows spec.md §5.
type State struct {
	mu sync.RWMutex

	boolControls [numBoolControls]bool
	numControls  [numNumControls]float64

	phy physics

	// elapsedS is wall-clock-independent simulation time, advanced by dt on
	// every tick. It drives the slow TDS_feed sinusoid (spec.md §4.3.4).
	elapsedS float64

	// published is recomputed once per tick from phy plus sensor jitter
	// (spec.md §4.3.6); Modbus and HTTP reads always see this, never phy
	// directly, so a read never observes an intermediate integration step.
	published [numReadings]float64

	rng *rand.Rand
}

// New creates a State at the default, safe-initial condition described in
// spec.md §3.3: valves open, pumps off, mid-range tank levels, baseline
// chemistry, full health.
func New(seed int64) *State {
	s := &State{
		rng: rand.New(rand.NewSource(seed)),
	}
	s.boolControls[Valve101Open] = true
	s.boolControls[Valve201Open] = true
	s.boolControls[Valve202Open] = true
	s.boolControls[Valve203Open] = true
	s.boolControls[Valve401Open] = true

	s.phy.levelFeedTank = 2.5
	s.phy.levelClearwell = 3.0
	s.phy.tdsFeed = 1250
	s.phy.phTrue = 7.2
	s.phy.membraneHealth = 100
	s.phy.pumpWellHealth = 100
	s.phy.pumpFeedHealth = 100
	s.phy.pumpDistHealth = 100
	s.phy.pipeWellHealth = 100
	s.phy.pipeFeedHealth = 100
	s.phy.pipeDistHealth = 100

	s.republish()
	return s
}

// ApplyControl validates, clamps, and stores a boolean control write. It is
// the only mutation path for coil-backed controls (spec.md §4.2).
func (s *State) ApplyControl(c BoolControl, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boolControls[c] = value
}

// ApplyNumControl validates, clamps to the declared engineering range, and
// stores a numeric setpoint write.
func (s *State) ApplyNumControl(c NumControl, value float64) {
	lo, hi := c.numRange()
	if value < lo {
		value = lo
	}
	if value > hi {
		value = hi
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numControls[c] = value
}

// ReadBoolControl returns the current value of a boolean control.
func (s *State) ReadBoolControl(c BoolControl) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boolControls[c]
}

// ReadNumControl returns the current value of a numeric setpoint.
func (s *State) ReadNumControl(c NumControl) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numControls[c]
}

// ReadReading returns the current published value of a process variable or
// health scalar.
func (s *State) ReadReading(r ReadingKey) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published[r]
}

// ResetDamage restores all seven health variables to exactly 100.0 and
// leaves everything else untouched (spec.md §4.5, S6). It is idempotent:
// calling it twice in a row leaves the same state as calling it once.
func (s *State) ResetDamage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phy.membraneHealth = 100
	s.phy.pumpWellHealth = 100
	s.phy.pumpFeedHealth = 100
	s.phy.pumpDistHealth = 100
	s.phy.pipeWellHealth = 100
	s.phy.pipeFeedHealth = 100
	s.phy.pipeDistHealth = 100
	// Only the health readings are republished: re-drawing sensor jitter
	// here would change every other published value as well.
	for r := MembraneHealth; r <= PipeDistHealth; r++ {
		s.published[r] = 100
	}
}

// finite guards against the tick ever writing NaN/Inf into integrated state
// (spec.md §4.3.7): a non-finite candidate is rejected, a warning is logged,
// and the previous value is kept.
func finite(candidate, previous float64) float64 {
	if math.IsNaN(candidate) || math.IsInf(candidate, 0) {
		slog.Warn("plant: non-finite value rejected, keeping previous", "candidate", candidate, "previous", previous)
		return previous
	}
	return candidate
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *State) republish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.republishLocked()
}

// republishLocked recomputes s.published from s.phy, applying sensor jitter
// per spec.md §4.3.6. Caller must hold s.mu for writing.
func (s *State) republishLocked() {
	j := func(v, spread float64) float64 {
		if spread == 0 {
			return v
		}
		return v + (s.rng.Float64()*2-1)*spread
	}
	snap := func(v float64) float64 {
		if math.Abs(v) < 1 {
			return 0
		}
		return v
	}

	s.published[QWellfield] = snap(j(s.phy.qWellfield, 1))
	s.published[QFeed] = snap(j(s.phy.qFeed, 1))
	// Q_perm and Q_brine are split from the published Q_feed rather than
	// jittered separately, so the published flows balance exactly.
	perm := s.published[QFeed] * roRecovery
	s.published[QPerm] = perm
	s.published[QBrine] = s.published[QFeed] - perm
	s.published[QOut] = snap(j(s.phy.qOut, 1))
	s.published[LevelFeedTank] = s.phy.levelFeedTank
	s.published[LevelClearwell] = s.phy.levelClearwell
	s.published[PressureWell] = j(s.phy.pressureWell, 0.1)
	s.published[PressureFeed] = j(s.phy.pressureFeed, 0.1)
	s.published[PressureDist] = j(s.phy.pressureDist, 0.1)
	s.published[DPROTrue] = j(s.phy.dpROTrue, 0.02)
	s.published[TDSFeed] = s.phy.tdsFeed
	s.published[TDSPerm] = s.phy.tdsPerm
	s.published[PHTrue] = j(s.phy.phTrue, 0.05)
	s.published[ClTrue] = j(s.phy.clTrue, 0.01)

	s.published[MembraneHealth] = s.phy.membraneHealth
	s.published[PumpWellHealth] = s.phy.pumpWellHealth
	s.published[PumpFeedHealth] = s.phy.pumpFeedHealth
	s.published[PumpDistHealth] = s.phy.pumpDistHealth
	s.published[PipeWellHealth] = s.phy.pipeWellHealth
	s.published[PipeFeedHealth] = s.phy.pipeFeedHealth
	s.published[PipeDistHealth] = s.phy.pipeDistHealth
}

// ControlsView is the JSON-facing view of Controls, mirroring spec.md §3.1.
type ControlsView struct {
	WellfieldOn   bool `json:"wellfield_on"`
	ROFeedPumpOn  bool `json:"ro_feed_pump_on"`
	DistPumpOn    bool `json:"dist_pump_on"`
	Valve101Open  bool `json:"valve_101_open"`
	Valve201Open  bool `json:"valve_201_open"`
	Valve202Open  bool `json:"valve_202_open"`
	Valve203Open  bool `json:"valve_203_open"`
	Valve401Open  bool `json:"valve_401_open"`
	NaOHPumpOn    bool `json:"naoh_pump_on"`
	ClPumpOn      bool `json:"cl_pump_on"`

	NaOHDose float64 `json:"NaOH_dose"`
	ClDose   float64 `json:"Cl_dose"`
	QOutSP   float64 `json:"Q_out_sp"`
}

// StateView is the JSON-facing view of the physics/health state.
type StateView struct {
	QWellfield float64 `json:"Q_wellfield"`
	QFeed      float64 `json:"Q_feed"`
	QPerm      float64 `json:"Q_perm"`
	QBrine     float64 `json:"Q_brine"`
	QOut       float64 `json:"Q_out"`

	LevelFeedTank  float64 `json:"level_feed_tank"`
	LevelClearwell float64 `json:"level_clearwell"`

	PressureWell float64 `json:"pressure_well"`
	PressureFeed float64 `json:"pressure_feed"`
	PressureDist float64 `json:"pressure_dist"`
	DPROTrue     float64 `json:"dP_ro_true"`

	TDSFeed float64 `json:"TDS_feed"`
	TDSPerm float64 `json:"TDS_perm"`
	PHTrue  float64 `json:"pH_true"`
	ClTrue  float64 `json:"Cl_true"`

	MembraneHealth float64 `json:"membrane_health"`
	PumpWellHealth float64 `json:"pump_well_health"`
	PumpFeedHealth float64 `json:"pump_feed_health"`
	PumpDistHealth float64 `json:"pump_dist_health"`
	PipeWellHealth float64 `json:"pipe_well_health"`
	PipeFeedHealth float64 `json:"pipe_feed_health"`
	PipeDistHealth float64 `json:"pipe_dist_health"`
}

// Snapshot is the consistent, self-contained copy of Controls+State that
// Modbus reads and HTTP handlers serialize after releasing the state lock,
// per spec.md §4.2/§5.
type Snapshot struct {
	TimeS    float64      `json:"time_s"`
	State    StateView    `json:"state"`
	Controls ControlsView `json:"controls"`
}

// Snapshot returns a consistent copy of controls, state, and derived PVs for
// publication (spec.md §4.2).
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		TimeS: s.elapsedS,
		Controls: ControlsView{
			WellfieldOn:  s.boolControls[WellfieldOn],
			ROFeedPumpOn: s.boolControls[ROFeedPumpOn],
			DistPumpOn:   s.boolControls[DistPumpOn],
			Valve101Open: s.boolControls[Valve101Open],
			Valve201Open: s.boolControls[Valve201Open],
			Valve202Open: s.boolControls[Valve202Open],
			Valve203Open: s.boolControls[Valve203Open],
			Valve401Open: s.boolControls[Valve401Open],
			NaOHPumpOn:   s.boolControls[NaOHPumpOn],
			ClPumpOn:     s.boolControls[ClPumpOn],
			NaOHDose:     s.numControls[NaOHDose],
			ClDose:       s.numControls[ClDose],
			QOutSP:       s.numControls[QOutSP],
		},
		State: StateView{
			QWellfield:     s.published[QWellfield],
			QFeed:          s.published[QFeed],
			QPerm:          s.published[QPerm],
			QBrine:         s.published[QBrine],
			QOut:           s.published[QOut],
			LevelFeedTank:  s.published[LevelFeedTank],
			LevelClearwell: s.published[LevelClearwell],
			PressureWell:   s.published[PressureWell],
			PressureFeed:   s.published[PressureFeed],
			PressureDist:   s.published[PressureDist],
			DPROTrue:       s.published[DPROTrue],
			TDSFeed:        s.published[TDSFeed],
			TDSPerm:        s.published[TDSPerm],
			PHTrue:         s.published[PHTrue],
			ClTrue:         s.published[ClTrue],
			MembraneHealth: s.published[MembraneHealth],
			PumpWellHealth: s.published[PumpWellHealth],
			PumpFeedHealth: s.published[PumpFeedHealth],
			PumpDistHealth: s.published[PumpDistHealth],
			PipeWellHealth: s.published[PipeWellHealth],
			PipeFeedHealth: s.published[PipeFeedHealth],
			PipeDistHealth: s.published[PipeDistHealth],
		},
	}
}

// String supports easy debugging/logging of a State's current published
// snapshot without dumping the raw struct.
func (s *State) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf("plant.State{t=%.1fs level_feed=%.2f level_clear=%.2f membrane=%.1f%%}",
		snap.TimeS, snap.State.LevelFeedTank, snap.State.LevelClearwell, snap.State.MembraneHealth)
}
