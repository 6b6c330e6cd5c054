package plant

import "math"

// Physical constants normative per spec.md §4.3. None of these are
// configurable — they describe the plant being simulated, not the twin's
// runtime.
const (
	roRecovery = 0.75

	areaFeedTank  = 10.0 // m^2
	areaClearwell = 40.0 // m^2

	alphaFlow     = 0.1
	alphaPressure = 0.5

	tdsFeedBase      = 1250.0
	tdsFeedAmplitude = 50.0
	tdsFeedPeriodS   = 24 * 3600.0

	distPumpCapacity = 120.0
)

// Tick advances the plant by dt seconds using the fixed-step model in
// spec.md §4.3. It holds the state lock for the whole step — the
// integration is pure computation, so the critical section stays short
// (spec.md §5).
func (s *State) Tick(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.phy
	c := s.boolControls
	n := s.numControls

	suctionOK := p.levelFeedTank > 0.2
	eta := p.pumpFeedHealth / 100

	// --- 4.3.1 target computation ---

	var targetQWell, targetPWell float64
	switch {
	case c[WellfieldOn] && c[Valve101Open]:
		targetQWell, targetPWell = 110, 3.0
	case c[WellfieldOn] && !c[Valve101Open]:
		targetQWell, targetPWell = 0, 12.0
	default:
		targetQWell, targetPWell = 0, 0
	}

	var targetQFeed, targetPFeed float64
	roFeedOn := c[ROFeedPumpOn] && suctionOK
	switch {
	case roFeedOn && c[Valve201Open] && c[Valve202Open] && c[Valve203Open]:
		targetQFeed, targetPFeed = 100*eta, 12.0
	case roFeedOn && c[Valve201Open] && !(c[Valve202Open] && c[Valve203Open]):
		targetQFeed, targetPFeed = 0, 30.0
	case roFeedOn && !c[Valve201Open]:
		targetQFeed, targetPFeed = 0, 33.0
	default:
		targetQFeed, targetPFeed = 0, 0
	}

	var targetQDist, targetPDist float64
	distReady := c[DistPumpOn] && p.levelClearwell > 0.1
	switch {
	case distReady && c[Valve401Open]:
		targetQDist = math.Min(n[QOutSP], distPumpCapacity)
		targetPDist = 4.0
	case distReady && !c[Valve401Open]:
		targetQDist, targetPDist = 0, 15.0
	default:
		targetQDist, targetPDist = 0, 0
	}

	// --- 4.3.2 inertia (first-order ramp) ---

	p.qWellfield = finite(p.qWellfield+(targetQWell-p.qWellfield)*alphaFlow, p.qWellfield)
	p.qFeed = finite(p.qFeed+(targetQFeed-p.qFeed)*alphaFlow, p.qFeed)
	p.qOut = finite(p.qOut+(targetQDist-p.qOut)*alphaFlow, p.qOut)

	p.pressureWell = finite(p.pressureWell+(targetPWell-p.pressureWell)*alphaPressure, p.pressureWell)
	p.pressureFeed = finite(p.pressureFeed+(targetPFeed-p.pressureFeed)*alphaPressure, p.pressureFeed)
	p.pressureDist = finite(p.pressureDist+(targetPDist-p.pressureDist)*alphaPressure, p.pressureDist)

	p.qWellfield = math.Max(0, p.qWellfield)
	p.qFeed = math.Max(0, p.qFeed)
	p.qOut = math.Max(0, p.qOut)
	p.pressureWell = math.Max(0, p.pressureWell)
	p.pressureFeed = math.Max(0, p.pressureFeed)
	p.pressureDist = math.Max(0, p.pressureDist)

	// --- 4.3.3 damage accrual ---

	debit := func(health *float64, rate float64) {
		*health = math.Max(0, *health-rate*dt)
	}

	if c[WellfieldOn] && !c[Valve101Open] {
		debit(&p.pumpWellHealth, 0.3)
	}
	if c[ROFeedPumpOn] && !suctionOK {
		debit(&p.pumpFeedHealth, 0.5)
	}
	if c[DistPumpOn] && p.levelClearwell < 0.2 {
		debit(&p.pumpDistHealth, 0.5)
	}
	if c[DistPumpOn] && !c[Valve401Open] {
		debit(&p.pumpDistHealth, 0.3)
	}
	if p.pressureWell > 10 {
		debit(&p.pipeWellHealth, 0.2)
	}
	if p.pressureFeed > 20 {
		debit(&p.pipeFeedHealth, 0.5)
	}
	if p.pressureDist > 12 {
		debit(&p.pipeDistHealth, 0.3)
	}
	if p.clTrue > 0.1 && p.qFeed > 0 {
		debit(&p.membraneHealth, 0.2)
	}
	if p.pressureFeed > 20 {
		debit(&p.membraneHealth, 1.0)
	}

	// --- 4.3.4 chemistry ---

	var currentCl float64
	switch {
	case c[ClPumpOn] && p.qFeed > 5:
		currentCl = 0.9 * n[ClDose]
	case c[ClPumpOn] && p.qFeed <= 5 && n[ClDose] > 0:
		currentCl = 50.0
	default:
		currentCl = 0
	}
	p.clTrue = finite(p.clTrue+0.1*(currentCl-p.clTrue), p.clTrue)

	if c[NaOHPumpOn] {
		p.phTrue = 7.0 + 0.15*n[NaOHDose]
	} else {
		p.phTrue = 7.0
	}

	s.elapsedS += dt
	theta := 2 * math.Pi * s.elapsedS / tdsFeedPeriodS
	p.tdsFeed = tdsFeedBase + tdsFeedAmplitude*math.Sin(theta)

	rejection := 0.98 * (p.membraneHealth / 100)
	p.tdsPerm = finite(p.tdsFeed*(1-rejection), p.tdsPerm)

	if p.qFeed > 1 {
		collapse := 1.0
		if p.membraneHealth < 30 {
			collapse = 0.2
		}
		p.dpROTrue = (0.5 + (p.qFeed/100)*1.5) * collapse
	} else {
		p.dpROTrue = 0
	}

	// --- 4.3.5 mass balance ---

	p.levelFeedTank = finite(p.levelFeedTank+(p.qWellfield-p.qFeed)*dt/3600/areaFeedTank, p.levelFeedTank)
	p.levelFeedTank = clamp(p.levelFeedTank, 0, 5)

	qPerm := p.qFeed * roRecovery
	p.levelClearwell = finite(p.levelClearwell+(qPerm-p.qOut)*dt/3600/areaClearwell, p.levelClearwell)
	p.levelClearwell = clamp(p.levelClearwell, 0, 6)

	s.republishLocked()
}
