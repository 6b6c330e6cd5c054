package publish

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/roplant/wtptwin/internal/plant"
	"github.com/roplant/wtptwin/internal/registermap"
)

// syncRequest is the wire shape of POST /sync (spec.md §6.3): a partial
// controls object keyed by the same symbolic names the coil/holding-register
// map uses.
type syncRequest struct {
	Controls map[string]json.RawMessage `json:"controls"`
}

var boolControls = func() map[string]plant.BoolControl {
	m := make(map[string]plant.BoolControl, registermap.CoilCount)
	for _, c := range registermap.Coils {
		m[c.Name] = c.Control
	}
	return m
}()

var numControls = func() map[string]registermap.SetpointEntry {
	m := make(map[string]registermap.SetpointEntry, len(registermap.Setpoints))
	for _, sp := range registermap.Setpoints {
		m[sp.Name] = sp
	}
	return m
}()

// boolWrite and numWrite are decoded, validated pending writes: nothing in
// s.State is touched until every key in the request has decoded cleanly.

type boolWrite struct {
	control plant.BoolControl
	value   bool
}

type numWrite struct {
	control plant.NumControl
	value   float64
}

// handleSync applies every provided control by name and returns the
// resulting snapshot (spec.md §4.5, S5). Unknown keys are ignored rather
// than rejected, so a dashboard built against a newer register map than
// this server still degrades gracefully instead of failing the whole
// request over one unrecognized field. Every key is decoded and validated
// before any of them is applied, so a bad value later in the body cannot
// leave an earlier one already mutated on s.State — the same all-or-nothing
// shape as the Modbus FC 16 handler (internal/modbus/handlers.go,
// writeMultipleHoldings), for the same "domain errors cause no state
// change" reason (spec.md §7).
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var boolWrites []boolWrite
	var numWrites []numWrite
	for key, raw := range req.Controls {
		if c, ok := boolControls[key]; ok {
			var v bool
			if err := json.Unmarshal(raw, &v); err != nil {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s: expected boolean", key))
				return
			}
			boolWrites = append(boolWrites, boolWrite{c, v})
			continue
		}
		if sp, ok := numControls[key]; ok {
			var v float64
			if err := json.Unmarshal(raw, &v); err != nil {
				writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s: expected number", key))
				return
			}
			numWrites = append(numWrites, numWrite{sp.Control, v})
			continue
		}
		// unknown key: ignored, not rejected (see doc comment above).
	}

	for _, bw := range boolWrites {
		s.State.ApplyControl(bw.control, bw.value)
	}
	for _, nw := range numWrites {
		s.State.ApplyNumControl(nw.control, nw.value)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.State.Snapshot())
}

func (s *Server) handleResetDamage(w http.ResponseWriter, r *http.Request) {
	s.State.ResetDamage()
	w.WriteHeader(http.StatusNoContent)
}
