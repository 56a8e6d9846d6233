// Package planfile reads the reconciliation plans that cmd/csync and
// cmd/csyncd consume: a JSON description of which direction to propagate
// in and the already-reconciled entries (instructions already assigned)
// for that direction's destination tree. Producing this plan -- walking
// both replicas and deciding NEW/SYNC/REMOVE/RENAME/CONFLICT/IGNORE per
// entry -- is the reconciler, explicitly out of scope (spec.md §1); this
// package only loads what one already produced.
package planfile

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/nicolagi/csync/propagator"
)

// Plan is the on-disk shape of a reconciliation plan: the direction to
// propagate in, and the destination tree's reconciled entries.
type Plan struct {
	// Direction is "push" (LOCAL -> REMOTE) or "pull" (REMOTE -> LOCAL).
	Direction string `json:"direction"`
	// Entries is the destination tree's reconciled FileStat list: the set
	// walked by propagator.PropagateFiles for this direction.
	Entries []*propagator.FileStat `json:"entries"`
}

// Load reads and parses a Plan from path.
func Load(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "planfile.Load %q", path)
	}
	var p Plan
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, errors.Wrapf(err, "planfile.Load %q", path)
	}
	return &p, nil
}

// ParseDirection translates the plan's Direction string to a
// propagator.Direction.
func (p *Plan) ParseDirection() (propagator.Direction, error) {
	switch p.Direction {
	case "push":
		return propagator.LocalToRemote, nil
	case "pull":
		return propagator.RemoteToLocal, nil
	default:
		return 0, errors.Errorf("planfile: unknown direction %q, want %q or %q", p.Direction, "push", "pull")
	}
}
