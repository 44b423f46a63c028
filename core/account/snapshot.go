package account

import (
	"log/slog"

	"github.com/codewandler/bankes/core/es"
)

// Snapshot is the account state as of a committed Version. It only shortens
// replay; the event stream stays authoritative.
type Snapshot struct {
	State   State      `json:"State"`
	Version es.Version `json:"Version"`
}

// ReplayStart is the first event position to read after applying snapshot.
func ReplayStart(snapshot *Snapshot) es.Version {
	if snapshot == nil {
		return 0
	}
	return snapshot.Version + 1
}

// ShouldSnapshot reports whether committing revision completes a full
// snapshot interval. Revisions are 0-indexed, so with interval 5 snapshots
// are taken at revisions 4, 9, 14, ...
func ShouldSnapshot(revision es.Version, interval int) bool {
	if interval <= 0 || !revision.Exists() {
		return false
	}
	return (int64(revision)+1)%int64(interval) == 0
}

func (s *Snapshot) logAttrs() slog.Attr {
	return slog.Group(
		"snapshot",
		s.Version.SlogAttr(),
		slog.String("balance", s.State.Balance.String()),
	)
}
