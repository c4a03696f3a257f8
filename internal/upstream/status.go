package upstream

import (
	"strings"

	"golang.org/x/text/cases"
)

// stateSynonyms maps the service's open vocabulary onto the closed set.
var stateSynonyms = map[string]State{
	"queued":             StateQueued,
	"waiting":            StateQueued,
	"metadl":             StateQueued,
	"checkingresumedata": StateQueued,

	"downloading":  StateDownloading,
	"fetching":     StateDownloading,
	"transferring": StateDownloading,
	"stalled":      StateDownloading,

	"processing": StateProcessing,
	"preparing":  StateProcessing,

	"ready":     StateReady,
	"complete":  StateReady,
	"completed": StateReady,
	"finished":  StateReady,
	"cached":    StateReady,
	"uploading": StateReady,
	"seeding":   StateReady,

	"error":  StateError,
	"failed": StateError,
}

// NormalizeState maps a raw status string into the closed set. Matching is
// case-insensitive and ignores a trailing parenthetical such as
// "stalled (no seeds)". The boolean is false for unknown strings.
func NormalizeState(raw string) (State, bool) {
	s := strings.TrimSpace(cases.Fold().String(raw))
	if i := strings.IndexByte(s, '('); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	st, ok := stateSynonyms[s]
	return st, ok
}
