package feed

import (
	"go.uber.org/zap"
)

// Classification is the outcome of checking a record against the ledger.
type Classification int

const (
	// Novel means the record has not been seen this session; its keys are
	// now registered.
	Novel Classification = iota
	// Duplicate means one of the record's identity keys was already
	// registered.
	Duplicate
)

func (c Classification) String() string {
	if c == Duplicate {
		return "duplicate"
	}
	return "novel"
}

// Ledger tracks the identities collected during one session. The canonical
// key is the stable id embedded in the permalink path; the thumbnail URL is
// a secondary key consulted only when no id is extractable. State lives for
// the process only and is never persisted: a fresh session deliberately
// starts empty.
type Ledger struct {
	logger     *zap.Logger
	seenIDs    map[string]struct{}
	seenThumbs map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{
		logger:     logger.Named("ledger"),
		seenIDs:    make(map[string]struct{}),
		seenThumbs: make(map[string]struct{}),
	}
}

// CanonicalID extracts the stable item id from a permalink, or "" when the
// URL carries none.
func CanonicalID(permalink string) string {
	m := permalinkIDPattern.FindStringSubmatch(permalink)
	if m == nil {
		return ""
	}
	return m[1]
}

// Classify decides whether rec is new this session. liveURL is the page's
// navigation URL at extraction time, consulted as a secondary id source when
// the record's own permalink yields none. On Novel the record's keys are
// registered as a side effect.
//
// Id precedence is absolute: when an id is obtainable the thumbnail set is
// not consulted at all. A record with neither id nor thumbnail cannot be
// proven duplicate and is admitted as novel; that gap is accepted behavior.
func (l *Ledger) Classify(rec Record, liveURL string) Classification {
	id := CanonicalID(rec.Permalink)
	if id == "" {
		id = CanonicalID(liveURL)
	}

	if id != "" {
		if _, seen := l.seenIDs[id]; seen {
			return Duplicate
		}
		l.seenIDs[id] = struct{}{}
		if rec.Thumbnail != "" {
			l.seenThumbs[rec.Thumbnail] = struct{}{}
		}
		return Novel
	}

	if rec.Thumbnail != "" {
		if _, seen := l.seenThumbs[rec.Thumbnail]; seen {
			return Duplicate
		}
		l.seenThumbs[rec.Thumbnail] = struct{}{}
		return Novel
	}

	l.logger.Debug("record carries no identity keys, admitting as novel")
	return Novel
}

// Size reports how many canonical ids have been registered.
func (l *Ledger) Size() int { return len(l.seenIDs) }
