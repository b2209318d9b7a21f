// Package reconcile diffs a registration's stored child rows against the
// freshly scraped set, keyed by each collection's natural sub-key. Matched
// rows are updated in place so surrogate ids survive re-scrapes; rows
// missing from the new scrape are removed or flagged inactive per policy.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/model"
)

// Pair joins a stored row with its incoming replacement. The apply step
// copies incoming attributes onto the existing row, keeping its id.
type Pair[T any] struct {
	Existing T
	Incoming T
}

// Changes is the outcome of diffing one collection.
type Changes[T any] struct {
	Insert    []T
	Update    []Pair[T]
	Remove    []T
	Unchanged int

	// Malformed incoming rows: empty sub-keys are skipped, duplicate
	// sub-keys resolve first-wins. Both are logged, neither is fatal.
	SkippedEmptyKey int
	DuplicateKeys   int
}

// Diff compares existing rows with incoming rows by natural sub-key.
// key extracts the sub-key; same reports attribute equality for matched
// pairs. Output order follows input order, so results are deterministic
// for a given payload.
func Diff[T any](collection string, existing, incoming []T, key func(T) string, same func(a, b T) bool) Changes[T] {
	var ch Changes[T]

	byKey := make(map[string]T, len(existing))
	for _, e := range existing {
		byKey[key(e)] = e
	}

	seen := make(map[string]bool, len(incoming))
	matched := make(map[string]bool, len(existing))

	for _, in := range incoming {
		k := key(in)
		if k == "" {
			ch.SkippedEmptyKey++
			continue
		}
		if seen[k] {
			ch.DuplicateKeys++
			continue
		}
		seen[k] = true

		ex, ok := byKey[k]
		if !ok {
			ch.Insert = append(ch.Insert, in)
			continue
		}
		matched[k] = true
		if same(ex, in) {
			ch.Unchanged++
		} else {
			ch.Update = append(ch.Update, Pair[T]{Existing: ex, Incoming: in})
		}
	}

	// Preserve stored order for removals.
	for _, e := range existing {
		if !matched[key(e)] {
			ch.Remove = append(ch.Remove, e)
		}
	}

	if ch.SkippedEmptyKey > 0 || ch.DuplicateKeys > 0 {
		zap.L().Warn("reconcile: malformed child rows in payload",
			zap.String("collection", collection),
			zap.Int("empty_keys", ch.SkippedEmptyKey),
			zap.Int("duplicate_keys", ch.DuplicateKeys),
		)
	}

	return ch
}

// Summary converts the diff into provenance counts under the collection's
// removal action: removals count as Removed for delete, Flagged for flag.
func (c Changes[T]) Summary(action Action) model.CollectionDiff {
	d := model.CollectionDiff{
		Inserted:  len(c.Insert),
		Updated:   len(c.Update),
		Unchanged: c.Unchanged,
	}
	switch action {
	case ActionFlag:
		d.Flagged = len(c.Remove)
	default:
		d.Removed = len(c.Remove)
	}
	return d
}
