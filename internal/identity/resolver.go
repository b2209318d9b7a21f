// Package identity resolves scraped registrations to their parent project.
// Registrations sharing a normalized (name, address, promoter) triple belong
// to one real-world project regardless of how many phases or renewal cycles
// the portal publishes them under.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/propdata/rera-ingest/internal/model"
	"github.com/propdata/rera-ingest/internal/normalize"
	"github.com/propdata/rera-ingest/internal/store"
)

// maxResolveAttempts bounds the read -> insert -> re-read loop. Two passes
// handle the common race (a concurrent worker inserted between our read and
// insert); the third covers that writer rolling back underneath us.
const maxResolveAttempts = 3

// Resolver maps raw scraped identity fields onto a single ParentProject row.
type Resolver struct {
	log *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{log: zap.L().With(zap.String("component", "identity"))}
}

// ResolveOrCreateParent finds or creates the parent project for the given
// raw identity fields, inside the caller's transaction. The bool result
// reports whether a new parent was created.
//
// The database unique index on the normalized triple is the final arbiter:
// when an insert loses a race it surfaces as store.ErrDuplicate and the
// resolver re-reads the winner's row. Attempts are bounded so a pathological
// store can never loop forever.
func (r *Resolver) ResolveOrCreateParent(ctx context.Context, tx store.IngestTx, name, address, promoter string) (*model.ParentProject, bool, error) {
	triple := normalize.IdentityKey(name, address, promoter)

	for attempt := 0; attempt < maxResolveAttempts; attempt++ {
		parent, err := tx.FindParentByTriple(ctx, triple)
		if err == nil {
			if err := r.refreshDisplay(ctx, tx, parent, name, address, promoter); err != nil {
				return nil, false, err
			}
			return parent, false, nil
		}
		if !eris.Is(err, store.ErrNotFound) {
			return nil, false, eris.Wrap(err, "identity: find parent")
		}

		now := time.Now().UTC()
		parent = &model.ParentProject{
			ID:                 uuid.New().String(),
			NormalizedName:     triple.Name,
			NormalizedAddress:  triple.Address,
			NormalizedPromoter: triple.Promoter,
			DisplayName:        strings.TrimSpace(name),
			DisplayAddress:     strings.TrimSpace(address),
			DisplayPromoter:    strings.TrimSpace(promoter),
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		err = tx.InsertParent(ctx, parent)
		if err == nil {
			r.log.Debug("parent project created",
				zap.String("parent_id", parent.ID),
				zap.String("name", triple.Name),
			)
			return parent, true, nil
		}
		if !eris.Is(err, store.ErrDuplicate) {
			return nil, false, eris.Wrap(err, "identity: insert parent")
		}

		// A concurrent worker inserted the same triple first. Re-read and
		// adopt their row.
		r.log.Debug("lost parent insert race, re-reading",
			zap.String("name", triple.Name),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, false, eris.Errorf("identity: parent for %q unresolved after %d attempts", triple.Name, maxResolveAttempts)
}

// refreshDisplay updates the parent's display fields when a later scrape
// publishes different raw text for the same normalized identity. Latest
// scrape wins; normalized fields never change.
func (r *Resolver) refreshDisplay(ctx context.Context, tx store.IngestTx, parent *model.ParentProject, name, address, promoter string) error {
	displayName := strings.TrimSpace(name)
	displayAddress := strings.TrimSpace(address)
	displayPromoter := strings.TrimSpace(promoter)

	if displayName == parent.DisplayName &&
		displayAddress == parent.DisplayAddress &&
		displayPromoter == parent.DisplayPromoter {
		return nil
	}

	if err := tx.RefreshParentDisplay(ctx, parent.ID, displayName, displayAddress, displayPromoter); err != nil {
		return eris.Wrap(err, "identity: refresh parent display")
	}
	parent.DisplayName = displayName
	parent.DisplayAddress = displayAddress
	parent.DisplayPromoter = displayPromoter
	return nil
}
