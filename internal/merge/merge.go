// Package merge reconciles a freshly aggregated Work against the persisted
// work graph and saves it.
package merge

import (
	"context"
	"fmt"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/store"
	"github.com/franz/bibcluster/internal/util"
)

// Result is the outcome of one merge.
type Result struct {
	Work *model.Work
	// Stale are uuids of works left without editions. Their rows and index
	// documents must be deleted.
	Stale []string
	// Touched are ids of other works that lost editions to this merge but
	// still own some. Their index documents must be refreshed.
	Touched []int64
}

// Merger reuses persisted editions, identifiers and links so that saving a
// new Work updates rows in place.
type Merger struct {
	st *store.Store

	identifiers map[string]int64
	links       map[string]int64
}

// New creates a merger bound to st, usually a transaction-bound store.
func New(st *store.Store) *Merger {
	return &Merger{st: st}
}

// Merge reconciles w with storage and saves it. A save that fails is
// reported as ErrPersistenceConflict.
func (m *Merger) Merge(ctx context.Context, w *model.Work) (*Result, error) {
	m.identifiers = make(map[string]int64)
	m.links = make(map[string]int64)

	candidates, err := m.reuseEditions(ctx, w)
	if err != nil {
		return nil, err
	}

	if err := m.resolveIdentifiers(ctx, w.Identifiers); err != nil {
		return nil, err
	}
	for _, e := range w.Editions {
		if err := m.resolveIdentifiers(ctx, e.Identifiers); err != nil {
			return nil, err
		}
		if err := m.resolveLinks(ctx, e.Links); err != nil {
			return nil, err
		}
		for _, it := range e.Items {
			if err := m.resolveIdentifiers(ctx, it.Identifiers); err != nil {
				return nil, err
			}
			if err := m.resolveLinks(ctx, it.Links); err != nil {
				return nil, err
			}
		}
	}

	if err := m.st.SaveWork(ctx, w); err != nil {
		return nil, fmt.Errorf("%w: work %q: %w", util.ErrPersistenceConflict, w.Title, err)
	}

	res := &Result{Work: w}
	for workID, workUUID := range candidates {
		if workID == w.ID {
			continue
		}
		n, err := m.st.CountEditions(ctx, workID)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			res.Stale = append(res.Stale, workUUID)
		} else {
			res.Touched = append(res.Touched, workID)
		}
	}
	return res, nil
}

// reuseEditions points each new edition at the first persisted edition that
// shares one of its records. The work takes the parent of the first reused
// edition. Further matches are duplicates and are deleted. It returns the
// works that lost editions, keyed by id.
func (m *Merger) reuseEditions(ctx context.Context, w *model.Work) (map[int64]string, error) {
	candidates := make(map[int64]string)
	claimed := make(map[int64]bool)

	for _, e := range w.Editions {
		refs, err := m.st.FindEditionsByRecordUUIDs(ctx, e.DCDWUUIDs)
		if err != nil {
			return nil, err
		}

		reused := false
		for _, ref := range refs {
			if claimed[ref.ID] {
				continue
			}
			claimed[ref.ID] = true

			if !reused {
				reused = true
				e.ID, e.UUID = ref.ID, ref.UUID
				if w.ID == 0 {
					w.ID, w.UUID = ref.WorkID, ref.WorkUUID
				} else if ref.WorkID != w.ID {
					candidates[ref.WorkID] = ref.WorkUUID
				}
				continue
			}

			if err := m.st.DeleteEdition(ctx, ref.ID); err != nil {
				return nil, err
			}
			candidates[ref.WorkID] = ref.WorkUUID
		}
	}

	delete(candidates, w.ID)
	return candidates, nil
}

func (m *Merger) resolveIdentifiers(ctx context.Context, ids []model.Identifier) error {
	for i := range ids {
		key := ids[i].Key()
		id, ok := m.identifiers[key]
		if !ok {
			var err error
			id, err = m.st.FindIdentifierID(ctx, ids[i].Value, ids[i].Authority)
			if err != nil {
				return err
			}
			m.identifiers[key] = id
		}
		ids[i].ID = id
	}
	return nil
}

func (m *Merger) resolveLinks(ctx context.Context, links []model.Link) error {
	for i := range links {
		id, ok := m.links[links[i].URL]
		if !ok {
			var err error
			id, err = m.st.FindLinkID(ctx, links[i].URL)
			if err != nil {
				return err
			}
			m.links[links[i].URL] = id
		}
		links[i].ID = id
	}
	return nil
}
