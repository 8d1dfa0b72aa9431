package cluster

import (
	"context"
	"fmt"

	"github.com/franz/bibcluster/internal/util"
)

// CleanupResult summarizes an agent cleanup pass.
type CleanupResult struct {
	Scanned int
	Changed int
	Indexed int
}

// CleanupAgents walks every persisted work, merges near-duplicate authors
// and contributors under the cleanup threshold and re-projects the works it
// changed. With dryRun set nothing is written.
func (o *Orchestrator) CleanupAgents(ctx context.Context, dryRun bool) (*CleanupResult, error) {
	res := &CleanupResult{}
	var afterID int64
	b := newBatch()
	flush := &Result{}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ids, err := o.store.ListWorkIDs(ctx, afterID, o.batchSize)
		if err != nil {
			return res, err
		}
		if len(ids) == 0 {
			break
		}
		afterID = ids[len(ids)-1]

		works, err := o.store.GetWorks(ctx, ids)
		if err != nil {
			return res, err
		}
		for _, w := range works {
			res.Scanned++
			before := len(w.Authors) + len(w.Contributors)
			if !o.aggregator.CleanupAgents(w) {
				continue
			}
			res.Changed++
			_ = o.logger.LogCleanup(w.UUID, before, len(w.Authors)+len(w.Contributors))
			if dryRun {
				continue
			}
			if err := o.store.UpdateWorkAgents(ctx, w.ID, w.Authors, w.Contributors); err != nil {
				return res, err
			}
			b.add(w.ID)
		}

		if !dryRun {
			if err := o.flush(ctx, b, flush); err != nil {
				return res, fmt.Errorf("failed to re-index cleaned works: %w", err)
			}
		}
	}

	res.Indexed = flush.WorksIndexed
	if n := flush.Failures[util.KindIndexUnavailable]; n > 0 {
		return res, fmt.Errorf("%w: %d updates failed during cleanup", util.ErrIndexUnavailable, n)
	}
	return res, nil
}
