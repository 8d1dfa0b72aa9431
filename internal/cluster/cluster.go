// Package cluster drives clustering runs: it selects pending records, folds
// each one into a Work and keeps the search index in step.
package cluster

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/franz/bibcluster/internal/aggregate"
	"github.com/franz/bibcluster/internal/config"
	"github.com/franz/bibcluster/internal/index"
	"github.com/franz/bibcluster/internal/match"
	"github.com/franz/bibcluster/internal/merge"
	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/report"
	"github.com/franz/bibcluster/internal/store"
	"github.com/franz/bibcluster/internal/util"
)

// DefaultBatchSize is the number of works pushed to the index per flush.
const DefaultBatchSize = 50

// Orchestrator clusters pending records into works
type Orchestrator struct {
	store      *store.Store
	index      index.Projector
	rules      *config.Rules
	matcher    *match.Matcher
	aggregator *aggregate.Aggregator
	logger     *report.EventLogger
	batchSize  int
	progress   bool
}

// Config holds orchestrator configuration
type Config struct {
	Store    *store.Store
	Index    index.Projector // nil disables index updates
	Rules    *config.Rules   // nil uses config.DefaultRules
	Detector aggregate.LanguageDetector
	Logger   *report.EventLogger

	BatchSize    int
	ShowProgress bool // Render a progress bar when stdout is a terminal
}

// New creates a new Orchestrator
func New(cfg *Config) *Orchestrator {
	rules := cfg.Rules
	if rules == nil {
		rules = config.DefaultRules()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Orchestrator{
		store:      cfg.Store,
		index:      cfg.Index,
		rules:      rules,
		matcher:    match.New(rules.Match),
		aggregator: aggregate.New(rules.Aggregate, cfg.Detector),
		logger:     cfg.Logger,
		batchSize:  batchSize,
		progress:   cfg.ShowProgress,
	}
}

// Failure is one record that could not be clustered.
type Failure struct {
	RecordUUID      string
	SourceID        string
	Kind            string
	Err             error
	MarkedClustered bool
}

// Result represents clustering results
type Result struct {
	RunID          int64
	Attempted      int
	Clustered      int
	WorksIndexed   int
	WorksRetracted int
	Failures       map[string]int
	FailedRecords  []Failure
}

func (r *Result) fail(f Failure) {
	if r.Failures == nil {
		r.Failures = make(map[string]int)
	}
	r.Failures[f.Kind]++
	if f.RecordUUID != "" {
		r.FailedRecords = append(r.FailedRecords, f)
	}
}

// batch accumulates index work between flushes.
type batch struct {
	works   []int64
	pending map[int64]bool
	stale   map[string]bool
}

func newBatch() *batch {
	return &batch{pending: make(map[int64]bool), stale: make(map[string]bool)}
}

func (b *batch) add(workID int64) {
	if !b.pending[workID] {
		b.pending[workID] = true
		b.works = append(b.works, workID)
	}
}

func (b *batch) empty() bool { return len(b.works) == 0 && len(b.stale) == 0 }

// Cluster runs the batch loop over the records selected by p. Per-record
// failures are counted in the result; only store failures outside a record
// abort the run.
func (o *Orchestrator) Cluster(ctx context.Context, p Params) (*Result, error) {
	filter := store.RecordFilter{
		Since:          p.Since,
		RecordUUID:     p.RecordUUID,
		Source:         p.Source,
		ExcludeSources: o.rules.IdentifierSources,
	}

	total, err := o.store.CountPendingRecords(ctx, filter)
	if err != nil {
		return nil, err
	}
	if p.Limit > 0 && total > p.Limit {
		total = p.Limit
	}
	util.InfoLog("Clustering %d pending records (%s)", total, p.ProcessType)

	runID, err := o.store.StartRun(ctx, p.ProcessType, p.String())
	if err != nil {
		return nil, err
	}
	run := &store.ClusterRun{ID: runID, Status: store.RunRunning}
	res := &Result{RunID: runID, Failures: make(map[string]int)}

	bar := o.newProgressBar(total)
	b := newBatch()
	var afterID int64

	runErr := func() error {
		for p.Limit <= 0 || res.Attempted < p.Limit {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := o.store.NextPendingRecord(ctx, filter, afterID)
			if err != nil {
				return err
			}
			if rec == nil {
				break
			}
			afterID = rec.ID
			res.Attempted++

			o.clusterRecord(ctx, rec, b, res)
			if bar != nil {
				_ = bar.Add(1)
			}

			if len(b.works) >= o.batchSize {
				if err := o.flush(ctx, b, res); err != nil {
					return err
				}
				o.saveProgress(ctx, run, res, afterID)
			}
		}
		return nil
	}()

	// Final flush for the partial batch, also after cancellation.
	if flushErr := o.flush(context.WithoutCancel(ctx), b, res); flushErr != nil && runErr == nil {
		runErr = flushErr
	}
	if bar != nil {
		_ = bar.Finish()
	}

	run.LastRecordID = afterID
	copyCounters(run, res)
	run.Status = store.RunCompleted
	if runErr != nil {
		run.Status = store.RunFailed
		run.Error = runErr.Error()
	}
	if err := o.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		util.WarnLog("Failed to record run %d: %v", runID, err)
	}

	if runErr != nil {
		return res, fmt.Errorf("clustering run %d aborted: %w", runID, runErr)
	}
	util.SuccessLog("Clustered %d of %d records (%d failures, %d works indexed, %d retracted)",
		res.Clustered, res.Attempted, len(res.FailedRecords), res.WorksIndexed, res.WorksRetracted)
	return res, nil
}

// clusterRecord runs match, aggregate and merge for one record in a single
// transaction and marks every matched record clustered with it.
func (o *Orchestrator) clusterRecord(ctx context.Context, rec *model.Record, b *batch, res *Result) {
	start := time.Now()
	var (
		merged  *merge.Result
		matched []int64
	)

	err := o.store.WithTx(ctx, func(tx *store.Store) error {
		ids, err := o.matcher.Match(ctx, tx, rec)
		if err != nil {
			return err
		}
		records, err := o.withPersistedWorks(ctx, tx, rec, withSeed(ids, rec.ID))
		if err != nil {
			return err
		}
		ids = recordIDs(records)

		work, err := o.aggregator.Build(records)
		if err != nil {
			return err
		}

		merged, err = merge.New(tx).Merge(ctx, work)
		if err != nil {
			return err
		}
		matched = ids
		return tx.MarkClustered(ctx, ids)
	})
	if err != nil {
		o.recordFailure(ctx, rec, err, res)
		return
	}

	res.Clustered++
	b.add(merged.Work.ID)
	for _, id := range merged.Touched {
		b.add(id)
	}
	for _, id := range merged.Stale {
		b.stale[id] = true
	}

	util.DebugLog("Record %s clustered into work %s (%d records, %d editions)",
		rec.UUID, merged.Work.UUID, len(matched), len(merged.Work.Editions))
	_ = o.logger.LogCluster(rec.UUID, rec.SourceID, merged.Work.UUID, len(matched), len(merged.Work.Editions), time.Since(start))
	_ = o.logger.LogStale(merged.Stale)
}

// recordFailure contains a per-record failure. Match size and title failures
// mark the seed clustered without a work; anything else leaves it pending for
// a later run.
func (o *Orchestrator) recordFailure(ctx context.Context, rec *model.Record, err error, res *Result) {
	f := Failure{
		RecordUUID: rec.UUID,
		SourceID:   rec.SourceID,
		Kind:       util.FailureKind(err),
		Err:        err,
	}

	if util.IsTerminalForRecord(err) {
		markErr := o.store.WithTx(ctx, func(tx *store.Store) error {
			return tx.MarkClustered(ctx, []int64{rec.ID})
		})
		if markErr != nil {
			util.ErrorLog("Failed to mark record %s clustered: %v", rec.UUID, markErr)
		} else {
			f.MarkedClustered = true
		}
	}

	res.fail(f)
	util.WarnLog("Record %s (%s) not clustered [%s]: %v", rec.UUID, rec.SourceID, f.Kind, err)
	_ = o.logger.LogFailure(rec.UUID, rec.SourceID, f.Kind, f.MarkedClustered, err)
}

// flush deletes stale work rows, then pushes the batch's works to the index
// and retracts the stale ones. Index failures are counted, not returned.
func (o *Orchestrator) flush(ctx context.Context, b *batch, res *Result) error {
	if b.empty() {
		return nil
	}

	stale := make([]string, 0, len(b.stale))
	for id := range b.stale {
		stale = append(stale, id)
	}

	if len(stale) > 0 {
		err := o.store.WithTx(ctx, func(tx *store.Store) error {
			n, err := tx.DeleteWorks(ctx, stale)
			res.WorksRetracted += int(n)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete stale works: %w", err)
		}
	}

	works, err := o.store.GetWorks(ctx, b.works)
	if err != nil {
		return fmt.Errorf("failed to load works for indexing: %w", err)
	}

	if o.index != nil {
		if err := o.index.Upsert(ctx, works); err != nil {
			o.indexFailure("upsert", len(works), err, res)
		} else {
			res.WorksIndexed += len(works)
			_ = o.logger.LogIndex("upsert", len(works), nil)
		}

		if len(stale) > 0 {
			if err := o.index.Delete(ctx, stale); err != nil {
				o.indexFailure("delete", len(stale), err, res)
			} else {
				_ = o.logger.LogIndex("delete", len(stale), nil)
			}
		}
	}

	*b = *newBatch()
	return nil
}

func (o *Orchestrator) indexFailure(action string, count int, err error, res *Result) {
	res.fail(Failure{Kind: util.KindIndexUnavailable, Err: err})
	util.ErrorLog("Search index %s of %d works failed: %v", action, count, err)
	_ = o.logger.LogIndex(action, count, err)
}

func (o *Orchestrator) saveProgress(ctx context.Context, run *store.ClusterRun, res *Result, afterID int64) {
	run.LastRecordID = afterID
	copyCounters(run, res)
	if err := o.store.UpdateRunProgress(ctx, run); err != nil {
		util.WarnLog("Failed to save run progress: %v", err)
	}
}

func (o *Orchestrator) newProgressBar(total int) *progressbar.ProgressBar {
	if !o.progress || total == 0 || !util.IsTerminal(os.Stdout.Fd()) || util.IsQuiet() {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Clustering"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func copyCounters(run *store.ClusterRun, res *Result) {
	run.Attempted = res.Attempted
	run.Clustered = res.Clustered
	run.WorksIndexed = res.WorksIndexed
	run.WorksRetracted = res.WorksRetracted
	run.Failures = res.Failures
}

// withPersistedWorks loads the matched records plus every record already held
// by a work that holds one of them, repeating until no work adds a record.
// Every record of those works ends up in the rebuilt work. The result is
// ordered by id.
func (o *Orchestrator) withPersistedWorks(ctx context.Context, tx *store.Store, seed *model.Record, ids []int64) ([]*model.Record, error) {
	have := make(map[int64]bool, len(ids))
	for _, id := range ids {
		have[id] = true
	}

	records, err := tx.GetRecordsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	frontier := records

	for len(frontier) > 0 {
		uuids := make([]string, len(frontier))
		for i, r := range frontier {
			uuids[i] = r.UUID
		}
		held, err := tx.RecordIDsInWorksOf(ctx, uuids)
		if err != nil {
			return nil, err
		}

		var added []int64
		for _, id := range held {
			if !have[id] {
				have[id] = true
				added = append(added, id)
			}
		}
		if limit := o.rules.Match.MaxClusterSize; limit > 0 && len(have) > limit {
			return nil, fmt.Errorf("record %s joins works holding more than %d records: %w",
				seed.UUID, limit, util.ErrMatchSizeExceeded)
		}
		if len(added) == 0 {
			break
		}

		frontier, err = tx.GetRecordsByIDs(ctx, added)
		if err != nil {
			return nil, err
		}
		records = append(records, frontier...)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func recordIDs(records []*model.Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func withSeed(ids []int64, seed int64) []int64 {
	for _, id := range ids {
		if id == seed {
			return ids
		}
	}
	return append(ids, seed)
}
