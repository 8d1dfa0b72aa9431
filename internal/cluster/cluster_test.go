package cluster

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/franz/bibcluster/internal/config"
	"github.com/franz/bibcluster/internal/index"
	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/store"
	"github.com/franz/bibcluster/internal/util"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cluster.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func record(sourceID, title string, ids ...string) *model.Record {
	return &model.Record{
		SourceID:    sourceID,
		Source:      "hathitrust",
		FRBRStatus:  model.FRBRComplete,
		Title:       title,
		Identifiers: model.ParseAll(ids, model.ParseIdentifier),
	}
}

// ingest stores records ready for clustering.
func ingest(t *testing.T, st *store.Store, records ...*model.Record) {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertRecords(ctx, records, nil); err != nil {
		t.Fatalf("UpsertRecords failed: %v", err)
	}
	sourceIDs := make([]string, len(records))
	for i, r := range records {
		sourceIDs[i] = r.SourceID
	}
	if err := st.SetFRBRStatus(ctx, sourceIDs, model.FRBRComplete); err != nil {
		t.Fatalf("SetFRBRStatus failed: %v", err)
	}
}

func sampleRecords() []*model.Record {
	return []*model.Record{
		record("A", "Sample Work", "12345|isbn"),
		record("B", "Sample Work: A Study", "12345|isbn", "67890|oclc"),
		record("C", "Unrelated Book", "99999|isbn"),
	}
}

func run(t *testing.T, o *Orchestrator, p Params) *Result {
	t.Helper()
	res, err := o.Cluster(context.Background(), p)
	if err != nil {
		t.Fatalf("Cluster failed: %v", err)
	}
	return res
}

// clusters returns the sorted record source ids grouped per work.
func clusters(t *testing.T, st *store.Store) [][]string {
	t.Helper()
	ctx := context.Background()

	ids, err := st.ListWorkIDs(ctx, 0, 1000)
	if err != nil {
		t.Fatalf("ListWorkIDs failed: %v", err)
	}
	works, err := st.GetWorks(ctx, ids)
	if err != nil {
		t.Fatalf("GetWorks failed: %v", err)
	}

	var out [][]string
	for _, w := range works {
		var members []string
		for _, e := range w.Editions {
			for _, u := range e.DCDWUUIDs {
				r := recordByUUID(t, st, u)
				members = append(members, r.SourceID)
			}
		}
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func recordByUUID(t *testing.T, st *store.Store, recordUUID string) *model.Record {
	t.Helper()
	for _, sourceID := range []string{"A", "B", "C", "D"} {
		r, err := st.GetRecordBySourceID(context.Background(), sourceID)
		if err == nil && r != nil && r.UUID == recordUUID {
			return r
		}
	}
	t.Fatalf("no record with uuid %s", recordUUID)
	return nil
}

func pending(t *testing.T, st *store.Store) int {
	t.Helper()
	counts, err := st.CountRecords(context.Background())
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	return counts.Pending
}

// assertClusteredRecordsReachable fails unless every clustered record appears
// in exactly one edition of exactly one work.
func assertClusteredRecordsReachable(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	rows, err := st.DB().QueryContext(ctx, `SELECT uuid, source_id FROM records WHERE cluster_status = 1`)
	if err != nil {
		t.Fatalf("failed to list clustered records: %v", err)
	}
	clustered := make(map[string]string)
	for rows.Next() {
		var recordUUID, sourceID string
		if err := rows.Scan(&recordUUID, &sourceID); err != nil {
			t.Fatalf("failed to scan record: %v", err)
		}
		clustered[recordUUID] = sourceID
	}
	rows.Close()

	ids, err := st.ListWorkIDs(ctx, 0, 1000)
	if err != nil {
		t.Fatalf("ListWorkIDs failed: %v", err)
	}
	works, err := st.GetWorks(ctx, ids)
	if err != nil {
		t.Fatalf("GetWorks failed: %v", err)
	}
	seen := make(map[string]int)
	for _, w := range works {
		for _, e := range w.Editions {
			for _, u := range e.DCDWUUIDs {
				seen[u]++
			}
		}
	}

	for recordUUID, sourceID := range clustered {
		if seen[recordUUID] != 1 {
			t.Errorf("clustered record %s appears in %d editions, want 1", sourceID, seen[recordUUID])
		}
	}
}

func TestCluster_EndToEnd(t *testing.T) {
	st := openTestStore(t)
	idx := index.NewMemoryProjector()
	ingest(t, st, sampleRecords()...)

	o := New(&Config{Store: st, Index: idx})
	res := run(t, o, Params{ProcessType: ProcessComplete})

	// B is matched while clustering A, so only A and C are seeds.
	if res.Attempted != 2 || res.Clustered != 2 {
		t.Errorf("attempted/clustered = %d/%d, want 2/2", res.Attempted, res.Clustered)
	}
	if len(res.FailedRecords) != 0 {
		t.Errorf("unexpected failures: %+v", res.FailedRecords)
	}

	got := clusters(t, st)
	want := [][]string{{"A", "B"}, {"C"}}
	if len(got) != len(want) {
		t.Fatalf("clusters = %v, want %v", got, want)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) || got[i][0] != want[i][0] {
			t.Errorf("cluster %d = %v, want %v", i, got[i], want[i])
		}
	}

	if pending(t, st) != 0 {
		t.Error("expected every record to be clustered")
	}
	assertClusteredRecordsReachable(t, st)
	if idx.Len() != 2 {
		t.Errorf("indexed documents = %d, want 2", idx.Len())
	}

	latest, err := st.GetLatestRun(context.Background())
	if err != nil || latest == nil {
		t.Fatalf("GetLatestRun: %v", err)
	}
	if latest.ID != res.RunID || latest.Status != store.RunCompleted || latest.Clustered != 2 {
		t.Errorf("unexpected run record %+v", latest)
	}
}

func TestCluster_SecondRunIsNoop(t *testing.T) {
	st := openTestStore(t)
	ingest(t, st, sampleRecords()...)
	o := New(&Config{Store: st, Index: index.NewMemoryProjector()})

	run(t, o, Params{ProcessType: ProcessComplete})
	before, _ := st.CountGraph(context.Background())

	res := run(t, o, Params{ProcessType: ProcessComplete})
	if res.Attempted != 0 {
		t.Errorf("second run attempted %d records", res.Attempted)
	}
	after, _ := st.CountGraph(context.Background())
	if *before != *after {
		t.Errorf("graph changed: %+v -> %+v", before, after)
	}
}

func TestCluster_ReingestIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	idx := index.NewMemoryProjector()
	o := New(&Config{Store: st, Index: idx})

	ingest(t, st, sampleRecords()...)
	run(t, o, Params{ProcessType: ProcessComplete})
	before, _ := st.CountGraph(context.Background())
	firstIDs, _ := st.ListWorkIDs(context.Background(), 0, 100)

	ingest(t, st, sampleRecords()...)
	run(t, o, Params{ProcessType: ProcessComplete})
	after, _ := st.CountGraph(context.Background())
	secondIDs, _ := st.ListWorkIDs(context.Background(), 0, 100)

	if before.Works != after.Works || before.Editions != after.Editions {
		t.Errorf("graph changed on re-cluster: %+v -> %+v", before, after)
	}
	if len(firstIDs) != len(secondIDs) {
		t.Fatalf("work ids changed: %v -> %v", firstIDs, secondIDs)
	}
	for i := range firstIDs {
		if firstIDs[i] != secondIDs[i] {
			t.Errorf("work ids changed: %v -> %v", firstIDs, secondIDs)
		}
	}
	assertClusteredRecordsReachable(t, st)
	if idx.Len() != 2 {
		t.Errorf("indexed documents = %d, want 2", idx.Len())
	}
}

func TestCluster_ConvergesAcrossInsertionOrder(t *testing.T) {
	orders := map[string][]int{
		"forward": {0, 1, 2},
		"reverse": {2, 1, 0},
		"mixed":   {1, 2, 0},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			st := openTestStore(t)
			records := sampleRecords()
			for _, i := range order {
				ingest(t, st, records[i])
			}

			run(t, New(&Config{Store: st}), Params{ProcessType: ProcessComplete})

			got := clusters(t, st)
			if len(got) != 2 || len(got[0]) != 2 || got[0][0] != "A" || got[0][1] != "B" || got[1][0] != "C" {
				t.Errorf("clusters = %v, want [[A B] [C]]", got)
			}
			assertClusteredRecordsReachable(t, st)
		})
	}
}

// B shares an isbn with A and an oclc with C while the titles of A and C are
// disjoint, so neither end reaches the other through B.
func chainRecords(cTitle string) []*model.Record {
	return []*model.Record{
		record("A", "Sample Work", "1|isbn"),
		record("B", "Sample Work", "1|isbn", "2|oclc"),
		record("C", cTitle, "2|oclc"),
	}
}

func TestCluster_ChainWithDisjointEndsConverges(t *testing.T) {
	orders := map[string][]int{
		"forward": {0, 1, 2},
		"reverse": {2, 1, 0},
		"mixed":   {1, 2, 0},
		"ends":    {0, 2, 1},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			st := openTestStore(t)
			idx := index.NewMemoryProjector()
			records := chainRecords("Other Title Here")
			for _, i := range order {
				ingest(t, st, records[i])
			}

			run(t, New(&Config{Store: st, Index: idx}), Params{ProcessType: ProcessComplete})

			got := clusters(t, st)
			if len(got) != 1 || len(got[0]) != 3 {
				t.Errorf("clusters = %v, want [[A B C]]", got)
			}
			if pending(t, st) != 0 {
				t.Error("expected every record to be clustered")
			}
			assertClusteredRecordsReachable(t, st)
			if idx.Len() != 1 {
				t.Errorf("indexed documents = %d, want 1", idx.Len())
			}
		})
	}
}

func TestCluster_ReingestedTitleKeepsFormerMembers(t *testing.T) {
	st := openTestStore(t)
	idx := index.NewMemoryProjector()
	o := New(&Config{Store: st, Index: idx})

	ingest(t, st, chainRecords("Sample Work Sequel")...)
	run(t, o, Params{ProcessType: ProcessComplete})
	if got := clusters(t, st); len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("clusters after first run = %v, want [[A B C]]", got)
	}

	ingest(t, st, record("C", "Other Title Here", "2|oclc"))
	res := run(t, o, Params{ProcessType: ProcessComplete})
	if res.Attempted != 1 || res.Clustered != 1 {
		t.Errorf("attempted/clustered = %d/%d, want 1/1", res.Attempted, res.Clustered)
	}

	got := clusters(t, st)
	if len(got) != 1 || len(got[0]) != 3 {
		t.Errorf("clusters = %v, want [[A B C]]", got)
	}
	assertClusteredRecordsReachable(t, st)
	if idx.Len() != 1 {
		t.Errorf("indexed documents = %d, want 1", idx.Len())
	}
}

func TestCluster_IncrementalJoinsExistingWork(t *testing.T) {
	st := openTestStore(t)
	idx := index.NewMemoryProjector()
	o := New(&Config{Store: st, Index: idx})

	records := sampleRecords()
	ingest(t, st, records[0], records[2])
	run(t, o, Params{ProcessType: ProcessComplete})

	ingest(t, st, records[1])
	res := run(t, o, Params{ProcessType: ProcessComplete})
	if res.Attempted != 1 {
		t.Errorf("attempted = %d, want 1", res.Attempted)
	}

	got := clusters(t, st)
	if len(got) != 2 || len(got[0]) != 2 {
		t.Errorf("clusters = %v, want [[A B] [C]]", got)
	}
	if idx.Len() != 2 {
		t.Errorf("indexed documents = %d, want 2", idx.Len())
	}
}

func TestCluster_ReingestUpdatesEdition(t *testing.T) {
	st := openTestStore(t)
	idx := index.NewMemoryProjector()
	o := New(&Config{Store: st, Index: idx})

	r := record("A", "Walden", "111|isbn")
	r.PublicationPlace = "Boston"
	ingest(t, st, r)
	run(t, o, Params{ProcessType: ProcessComplete})

	updated := record("A", "Walden", "111|isbn")
	updated.PublicationPlace = "Concord"
	ingest(t, st, updated)
	run(t, o, Params{ProcessType: ProcessComplete})

	ids, _ := st.ListWorkIDs(context.Background(), 0, 10)
	if len(ids) != 1 {
		t.Fatalf("works = %d, want 1", len(ids))
	}
	w, err := st.GetWork(context.Background(), ids[0])
	if err != nil {
		t.Fatalf("GetWork failed: %v", err)
	}
	if len(w.Editions) != 1 || w.Editions[0].PublicationPlace != "Concord" {
		t.Errorf("expected one edition published in Concord, got %+v", w.Editions)
	}
	assertClusteredRecordsReachable(t, st)

	doc, ok := idx.Get(w.UUID)
	if !ok || len(doc.Editions) != 1 || doc.Editions[0].PublicationPlace != "Concord" {
		t.Errorf("index not updated: %+v", doc)
	}
}

func TestCluster_MatchSizeCap(t *testing.T) {
	st := openTestStore(t)
	ingest(t, st,
		record("A", "Big Cluster", "555|isbn"),
		record("B", "Big Cluster", "555|isbn"),
		record("C", "Big Cluster", "555|isbn"),
	)

	rules := config.DefaultRules()
	rules.Match.MaxClusterSize = 2
	res := run(t, New(&Config{Store: st, Rules: rules}), Params{ProcessType: ProcessComplete})

	if res.Failures[util.KindMatchSizeExceeded] != 3 {
		t.Errorf("failures = %v, want 3 match size failures", res.Failures)
	}
	for _, f := range res.FailedRecords {
		if !f.MarkedClustered {
			t.Errorf("record %s should be marked clustered", f.RecordUUID)
		}
	}
	if pending(t, st) != 0 {
		t.Error("oversized records should not stay pending")
	}
	counts, _ := st.CountGraph(context.Background())
	if counts.Works != 0 {
		t.Errorf("works = %d, want 0", counts.Works)
	}
}

func TestCluster_DefaultClusterCap(t *testing.T) {
	if testing.Short() {
		t.Skip("ingests more than 10,000 records")
	}
	st := openTestStore(t)

	records := make([]*model.Record, 0, 10001)
	for i := 0; i < 10001; i++ {
		records = append(records, record(fmt.Sprintf("chain-%05d", i), "Chained Title", "4242|isbn"))
	}
	ingest(t, st, records...)

	res := run(t, New(&Config{Store: st}), Params{ProcessType: ProcessComplete, Limit: 1})
	if res.Failures[util.KindMatchSizeExceeded] != 1 {
		t.Fatalf("failures = %v, want one match size failure", res.Failures)
	}
	seed, err := st.GetRecordBySourceID(context.Background(), "chain-00000")
	if err != nil || seed == nil {
		t.Fatalf("GetRecordBySourceID: %v", err)
	}
	if !seed.ClusterStatus {
		t.Error("seed should be marked clustered")
	}
	counts, _ := st.CountGraph(context.Background())
	if counts.Works != 0 {
		t.Errorf("works = %d, want 0", counts.Works)
	}
}

func TestCluster_InvalidTitle(t *testing.T) {
	st := openTestStore(t)
	ingest(t, st, record("A", "   ", "1|isbn"))

	res := run(t, New(&Config{Store: st}), Params{ProcessType: ProcessComplete})
	if res.Failures[util.KindInvalidTitle] != 1 {
		t.Errorf("failures = %v", res.Failures)
	}
	if pending(t, st) != 0 {
		t.Error("record with an unusable title should be marked clustered")
	}
}

func TestCluster_PersistenceConflictLeavesRecordPending(t *testing.T) {
	st := openTestStore(t)
	ingest(t, st, record("A", "Rejected", "1|isbn"), record("C", "Unrelated Book", "2|isbn"))

	_, err := st.DB().Exec(`CREATE TRIGGER reject_work BEFORE INSERT ON works
		WHEN NEW.title = 'Rejected' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	if err != nil {
		t.Fatalf("failed to create trigger: %v", err)
	}

	res := run(t, New(&Config{Store: st}), Params{ProcessType: ProcessComplete})
	if res.Failures[util.KindPersistenceConflict] != 1 {
		t.Errorf("failures = %v", res.Failures)
	}
	if res.Clustered != 1 {
		t.Errorf("clustered = %d, want 1", res.Clustered)
	}
	if len(res.FailedRecords) != 1 || res.FailedRecords[0].MarkedClustered {
		t.Errorf("unexpected failed records %+v", res.FailedRecords)
	}
	if pending(t, st) != 1 {
		t.Error("conflicting record should stay pending")
	}
}

type failingIndex struct{ calls int }

func (f *failingIndex) Upsert(context.Context, []*model.Work) error {
	f.calls++
	return util.ErrIndexUnavailable
}

func (f *failingIndex) Delete(context.Context, []string) error {
	f.calls++
	return util.ErrIndexUnavailable
}

func TestCluster_IndexFailureIsNotFatal(t *testing.T) {
	st := openTestStore(t)
	ingest(t, st, sampleRecords()...)
	idx := &failingIndex{}

	res := run(t, New(&Config{Store: st, Index: idx}), Params{ProcessType: ProcessComplete})
	if idx.calls == 0 {
		t.Fatal("index was never called")
	}
	if res.Failures[util.KindIndexUnavailable] == 0 {
		t.Errorf("failures = %v, want index_unavailable", res.Failures)
	}
	if res.Clustered != 2 || res.WorksIndexed != 0 {
		t.Errorf("clustered/indexed = %d/%d", res.Clustered, res.WorksIndexed)
	}
	if pending(t, st) != 0 {
		t.Error("index failures must not undo clustering")
	}
}

func TestCluster_BatchFlush(t *testing.T) {
	st := openTestStore(t)
	ingest(t, st,
		record("A", "First", "1|isbn"),
		record("B", "Second", "2|isbn"),
		record("C", "Third", "3|isbn"),
	)
	idx := index.NewMemoryProjector()

	res := run(t, New(&Config{Store: st, Index: idx, BatchSize: 1}), Params{ProcessType: ProcessComplete})
	if res.WorksIndexed != 3 || idx.Len() != 3 {
		t.Errorf("indexed = %d (%d documents), want 3", res.WorksIndexed, idx.Len())
	}
}

func TestCluster_Filters(t *testing.T) {
	classify := record("D", "Sample Work", "12345|isbn")
	classify.Source = "oclcClassify"

	tests := []struct {
		name          string
		params        Params
		wantAttempted int
	}{
		{"limit", Params{ProcessType: ProcessComplete, Limit: 1}, 1},
		{"source", Params{ProcessType: ProcessComplete, Source: "gutenberg"}, 1},
		{"future since", Params{ProcessType: ProcessCustom, Since: time.Now().Add(time.Hour)}, 0},
		{"complete", Params{ProcessType: ProcessComplete}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openTestStore(t)
			records := sampleRecords()
			records[2].Source = "gutenberg"
			ingest(t, st, append(records, classify)...)

			res := run(t, New(&Config{Store: st}), tt.params)
			if res.Attempted != tt.wantAttempted {
				t.Errorf("attempted = %d, want %d", res.Attempted, tt.wantAttempted)
			}
		})
	}
}

func TestCluster_SingleRecord(t *testing.T) {
	st := openTestStore(t)
	records := sampleRecords()
	ingest(t, st, records...)

	res := run(t, New(&Config{Store: st}), Params{ProcessType: ProcessComplete, RecordUUID: records[2].UUID})
	if res.Attempted != 1 || res.Clustered != 1 {
		t.Errorf("attempted/clustered = %d/%d, want 1/1", res.Attempted, res.Clustered)
	}
	if pending(t, st) != 2 {
		t.Errorf("pending = %d, want 2", pending(t, st))
	}
}

func TestCluster_CanceledContext(t *testing.T) {
	st := openTestStore(t)
	ingest(t, st, sampleRecords()...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&Config{Store: st}).Cluster(ctx, Params{ProcessType: ProcessComplete})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pending(t, st) != 3 {
		t.Error("no record should be clustered after cancellation")
	}
}

func TestNewParams(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	period := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		processType string
		period      time.Time
		wantSince   time.Time
		wantErr     bool
	}{
		{"daily", ProcessDaily, time.Time{}, now.Add(-24 * time.Hour), false},
		{"weekly", ProcessWeekly, time.Time{}, now.Add(-7 * 24 * time.Hour), false},
		{"complete", ProcessComplete, period, time.Time{}, false},
		{"custom", ProcessCustom, period, period, false},
		{"custom without period", ProcessCustom, time.Time{}, time.Time{}, true},
		{"unknown", "hourly", time.Time{}, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewParams(tt.processType, tt.period, now)
			if tt.wantErr {
				if !errors.Is(err, util.ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewParams failed: %v", err)
			}
			if !p.Since.Equal(tt.wantSince) {
				t.Errorf("Since = %v, want %v", p.Since, tt.wantSince)
			}
		})
	}
}

func TestParseIngestPeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-03-01T10:30:00", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"2024-03-01T10:30:00Z", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIngestPeriod(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
