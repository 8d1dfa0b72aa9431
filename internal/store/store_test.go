package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/bibcluster/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(sourceID, title string, ids ...string) *model.Record {
	return &model.Record{
		SourceID:    sourceID,
		Source:      "test",
		FRBRStatus:  model.FRBRComplete,
		Title:       title,
		Identifiers: model.ParseAll(ids, model.ParseIdentifier),
	}
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{
		"records", "record_identifiers", "works", "editions", "edition_records", "items",
		"identifiers", "links", "rights", "work_identifiers", "edition_identifiers",
		"item_identifiers", "edition_links", "item_links", "cluster_runs", "schema_version",
	}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}
	if SQLiteVersion() == "" {
		t.Error("expected a sqlite version")
	}
}

func TestUpsertRecords_Reingest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	keep := func(source string) bool { return source == "oclcClassify" }

	rec := testRecord("A|test", "Sample Work", "12345|isbn")
	authority := &model.Record{
		SourceID: "9|oclc", Source: "oclcClassify", FRBRStatus: model.FRBRComplete,
		Title: "Sample Work", Identifiers: model.ParseAll([]string{"9|owi"}, model.ParseIdentifier),
	}
	if err := store.UpsertRecords(ctx, []*model.Record{rec, authority}, keep); err != nil {
		t.Fatalf("UpsertRecords failed: %v", err)
	}
	if rec.ID == 0 || rec.UUID == "" {
		t.Fatalf("expected id and uuid to be assigned, got %d %q", rec.ID, rec.UUID)
	}
	originalUUID := rec.UUID

	if err := store.MarkClustered(ctx, []int64{rec.ID, authority.ID}); err != nil {
		t.Fatalf("MarkClustered failed: %v", err)
	}

	changed := testRecord("A|test", "Sample Work, Revised", "12345|isbn", "777|oclc")
	changedAuthority := &model.Record{SourceID: "9|oclc", Source: "oclcClassify", Title: "Sample Work"}
	if err := store.UpsertRecords(ctx, []*model.Record{changed, changedAuthority}, keep); err != nil {
		t.Fatalf("UpsertRecords (reingest) failed: %v", err)
	}

	got, err := store.GetRecordBySourceID(ctx, "A|test")
	if err != nil || got == nil {
		t.Fatalf("GetRecordBySourceID failed: %v", err)
	}
	if got.UUID != originalUUID {
		t.Errorf("uuid changed on reingest: %s -> %s", originalUUID, got.UUID)
	}
	if got.Title != "Sample Work, Revised" {
		t.Errorf("title = %q, want the re-ingested title", got.Title)
	}
	if got.ClusterStatus {
		t.Error("cluster_status should be reset on reingest")
	}
	if got.FRBRStatus != model.FRBRToDo {
		t.Errorf("frbr_status = %q, want to_do", got.FRBRStatus)
	}
	if len(got.Identifiers) != 2 {
		t.Errorf("identifiers = %v", got.Identifiers)
	}

	gotAuthority, _ := store.GetRecordBySourceID(ctx, "9|oclc")
	if gotAuthority.FRBRStatus != model.FRBRComplete {
		t.Errorf("identifier source frbr_status = %q, want complete", gotAuthority.FRBRStatus)
	}
	if gotAuthority.ClusterStatus {
		t.Error("identifier source cluster_status should still be reset")
	}

	// The overlap index follows the re-ingested identifiers
	matches, err := store.RecordsWithIdentifiers(ctx, []string{"777|oclc"})
	if err != nil {
		t.Fatalf("RecordsWithIdentifiers failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != rec.ID {
		t.Errorf("expected the re-ingested record to match 777|oclc, got %v", matches)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	p := model.Payload{
		SourceID:     "B|test",
		Source:       "test",
		FRBRStatus:   "complete",
		Title:        "Moby Dick",
		Alternative:  []string{"The Whale"},
		Authors:      []string{"Melville, Herman|27068555|n79006936|true"},
		Contributors: []string{"Kent, Rockwell|||illustrator"},
		Identifiers:  []string{"12345|isbn"},
		Dates:        []string{"1851|publication_date"},
		Subjects:     []string{"Whaling.|lcsh|sh85146352"},
		Rights:       []string{"test|public_domain|expired|Public Domain|2020"},
		HasPart:      []string{`1|https://example.org/a.epub|test|application/epub+zip|{"download": true}`, "broken"},
		HasVersion:   "1st ed.|1",
	}
	rec, err := p.Record()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertRecords(ctx, []*model.Record{rec}, nil); err != nil {
		t.Fatalf("UpsertRecords failed: %v", err)
	}

	got, err := store.GetRecord(ctx, rec.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if len(got.Authors) != 1 || got.Authors[0].VIAF != "27068555" || !got.Authors[0].Primary {
		t.Errorf("authors = %+v", got.Authors)
	}
	if len(got.Parts) != 1 || !got.Parts[0].Flags.Download {
		t.Errorf("parts = %+v", got.Parts)
	}
	if len(got.MalformedParts) != 1 {
		t.Errorf("malformed parts should survive the round trip, got %v", got.MalformedParts)
	}
	if got.HasVersion.Statement != "1st ed." {
		t.Errorf("has_version = %+v", got.HasVersion)
	}
	if got.DateModified.IsZero() {
		t.Error("expected date_modified to be set")
	}
}

func TestNextPendingRecord_Filters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := testRecord("A|test", "Alpha", "1|isbn")
	b := testRecord("B|other", "Beta", "2|isbn")
	b.Source = "other"
	c := testRecord("C|test", "", "3|isbn") // no title
	d := testRecord("D|test", "Delta", "4|isbn")
	d.FRBRStatus = model.FRBRToDo
	e := testRecord("E|oclcClassify", "Echo", "5|owi")
	e.Source = "oclcClassify"

	if err := store.UpsertRecords(ctx, []*model.Record{a, b, c, d, e}, nil); err != nil {
		t.Fatal(err)
	}

	collect := func(filter RecordFilter) []string {
		var ids []string
		var after int64
		for {
			r, err := store.NextPendingRecord(ctx, filter, after)
			if err != nil {
				t.Fatalf("NextPendingRecord failed: %v", err)
			}
			if r == nil {
				return ids
			}
			ids = append(ids, r.SourceID)
			after = r.ID
		}
	}

	tests := []struct {
		name   string
		filter RecordFilter
		want   []string
	}{
		{"all eligible", RecordFilter{ExcludeSources: []string{"oclcClassify"}}, []string{"A|test", "B|other"}},
		{"by source", RecordFilter{Source: "other"}, []string{"B|other"}},
		{"by uuid", RecordFilter{RecordUUID: a.UUID}, []string{"A|test"}},
		{"since future", RecordFilter{Since: time.Now().Add(time.Hour)}, nil},
		{"since past", RecordFilter{Since: time.Now().Add(-time.Hour), ExcludeSources: []string{"oclcClassify"}}, []string{"A|test", "B|other"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(tt.filter)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}

			n, err := store.CountPendingRecords(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if n != len(tt.want) {
				t.Errorf("CountPendingRecords = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func sampleWork() *model.Work {
	return &model.Work{
		Title:        "Moby Dick",
		SortTitle:    "moby dick",
		Authors:      []model.Agent{{Name: "Melville, Herman", Roles: []string{"author"}}},
		Measurements: []model.Measurement{{Value: "1", Type: model.MeasurementGovernmentDocument}},
		Identifiers:  []model.Identifier{{Value: "owi1", Authority: "owi"}},
		Editions: []*model.Edition{
			{
				PublicationDate: "1851",
				Title:           "Moby Dick",
				DCDWUUIDs:       []string{"rec-a", "rec-b"},
				Identifiers:     []model.Identifier{{Value: "12345", Authority: "isbn"}},
				Links:           []model.Link{{URL: "https://example.org/cover.jpg", MediaType: "image/jpeg", Flags: model.LinkFlags{Cover: true}}},
				Items: []*model.Item{
					{
						Source:      "test",
						Links:       []model.Link{{URL: "https://example.org/a.epub", MediaType: "application/epub+zip"}},
						Identifiers: []model.Identifier{{Value: "a-1", Authority: "test"}},
						Rights:      []model.Rights{{License: "public_domain"}},
					},
				},
			},
			{
				PublicationDate: "1930",
				DCDWUUIDs:       []string{"rec-c"},
			},
		},
	}
}

func TestSaveWorkAndLoad(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	w := sampleWork()
	if err := store.SaveWork(ctx, w); err != nil {
		t.Fatalf("SaveWork failed: %v", err)
	}
	if w.ID == 0 || w.UUID == "" || w.Editions[0].ID == 0 || w.Editions[0].Items[0].ID == 0 {
		t.Fatal("expected ids to be assigned")
	}

	got, err := store.GetWorkByUUID(ctx, w.UUID)
	if err != nil || got == nil {
		t.Fatalf("GetWorkByUUID failed: %v", err)
	}
	if got.Title != "Moby Dick" || !got.IsGovernmentDocument() {
		t.Errorf("unexpected work: %+v", got)
	}
	if len(got.Editions) != 2 {
		t.Fatalf("expected 2 editions, got %d", len(got.Editions))
	}
	e := got.Editions[0]
	if len(e.Links) != 1 || !e.Links[0].Flags.Cover {
		t.Errorf("edition links = %+v", e.Links)
	}
	if len(e.Items) != 1 || len(e.Items[0].Links) != 1 || len(e.Items[0].Rights) != 1 {
		t.Errorf("items = %+v", e.Items)
	}
	if len(e.DCDWUUIDs) != 2 {
		t.Errorf("dcdw_uuids = %v", e.DCDWUUIDs)
	}

	refs, err := store.FindEditionsByRecordUUIDs(ctx, []string{"rec-b", "rec-c", "missing"})
	if err != nil {
		t.Fatalf("FindEditionsByRecordUUIDs failed: %v", err)
	}
	if len(refs) != 2 || refs[0].WorkUUID != w.UUID || refs[0].ID >= refs[1].ID {
		t.Errorf("refs = %+v", refs)
	}

	id, err := store.FindIdentifierID(ctx, "12345", "isbn")
	if err != nil || id == 0 {
		t.Errorf("FindIdentifierID = %d, %v", id, err)
	}
	linkID, err := store.FindLinkID(ctx, "https://example.org/a.epub")
	if err != nil || linkID == 0 {
		t.Errorf("FindLinkID = %d, %v", linkID, err)
	}
}

func TestSaveWork_UpdateInPlace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	w := sampleWork()
	if err := store.SaveWork(ctx, w); err != nil {
		t.Fatal(err)
	}

	// Drop the second edition and retitle; reuse persisted identifier rows
	w.Title = "Moby-Dick; or, The Whale"
	w.Editions = w.Editions[:1]
	if err := store.SaveWork(ctx, w); err != nil {
		t.Fatalf("SaveWork (update) failed: %v", err)
	}

	counts, err := store.CountGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Works != 1 || counts.Editions != 1 || counts.Items != 1 {
		t.Errorf("counts after update = %+v", counts)
	}
	if counts.Identifiers != 3 || counts.Links != 2 {
		t.Errorf("shared rows duplicated: %+v", counts)
	}

	got, _ := store.GetWork(ctx, w.ID)
	if got.Title != "Moby-Dick; or, The Whale" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestSaveWork_DuplicateIdentifierFails(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveWork(ctx, sampleWork()); err != nil {
		t.Fatal(err)
	}

	// Same identifier with no id: the unique constraint must reject it
	dup := &model.Work{Title: "Other", Identifiers: []model.Identifier{{Value: "owi1", Authority: "owi"}}}
	if err := store.SaveWork(ctx, dup); err == nil {
		t.Fatal("expected a constraint error")
	}

	counts, _ := store.CountGraph(ctx)
	if counts.Works != 1 {
		t.Errorf("failed save should roll back, works = %d", counts.Works)
	}
}

func TestRecordIDsInWorksOf(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	records := []*model.Record{
		testRecord("A", "One"),
		testRecord("B", "One"),
		testRecord("C", "Two"),
		testRecord("D", "Three"),
	}
	if err := store.UpsertRecords(ctx, records, nil); err != nil {
		t.Fatal(err)
	}
	ids := make(map[string]int64)
	uuids := make(map[string]string)
	for _, r := range records {
		got, err := store.GetRecordBySourceID(ctx, r.SourceID)
		if err != nil || got == nil {
			t.Fatalf("GetRecordBySourceID(%s): %v", r.SourceID, err)
		}
		ids[r.SourceID], uuids[r.SourceID] = got.ID, got.UUID
	}

	// A and B sit in different editions of one work
	one := &model.Work{Title: "One", Editions: []*model.Edition{
		{PublicationDate: "1900", DCDWUUIDs: []string{uuids["A"]}},
		{PublicationDate: "1950", DCDWUUIDs: []string{uuids["B"]}},
	}}
	three := &model.Work{Title: "Three", Editions: []*model.Edition{
		{DCDWUUIDs: []string{uuids["D"]}},
	}}
	for _, w := range []*model.Work{one, three} {
		if err := store.SaveWork(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		query []string
		want  []int64
	}{
		{"sibling edition", []string{uuids["A"]}, []int64{ids["A"], ids["B"]}},
		{"two works", []string{uuids["B"], uuids["D"]}, []int64{ids["A"], ids["B"], ids["D"]}},
		{"unclustered", []string{uuids["C"]}, nil},
		{"unknown", []string{"missing"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.RecordIDsInWorksOf(ctx, tt.query)
			if err != nil {
				t.Fatalf("RecordIDsInWorksOf failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestDeleteWorks_KeepsSharedRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	w := sampleWork()
	if err := store.SaveWork(ctx, w); err != nil {
		t.Fatal(err)
	}

	n, err := store.DeleteWorks(ctx, []string{w.UUID, "not-there"})
	if err != nil {
		t.Fatalf("DeleteWorks failed: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d works, want 1", n)
	}

	counts, _ := store.CountGraph(ctx)
	if counts.Works != 0 || counts.Editions != 0 || counts.Items != 0 {
		t.Errorf("cascade failed: %+v", counts)
	}
	if counts.Identifiers != 3 || counts.Links != 2 {
		t.Errorf("shared rows should survive: %+v", counts)
	}
}

func TestClusterRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.StartRun(ctx, "complete", `{"limit":0}`)
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	run := &ClusterRun{
		ID:        id,
		Status:    RunCompleted,
		Attempted: 3,
		Clustered: 2,
		Failures:  map[string]int{"invalid_title": 1},
	}
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	latest, err := store.GetLatestRun(ctx)
	if err != nil || latest == nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if latest.Status != RunCompleted || latest.Attempted != 3 || latest.Failures["invalid_title"] != 1 {
		t.Errorf("unexpected run: %+v", latest)
	}
	if latest.FinishedAt.IsZero() {
		t.Error("expected finished_at")
	}
}
