package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/franz/bibcluster/internal/model"
)

const recordColumns = `id, uuid, source_id, source, content_type, frbr_status, cluster_status,
	title, sub_title, alternative, medium, authors, contributors, publisher, identifiers,
	languages, dates, subjects, rights, has_part, measurements, has_version, spatial,
	extent, summary, table_of_contents, volume, physical_location, date_created, date_modified`

// RecordFilter narrows the population of records eligible for clustering.
type RecordFilter struct {
	Since          time.Time // records modified at or after Since
	RecordUUID     string
	Source         string
	ExcludeSources []string
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var (
		id                                                 int64
		p                                                  model.Payload
		contentType, frbr, title, subTitle, medium         sql.NullString
		alternative, authors, contributors, publisher      sql.NullString
		identifiers, languages, dates, subjects, rights    sql.NullString
		hasPart, measurements, hasVersion, spatial, extent sql.NullString
		summary, toc, volume, location                     sql.NullString
		created, modified                                  dbTime
		clustered                                          int
	)

	err := row.Scan(&id, &p.UUID, &p.SourceID, &p.Source, &contentType, &frbr, &clustered,
		&title, &subTitle, &alternative, &medium, &authors, &contributors, &publisher, &identifiers,
		&languages, &dates, &subjects, &rights, &hasPart, &measurements, &hasVersion, &spatial,
		&extent, &summary, &toc, &volume, &location, &created, &modified)
	if err != nil {
		return nil, err
	}

	p.ContentType = contentType.String
	p.FRBRStatus = frbr.String
	p.Title = title.String
	p.SubTitle = subTitle.String
	p.Medium = medium.String
	p.HasVersion = hasVersion.String
	p.Spatial = spatial.String
	p.Extent = extent.String
	p.Summary = summary.String
	p.TableOfContents = toc.String
	p.Volume = volume.String
	p.PhysicalLocation = location.String

	for _, f := range []struct {
		col  sql.NullString
		dest *[]string
	}{
		{alternative, &p.Alternative},
		{authors, &p.Authors},
		{contributors, &p.Contributors},
		{publisher, &p.Publisher},
		{identifiers, &p.Identifiers},
		{languages, &p.Languages},
		{dates, &p.Dates},
		{subjects, &p.Subjects},
		{rights, &p.Rights},
		{hasPart, &p.HasPart},
		{measurements, &p.Measurements},
	} {
		if err := decodeJSON(f.col, f.dest); err != nil {
			return nil, fmt.Errorf("record %d: %w", id, err)
		}
	}

	r, err := p.Record()
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", id, err)
	}
	r.ID = id
	r.ClusterStatus = clustered == 1
	r.DateCreated = created.Time
	r.DateModified = modified.Time
	return r, nil
}

// recordArgs returns the descriptive column values of r, round-tripping
// structured fields through the upstream delimited encoding.
func recordArgs(r *model.Record) []any {
	p := model.PayloadOf(r)
	return []any{
		nullString(r.ContentType),
		nullString(r.Title),
		nullString(r.SubTitle),
		encodeJSON(p.Alternative),
		nullString(r.Medium),
		encodeJSON(p.Authors),
		encodeJSON(p.Contributors),
		encodeJSON(p.Publisher),
		encodeJSON(p.Identifiers),
		encodeJSON(p.Languages),
		encodeJSON(p.Dates),
		encodeJSON(p.Subjects),
		encodeJSON(p.Rights),
		encodeJSON(p.HasPart),
		encodeJSON(p.Measurements),
		nullString(p.HasVersion),
		nullString(r.PublicationPlace),
		nullString(r.Extent),
		nullString(r.Summary),
		nullString(r.TableOfContents),
		nullString(r.Volume),
		nullString(r.PhysicalLocation),
	}
}

// UpsertRecords writes records keyed by source_id. A record whose source_id
// already exists is overwritten in place, its cluster_status reset to false
// and its frbr_status reset to to_do unless keepStatus reports its source as
// one whose status must be preserved. IDs and UUIDs are set on the records.
func (s *Store) UpsertRecords(ctx context.Context, records []*model.Record, keepStatus func(source string) bool) error {
	return s.WithTx(ctx, func(tx *Store) error {
		now := formatTime(time.Now())
		for _, r := range records {
			if r.UUID == "" {
				r.UUID = uuid.NewString()
			}
			status := r.FRBRStatus
			if status == "" {
				status = model.FRBRToDo
			}
			keep := keepStatus != nil && keepStatus(r.Source)

			args := []any{r.UUID, r.SourceID, r.Source, string(status)}
			args = append(args, recordArgs(r)...)
			args = append(args, now, now, keep)

			err := tx.q.QueryRowContext(ctx, `
				INSERT INTO records (uuid, source_id, source, frbr_status, cluster_status,
					content_type, title, sub_title, alternative, medium, authors, contributors,
					publisher, identifiers, languages, dates, subjects, rights, has_part,
					measurements, has_version, spatial, extent, summary, table_of_contents,
					volume, physical_location, date_created, date_modified)
				VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(source_id) DO UPDATE SET
					source = excluded.source,
					content_type = excluded.content_type,
					title = excluded.title,
					sub_title = excluded.sub_title,
					alternative = excluded.alternative,
					medium = excluded.medium,
					authors = excluded.authors,
					contributors = excluded.contributors,
					publisher = excluded.publisher,
					identifiers = excluded.identifiers,
					languages = excluded.languages,
					dates = excluded.dates,
					subjects = excluded.subjects,
					rights = excluded.rights,
					has_part = excluded.has_part,
					measurements = excluded.measurements,
					has_version = excluded.has_version,
					spatial = excluded.spatial,
					extent = excluded.extent,
					summary = excluded.summary,
					table_of_contents = excluded.table_of_contents,
					volume = excluded.volume,
					physical_location = excluded.physical_location,
					cluster_status = 0,
					frbr_status = CASE WHEN ? THEN records.frbr_status ELSE 'to_do' END,
					date_modified = excluded.date_modified
				RETURNING id, uuid
			`, args...).Scan(&r.ID, &r.UUID)
			if err != nil {
				return fmt.Errorf("failed to upsert record %s: %w", r.SourceID, err)
			}

			if err := tx.replaceRecordIdentifiers(ctx, r.ID, r.Identifiers); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) replaceRecordIdentifiers(ctx context.Context, recordID int64, ids []model.Identifier) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM record_identifiers WHERE record_id = ?`, recordID); err != nil {
		return fmt.Errorf("failed to clear identifiers of record %d: %w", recordID, err)
	}
	for _, id := range ids {
		if id.Value == "" {
			continue
		}
		_, err := s.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO record_identifiers (record_id, id_key) VALUES (?, ?)
		`, recordID, id.Key())
		if err != nil {
			return fmt.Errorf("failed to index identifier %s of record %d: %w", id.Key(), recordID, err)
		}
	}
	return nil
}

// GetRecord returns a record by internal id, or nil if it does not exist.
func (s *Store) GetRecord(ctx context.Context, id int64) (*model.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %d: %w", id, err)
	}
	return r, nil
}

// GetRecordBySourceID returns a record by its source_id, or nil.
func (s *Store) GetRecordBySourceID(ctx context.Context, sourceID string) (*model.Record, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE source_id = ?`, sourceID)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", sourceID, err)
	}
	return r, nil
}

// GetRecordsByIDs returns the records with the given ids ordered by id.
func (s *Store) GetRecordsByIDs(ctx context.Context, ids []int64) ([]*model.Record, error) {
	var records []*model.Record
	for _, chunk := range chunks(ids, maxInParams) {
		rows, err := s.q.QueryContext(ctx, `
			SELECT `+recordColumns+` FROM records
			WHERE id IN (`+placeholders(len(chunk))+`)
			ORDER BY id
		`, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to load records: %w", err)
		}
		batch, err := collectRecords(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

func collectRecords(rows *sql.Rows) ([]*model.Record, error) {
	defer rows.Close()
	var records []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordsWithIdentifiers returns titled records carrying any of the given
// identifier keys ("value|authority"). Only id, uuid, title and identifiers
// are populated.
func (s *Store) RecordsWithIdentifiers(ctx context.Context, keys []string) ([]*model.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT r.id, r.uuid, r.title, r.identifiers
		FROM record_identifiers ri
		JOIN records r ON r.id = ri.record_id
		WHERE ri.id_key IN (`+placeholders(len(keys))+`)
		  AND r.title IS NOT NULL
		ORDER BY r.id
	`, toArgs(keys)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query identifier overlap: %w", err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		var r model.Record
		var ids sql.NullString
		if err := rows.Scan(&r.ID, &r.UUID, &r.Title, &ids); err != nil {
			return nil, fmt.Errorf("failed to scan match candidate: %w", err)
		}
		var raw []string
		if err := decodeJSON(ids, &raw); err != nil {
			return nil, fmt.Errorf("record %d identifiers: %w", r.ID, err)
		}
		r.Identifiers = model.ParseAll(raw, model.ParseIdentifier)
		records = append(records, &r)
	}
	return records, rows.Err()
}

func pendingWhere(filter RecordFilter) (string, []any) {
	clauses := []string{
		"frbr_status = 'complete'",
		"cluster_status = 0",
		"title IS NOT NULL",
	}
	var args []any

	if len(filter.ExcludeSources) > 0 {
		clauses = append(clauses, "source NOT IN ("+placeholders(len(filter.ExcludeSources))+")")
		args = append(args, toArgs(filter.ExcludeSources)...)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "date_modified >= ?")
		args = append(args, formatTime(filter.Since))
	}
	if filter.RecordUUID != "" {
		clauses = append(clauses, "uuid = ?")
		args = append(args, filter.RecordUUID)
	}
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filter.Source)
	}
	return strings.Join(clauses, " AND "), args
}

// NextPendingRecord returns the lowest-id record after afterID that is
// eligible for clustering under filter, or nil when none remain.
func (s *Store) NextPendingRecord(ctx context.Context, filter RecordFilter, afterID int64) (*model.Record, error) {
	where, args := pendingWhere(filter)
	args = append(args, afterID)

	row := s.q.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE `+where+` AND id > ?
		ORDER BY id
		LIMIT 1
	`, args...)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending record: %w", err)
	}
	return r, nil
}

// CountPendingRecords counts records eligible for clustering under filter.
func (s *Store) CountPendingRecords(ctx context.Context, filter RecordFilter) (int, error) {
	where, args := pendingWhere(filter)
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending records: %w", err)
	}
	return n, nil
}

// MarkClustered sets cluster_status and completes frbr_status for ids.
func (s *Store) MarkClustered(ctx context.Context, ids []int64) error {
	for _, chunk := range chunks(ids, maxInParams) {
		_, err := s.q.ExecContext(ctx, `
			UPDATE records SET cluster_status = 1, frbr_status = 'complete'
			WHERE id IN (`+placeholders(len(chunk))+`)
		`, toArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("failed to mark records clustered: %w", err)
		}
	}
	return nil
}

// SetFRBRStatus updates frbr_status for the given source ids.
func (s *Store) SetFRBRStatus(ctx context.Context, sourceIDs []string, status model.FRBRStatus) error {
	for _, chunk := range chunks(sourceIDs, maxInParams) {
		args := append([]any{string(status)}, toArgs(chunk)...)
		_, err := s.q.ExecContext(ctx, `
			UPDATE records SET frbr_status = ?
			WHERE source_id IN (`+placeholders(len(chunk))+`)
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to update frbr status: %w", err)
		}
	}
	return nil
}

// RecordCounts summarizes the record table.
type RecordCounts struct {
	Total     int
	Clustered int
	Pending   int
}

// CountRecords returns record totals by status.
func (s *Store) CountRecords(ctx context.Context) (*RecordCounts, error) {
	var c RecordCounts
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(cluster_status), 0),
		       COALESCE(SUM(CASE WHEN cluster_status = 0 AND frbr_status = 'complete' THEN 1 ELSE 0 END), 0)
		FROM records
	`).Scan(&c.Total, &c.Clustered, &c.Pending)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	return &c, nil
}
