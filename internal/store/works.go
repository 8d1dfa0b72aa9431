package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/franz/bibcluster/internal/model"
	"github.com/franz/bibcluster/internal/util"
)

// EditionRef identifies a persisted edition and its parent work.
type EditionRef struct {
	ID       int64
	UUID     string
	WorkID   int64
	WorkUUID string
}

// FindEditionsByRecordUUIDs returns persisted editions whose dcdw_uuids
// overlap recordUUIDs, ordered by edition id.
func (s *Store) FindEditionsByRecordUUIDs(ctx context.Context, recordUUIDs []string) ([]EditionRef, error) {
	seen := make(map[int64]bool)
	var refs []EditionRef

	for _, chunk := range chunks(recordUUIDs, maxInParams) {
		rows, err := s.q.QueryContext(ctx, `
			SELECT DISTINCT e.id, e.uuid, e.work_id, w.uuid
			FROM edition_records er
			JOIN editions e ON e.id = er.edition_id
			JOIN works w ON w.id = e.work_id
			WHERE er.record_uuid IN (`+placeholders(len(chunk))+`)
		`, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to find editions by record uuid: %w", err)
		}
		for rows.Next() {
			var ref EditionRef
			if err := rows.Scan(&ref.ID, &ref.UUID, &ref.WorkID, &ref.WorkUUID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan edition: %w", err)
			}
			if !seen[ref.ID] {
				seen[ref.ID] = true
				refs = append(refs, ref)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// RecordIDsInWorksOf returns the ids of every record held by a work that
// already holds one of recordUUIDs, ordered by id.
func (s *Store) RecordIDsInWorksOf(ctx context.Context, recordUUIDs []string) ([]int64, error) {
	seen := make(map[int64]bool)
	var ids []int64

	for _, chunk := range chunks(recordUUIDs, maxInParams) {
		rows, err := s.q.QueryContext(ctx, `
			SELECT DISTINCT r.id
			FROM records r
			JOIN edition_records er ON er.record_uuid = r.uuid
			JOIN editions e ON e.id = er.edition_id
			WHERE e.work_id IN (
				SELECT e2.work_id
				FROM edition_records er2
				JOIN editions e2 ON e2.id = er2.edition_id
				WHERE er2.record_uuid IN (`+placeholders(len(chunk))+`)
			)
		`, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to find records of overlapping works: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan record id: %w", err)
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DeleteEdition removes an edition and, by cascade, its items.
func (s *Store) DeleteEdition(ctx context.Context, id int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM editions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete edition %d: %w", id, err)
	}
	return nil
}

// CountEditions returns the number of editions owned by a work.
func (s *Store) CountEditions(ctx context.Context, workID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM editions WHERE work_id = ?`, workID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count editions of work %d: %w", workID, err)
	}
	return n, nil
}

// FindIdentifierID returns the id of the (value, authority) identifier row,
// or 0 if none exists.
func (s *Store) FindIdentifierID(ctx context.Context, value, authority string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `
		SELECT id FROM identifiers WHERE identifier = ? AND authority = ?
	`, value, authority).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find identifier %s|%s: %w", value, authority, err)
	}
	return id, nil
}

// FindLinkID returns the id of the link row for url, or 0 if none exists.
func (s *Store) FindLinkID(ctx context.Context, url string) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx, `SELECT id FROM links WHERE url = ?`, url).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find link %s: %w", url, err)
	}
	return id, nil
}

// SaveWork upserts a work with its editions and items as one unit. Rows with
// a non-zero ID are updated in place; editions of the work missing from
// w.Editions are deleted. Identifiers and links with ID 0 are inserted once
// per save and shared by every owner in the work.
func (s *Store) SaveWork(ctx context.Context, w *model.Work) error {
	return s.WithTx(ctx, func(tx *Store) error {
		return tx.saveWork(ctx, w)
	})
}

// unitOfWork carries the rows inserted during one SaveWork.
type unitOfWork struct {
	now         string
	identifiers map[string]int64
	links       map[string]int64
}

func (s *Store) saveWork(ctx context.Context, w *model.Work) error {
	u := &unitOfWork{
		now:         formatTime(time.Now()),
		identifiers: make(map[string]int64),
		links:       make(map[string]int64),
	}
	now := u.now
	if w.UUID == "" {
		w.UUID = uuid.NewString()
	}

	fields := []any{
		nullString(w.Title), nullString(w.SortTitle), nullString(w.SubTitle),
		encodeJSON(w.AltTitles), nullString(w.Medium), encodeJSON(w.Authors),
		encodeJSON(w.Contributors), encodeJSON(w.Subjects), encodeJSON(w.Languages),
		encodeJSON(w.Measurements),
	}

	if w.ID == 0 {
		args := append([]any{w.UUID}, fields...)
		args = append(args, now, now)
		err := s.q.QueryRowContext(ctx, `
			INSERT INTO works (uuid, title, sort_title, sub_title, alt_titles, medium,
				authors, contributors, subjects, languages, measurements, date_created, date_modified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, args...).Scan(&w.ID)
		if err != nil {
			return fmt.Errorf("failed to insert work: %w", err)
		}
	} else {
		args := append(fields, now, w.ID)
		res, err := s.q.ExecContext(ctx, `
			UPDATE works SET title = ?, sort_title = ?, sub_title = ?, alt_titles = ?, medium = ?,
				authors = ?, contributors = ?, subjects = ?, languages = ?, measurements = ?,
				date_modified = ?
			WHERE id = ?
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to update work %d: %w", w.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("work %d: %w", w.ID, util.ErrNotFound)
		}
	}

	if err := s.linkIdentifiers(ctx, u, "work_identifiers", "work_id", w.ID, w.Identifiers); err != nil {
		return err
	}

	keep := make([]int64, 0, len(w.Editions))
	for _, e := range w.Editions {
		e.WorkID = w.ID
		if err := s.saveEdition(ctx, e, u); err != nil {
			return err
		}
		keep = append(keep, e.ID)
	}

	query := `DELETE FROM editions WHERE work_id = ?`
	args := []any{w.ID}
	if len(keep) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(keep)) + `)`
		args = append(args, toArgs(keep)...)
	}
	if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to prune editions of work %d: %w", w.ID, err)
	}
	return nil
}

func (s *Store) saveEdition(ctx context.Context, e *model.Edition, u *unitOfWork) error {
	now := u.now
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}

	fields := []any{
		e.WorkID, nullString(e.Title), nullString(e.SubTitle), nullString(e.PublicationDate),
		nullString(e.PublicationPlace), nullString(e.EditionStatement), nullString(e.Volume),
		nullString(e.Extent), nullString(e.Summary), nullString(e.TableOfContents),
		encodeJSON(e.Languages), encodeJSON(e.Contributors), encodeJSON(e.Publishers),
		encodeJSON(e.Dates), encodeJSON(e.DCDWUUIDs),
	}

	if e.ID == 0 {
		args := append([]any{e.UUID}, fields...)
		args = append(args, now, now)
		err := s.q.QueryRowContext(ctx, `
			INSERT INTO editions (uuid, work_id, title, sub_title, publication_date, publication_place,
				edition_statement, volume, extent, summary, table_of_contents, languages,
				contributors, publishers, dates, dcdw_uuids, date_created, date_modified)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, args...).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("failed to insert edition: %w", err)
		}
	} else {
		args := append(fields, now, e.ID)
		res, err := s.q.ExecContext(ctx, `
			UPDATE editions SET work_id = ?, title = ?, sub_title = ?, publication_date = ?,
				publication_place = ?, edition_statement = ?, volume = ?, extent = ?, summary = ?,
				table_of_contents = ?, languages = ?, contributors = ?, publishers = ?, dates = ?,
				dcdw_uuids = ?, date_modified = ?
			WHERE id = ?
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to update edition %d: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("edition %d: %w", e.ID, util.ErrNotFound)
		}
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM edition_records WHERE edition_id = ?`, e.ID); err != nil {
		return fmt.Errorf("failed to clear records of edition %d: %w", e.ID, err)
	}
	for _, recordUUID := range e.DCDWUUIDs {
		_, err := s.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO edition_records (edition_id, record_uuid) VALUES (?, ?)
		`, e.ID, recordUUID)
		if err != nil {
			return fmt.Errorf("failed to link record %s to edition %d: %w", recordUUID, e.ID, err)
		}
	}

	if err := s.linkIdentifiers(ctx, u, "edition_identifiers", "edition_id", e.ID, e.Identifiers); err != nil {
		return err
	}
	if err := s.linkLinks(ctx, u, "edition_links", "edition_id", e.ID, e.Links); err != nil {
		return err
	}
	if err := s.replaceRights(ctx, "edition_id", e.ID, e.Rights); err != nil {
		return err
	}

	// Items are owned exclusively by the edition and rebuilt on every save.
	if _, err := s.q.ExecContext(ctx, `DELETE FROM items WHERE edition_id = ?`, e.ID); err != nil {
		return fmt.Errorf("failed to clear items of edition %d: %w", e.ID, err)
	}
	for _, it := range e.Items {
		it.EditionID = e.ID
		if err := s.insertItem(ctx, it, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertItem(ctx context.Context, it *model.Item, u *unitOfWork) error {
	if it.UUID == "" {
		it.UUID = uuid.NewString()
	}
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO items (uuid, edition_id, source, content_type, physical_location, contributors,
			date_created, date_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, it.UUID, it.EditionID, nullString(it.Source), nullString(it.ContentType),
		nullString(it.PhysicalLocation), encodeJSON(it.Contributors), u.now, u.now).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}

	if err := s.linkIdentifiers(ctx, u, "item_identifiers", "item_id", it.ID, it.Identifiers); err != nil {
		return err
	}
	if err := s.linkLinks(ctx, u, "item_links", "item_id", it.ID, it.Links); err != nil {
		return err
	}
	return s.replaceRights(ctx, "item_id", it.ID, it.Rights)
}

// linkIdentifiers replaces the association rows of one owner. Identifiers
// with ID 0 are inserted first unless this save already inserted them; a
// (value, authority) already persisted by another save surfaces as a
// constraint error.
func (s *Store) linkIdentifiers(ctx context.Context, u *unitOfWork, table, ownerCol string, ownerID int64, ids []model.Identifier) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+ownerCol+` = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for i := range ids {
		if ids[i].ID == 0 {
			ids[i].ID = u.identifiers[ids[i].Key()]
		}
		if ids[i].ID == 0 {
			err := s.q.QueryRowContext(ctx, `
				INSERT INTO identifiers (identifier, authority) VALUES (?, ?) RETURNING id
			`, ids[i].Value, ids[i].Authority).Scan(&ids[i].ID)
			if err != nil {
				return fmt.Errorf("failed to insert identifier %s: %w", ids[i].Key(), err)
			}
			u.identifiers[ids[i].Key()] = ids[i].ID
		}
		_, err := s.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO `+table+` (`+ownerCol+`, identifier_id) VALUES (?, ?)
		`, ownerID, ids[i].ID)
		if err != nil {
			return fmt.Errorf("failed to link identifier %s: %w", ids[i].Key(), err)
		}
	}
	return nil
}

func (s *Store) linkLinks(ctx context.Context, u *unitOfWork, table, ownerCol string, ownerID int64, links []model.Link) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+ownerCol+` = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for i := range links {
		if links[i].ID == 0 {
			links[i].ID = u.links[links[i].URL]
		}
		if links[i].ID == 0 {
			err := s.q.QueryRowContext(ctx, `
				INSERT INTO links (url, media_type, flags) VALUES (?, ?, ?) RETURNING id
			`, links[i].URL, nullString(links[i].MediaType), encodeJSON(links[i].Flags)).Scan(&links[i].ID)
			if err != nil {
				return fmt.Errorf("failed to insert link %s: %w", links[i].URL, err)
			}
			u.links[links[i].URL] = links[i].ID
		}
		_, err := s.q.ExecContext(ctx, `
			INSERT OR IGNORE INTO `+table+` (`+ownerCol+`, link_id) VALUES (?, ?)
		`, ownerID, links[i].ID)
		if err != nil {
			return fmt.Errorf("failed to link %s: %w", links[i].URL, err)
		}
	}
	return nil
}

func (s *Store) replaceRights(ctx context.Context, ownerCol string, ownerID int64, rights []model.Rights) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM rights WHERE `+ownerCol+` = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to clear rights: %w", err)
	}
	for _, r := range rights {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO rights (`+ownerCol+`, source, license, reason, statement, date)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ownerID, nullString(r.Source), nullString(r.License), nullString(r.Reason),
			nullString(r.Statement), nullString(r.Date))
		if err != nil {
			return fmt.Errorf("failed to insert rights: %w", err)
		}
	}
	return nil
}

// GetWork loads a work with its editions, items, identifiers, links and
// rights. Returns nil if the work does not exist.
func (s *Store) GetWork(ctx context.Context, id int64) (*model.Work, error) {
	return s.loadWork(ctx, `id = ?`, id)
}

// GetWorkByUUID is GetWork keyed by uuid.
func (s *Store) GetWorkByUUID(ctx context.Context, workUUID string) (*model.Work, error) {
	return s.loadWork(ctx, `uuid = ?`, workUUID)
}

// GetWorks loads several works, skipping ids that no longer exist.
func (s *Store) GetWorks(ctx context.Context, ids []int64) ([]*model.Work, error) {
	works := make([]*model.Work, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWork(ctx, id)
		if err != nil {
			return nil, err
		}
		if w != nil {
			works = append(works, w)
		}
	}
	return works, nil
}

func (s *Store) loadWork(ctx context.Context, where string, arg any) (*model.Work, error) {
	var (
		w                                          model.Work
		title, sortTitle, subTitle, medium         sql.NullString
		altTitles, authors, contributors, subjects sql.NullString
		languages, measurements                    sql.NullString
		created, modified                          dbTime
	)

	err := s.q.QueryRowContext(ctx, `
		SELECT id, uuid, title, sort_title, sub_title, alt_titles, medium, authors, contributors,
			subjects, languages, measurements, date_created, date_modified
		FROM works WHERE `+where, arg).Scan(&w.ID, &w.UUID, &title, &sortTitle, &subTitle,
		&altTitles, &medium, &authors, &contributors, &subjects, &languages, &measurements,
		&created, &modified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load work: %w", err)
	}

	w.Title = title.String
	w.SortTitle = sortTitle.String
	w.SubTitle = subTitle.String
	w.Medium = medium.String
	w.DateCreated = created.Time
	w.DateModified = modified.Time

	for _, f := range []struct {
		col  sql.NullString
		dest any
	}{
		{altTitles, &w.AltTitles},
		{authors, &w.Authors},
		{contributors, &w.Contributors},
		{subjects, &w.Subjects},
		{languages, &w.Languages},
		{measurements, &w.Measurements},
	} {
		if err := decodeJSON(f.col, f.dest); err != nil {
			return nil, fmt.Errorf("work %d: %w", w.ID, err)
		}
	}

	if w.Identifiers, err = s.queryIdentifiers(ctx, "work_identifiers", "work_id", w.ID); err != nil {
		return nil, err
	}
	if w.Editions, err = s.loadEditions(ctx, w.ID); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Store) loadEditions(ctx context.Context, workID int64) ([]*model.Edition, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, uuid, work_id, title, sub_title, publication_date, publication_place,
			edition_statement, volume, extent, summary, table_of_contents, languages,
			contributors, publishers, dates, dcdw_uuids
		FROM editions WHERE work_id = ? ORDER BY id
	`, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to load editions of work %d: %w", workID, err)
	}

	var editions []*model.Edition
	for rows.Next() {
		var (
			e                                                    model.Edition
			title, subTitle, pubDate, pubPlace, statement        sql.NullString
			volume, extent, summary, toc                         sql.NullString
			languages, contributors, publishers, dates, dcdwUUID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UUID, &e.WorkID, &title, &subTitle, &pubDate, &pubPlace,
			&statement, &volume, &extent, &summary, &toc, &languages, &contributors, &publishers,
			&dates, &dcdwUUID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan edition: %w", err)
		}
		e.Title = title.String
		e.SubTitle = subTitle.String
		e.PublicationDate = pubDate.String
		e.PublicationPlace = pubPlace.String
		e.EditionStatement = statement.String
		e.Volume = volume.String
		e.Extent = extent.String
		e.Summary = summary.String
		e.TableOfContents = toc.String

		for _, f := range []struct {
			col  sql.NullString
			dest any
		}{
			{languages, &e.Languages},
			{contributors, &e.Contributors},
			{publishers, &e.Publishers},
			{dates, &e.Dates},
			{dcdwUUID, &e.DCDWUUIDs},
		} {
			if err := decodeJSON(f.col, f.dest); err != nil {
				rows.Close()
				return nil, fmt.Errorf("edition %d: %w", e.ID, err)
			}
		}
		editions = append(editions, &e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, e := range editions {
		if e.Identifiers, err = s.queryIdentifiers(ctx, "edition_identifiers", "edition_id", e.ID); err != nil {
			return nil, err
		}
		if e.Links, err = s.queryLinks(ctx, "edition_links", "edition_id", e.ID); err != nil {
			return nil, err
		}
		if e.Rights, err = s.queryRights(ctx, "edition_id", e.ID); err != nil {
			return nil, err
		}
		if e.Items, err = s.loadItems(ctx, e.ID); err != nil {
			return nil, err
		}
	}
	return editions, nil
}

func (s *Store) loadItems(ctx context.Context, editionID int64) ([]*model.Item, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, uuid, edition_id, source, content_type, physical_location, contributors
		FROM items WHERE edition_id = ? ORDER BY id
	`, editionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load items of edition %d: %w", editionID, err)
	}

	var items []*model.Item
	for rows.Next() {
		var it model.Item
		var source, contentType, location, contributors sql.NullString
		if err := rows.Scan(&it.ID, &it.UUID, &it.EditionID, &source, &contentType, &location, &contributors); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.Source = source.String
		it.ContentType = contentType.String
		it.PhysicalLocation = location.String
		if err := decodeJSON(contributors, &it.Contributors); err != nil {
			rows.Close()
			return nil, fmt.Errorf("item %d: %w", it.ID, err)
		}
		items = append(items, &it)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		if it.Identifiers, err = s.queryIdentifiers(ctx, "item_identifiers", "item_id", it.ID); err != nil {
			return nil, err
		}
		if it.Links, err = s.queryLinks(ctx, "item_links", "item_id", it.ID); err != nil {
			return nil, err
		}
		if it.Rights, err = s.queryRights(ctx, "item_id", it.ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Store) queryIdentifiers(ctx context.Context, table, ownerCol string, ownerID int64) ([]model.Identifier, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT i.id, i.identifier, i.authority
		FROM identifiers i
		JOIN `+table+` a ON a.identifier_id = i.id
		WHERE a.`+ownerCol+` = ?
		ORDER BY i.id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	var ids []model.Identifier
	for rows.Next() {
		var id model.Identifier
		if err := rows.Scan(&id.ID, &id.Value, &id.Authority); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) queryLinks(ctx context.Context, table, ownerCol string, ownerID int64) ([]model.Link, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT l.id, l.url, l.media_type, l.flags
		FROM links l
		JOIN `+table+` a ON a.link_id = l.id
		WHERE a.`+ownerCol+` = ?
		ORDER BY l.id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	defer rows.Close()

	var links []model.Link
	for rows.Next() {
		var l model.Link
		var mediaType, flags sql.NullString
		if err := rows.Scan(&l.ID, &l.URL, &mediaType, &flags); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		l.MediaType = mediaType.String
		if flags.Valid && flags.String != "" {
			if err := json.Unmarshal([]byte(flags.String), &l.Flags); err != nil {
				return nil, fmt.Errorf("link %d flags: %w", l.ID, err)
			}
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *Store) queryRights(ctx context.Context, ownerCol string, ownerID int64) ([]model.Rights, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT source, license, reason, statement, date
		FROM rights WHERE `+ownerCol+` = ? ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rights: %w", err)
	}
	defer rows.Close()

	var rights []model.Rights
	for rows.Next() {
		var source, license, reason, statement, date sql.NullString
		if err := rows.Scan(&source, &license, &reason, &statement, &date); err != nil {
			return nil, fmt.Errorf("failed to scan rights: %w", err)
		}
		rights = append(rights, model.Rights{
			Source:    source.String,
			License:   license.String,
			Reason:    reason.String,
			Statement: statement.String,
			Date:      date.String,
		})
	}
	return rights, rows.Err()
}

// DeleteWorks removes works by uuid together with their editions and items.
// Shared identifier and link rows are kept.
func (s *Store) DeleteWorks(ctx context.Context, uuids []string) (int64, error) {
	var total int64
	for _, chunk := range chunks(uuids, maxInParams) {
		res, err := s.q.ExecContext(ctx, `
			DELETE FROM works WHERE uuid IN (`+placeholders(len(chunk))+`)
		`, toArgs(chunk)...)
		if err != nil {
			return total, fmt.Errorf("failed to delete works: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// ListWorkIDs pages through work ids in ascending order.
func (s *Store) ListWorkIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id FROM works WHERE id > ? ORDER BY id LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list works: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateWorkAgents rewrites the agent lists of a work.
func (s *Store) UpdateWorkAgents(ctx context.Context, workID int64, authors, contributors []model.Agent) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE works SET authors = ?, contributors = ?, date_modified = ? WHERE id = ?
	`, encodeJSON(authors), encodeJSON(contributors), formatTime(time.Now()), workID)
	if err != nil {
		return fmt.Errorf("failed to update agents of work %d: %w", workID, err)
	}
	return nil
}

// GraphCounts summarizes the Work/Edition/Item tables.
type GraphCounts struct {
	Works       int
	Editions    int
	Items       int
	Identifiers int
	Links       int
}

// CountGraph returns row counts of the work graph tables.
func (s *Store) CountGraph(ctx context.Context) (*GraphCounts, error) {
	var c GraphCounts
	err := s.q.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM works),
		       (SELECT COUNT(*) FROM editions),
		       (SELECT COUNT(*) FROM items),
		       (SELECT COUNT(*) FROM identifiers),
		       (SELECT COUNT(*) FROM links)
	`).Scan(&c.Works, &c.Editions, &c.Items, &c.Identifiers, &c.Links)
	if err != nil {
		return nil, fmt.Errorf("failed to count work graph: %w", err)
	}
	return &c, nil
}
