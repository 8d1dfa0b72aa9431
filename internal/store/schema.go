package store

// Schema v1 - records and the Work/Edition/Item graph
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Normalized source records. Repeating fields hold JSON arrays of the
-- upstream pipe-delimited strings.
CREATE TABLE IF NOT EXISTS records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uuid TEXT UNIQUE NOT NULL,
  source_id TEXT UNIQUE NOT NULL,
  source TEXT NOT NULL,
  content_type TEXT,
  frbr_status TEXT NOT NULL DEFAULT 'to_do',
  cluster_status INTEGER NOT NULL DEFAULT 0,
  title TEXT,
  sub_title TEXT,
  alternative TEXT,
  medium TEXT,
  authors TEXT,
  contributors TEXT,
  publisher TEXT,
  identifiers TEXT,
  languages TEXT,
  dates TEXT,
  subjects TEXT,
  rights TEXT,
  has_part TEXT,
  measurements TEXT,
  has_version TEXT,
  spatial TEXT,
  extent TEXT,
  summary TEXT,
  table_of_contents TEXT,
  volume TEXT,
  physical_location TEXT,
  date_created DATETIME DEFAULT CURRENT_TIMESTAMP,
  date_modified DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_pending ON records(frbr_status, cluster_status, id);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
CREATE INDEX IF NOT EXISTS idx_records_modified ON records(date_modified);

-- Identifier tokens ("value|authority") per record for overlap queries
CREATE TABLE IF NOT EXISTS record_identifiers (
  record_id INTEGER NOT NULL REFERENCES records(id) ON DELETE CASCADE,
  id_key TEXT NOT NULL,
  PRIMARY KEY (record_id, id_key)
);

CREATE INDEX IF NOT EXISTS idx_record_identifiers_key ON record_identifiers(id_key);

CREATE TABLE IF NOT EXISTS works (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uuid TEXT UNIQUE NOT NULL,
  title TEXT,
  sort_title TEXT,
  sub_title TEXT,
  alt_titles TEXT,
  medium TEXT,
  authors TEXT,
  contributors TEXT,
  subjects TEXT,
  languages TEXT,
  measurements TEXT,
  date_created DATETIME DEFAULT CURRENT_TIMESTAMP,
  date_modified DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS editions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uuid TEXT UNIQUE NOT NULL,
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  title TEXT,
  sub_title TEXT,
  publication_date TEXT,
  publication_place TEXT,
  edition_statement TEXT,
  volume TEXT,
  extent TEXT,
  summary TEXT,
  table_of_contents TEXT,
  languages TEXT,
  contributors TEXT,
  publishers TEXT,
  dates TEXT,
  dcdw_uuids TEXT,
  date_created DATETIME DEFAULT CURRENT_TIMESTAMP,
  date_modified DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_editions_work ON editions(work_id);

-- Back-links from editions to the records folded into them (dcdw_uuids)
CREATE TABLE IF NOT EXISTS edition_records (
  edition_id INTEGER NOT NULL REFERENCES editions(id) ON DELETE CASCADE,
  record_uuid TEXT NOT NULL,
  PRIMARY KEY (edition_id, record_uuid)
);

CREATE INDEX IF NOT EXISTS idx_edition_records_uuid ON edition_records(record_uuid);

CREATE TABLE IF NOT EXISTS items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uuid TEXT UNIQUE NOT NULL,
  edition_id INTEGER NOT NULL REFERENCES editions(id) ON DELETE CASCADE,
  source TEXT,
  content_type TEXT,
  physical_location TEXT,
  contributors TEXT,
  date_created DATETIME DEFAULT CURRENT_TIMESTAMP,
  date_modified DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_edition ON items(edition_id);

-- Shared reference tables
CREATE TABLE IF NOT EXISTS identifiers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  identifier TEXT NOT NULL,
  authority TEXT NOT NULL,
  UNIQUE (identifier, authority)
);

CREATE TABLE IF NOT EXISTS links (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  url TEXT UNIQUE NOT NULL,
  media_type TEXT,
  flags TEXT
);

CREATE TABLE IF NOT EXISTS rights (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  edition_id INTEGER REFERENCES editions(id) ON DELETE CASCADE,
  item_id INTEGER REFERENCES items(id) ON DELETE CASCADE,
  source TEXT,
  license TEXT,
  reason TEXT,
  statement TEXT,
  date TEXT
);

CREATE INDEX IF NOT EXISTS idx_rights_edition ON rights(edition_id);
CREATE INDEX IF NOT EXISTS idx_rights_item ON rights(item_id);

-- Associations
CREATE TABLE IF NOT EXISTS work_identifiers (
  work_id INTEGER NOT NULL REFERENCES works(id) ON DELETE CASCADE,
  identifier_id INTEGER NOT NULL REFERENCES identifiers(id),
  PRIMARY KEY (work_id, identifier_id)
);

CREATE TABLE IF NOT EXISTS edition_identifiers (
  edition_id INTEGER NOT NULL REFERENCES editions(id) ON DELETE CASCADE,
  identifier_id INTEGER NOT NULL REFERENCES identifiers(id),
  PRIMARY KEY (edition_id, identifier_id)
);

CREATE TABLE IF NOT EXISTS item_identifiers (
  item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
  identifier_id INTEGER NOT NULL REFERENCES identifiers(id),
  PRIMARY KEY (item_id, identifier_id)
);

CREATE TABLE IF NOT EXISTS edition_links (
  edition_id INTEGER NOT NULL REFERENCES editions(id) ON DELETE CASCADE,
  link_id INTEGER NOT NULL REFERENCES links(id),
  PRIMARY KEY (edition_id, link_id)
);

CREATE TABLE IF NOT EXISTS item_links (
  item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
  link_id INTEGER NOT NULL REFERENCES links(id),
  PRIMARY KEY (item_id, link_id)
);
`

// Schema v2 - clustering run history
const schemaV2 = `
CREATE TABLE IF NOT EXISTS cluster_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  process_type TEXT NOT NULL,
  params TEXT,
  status TEXT NOT NULL DEFAULT 'running',
  last_record_id INTEGER NOT NULL DEFAULT 0,
  attempted INTEGER NOT NULL DEFAULT 0,
  clustered INTEGER NOT NULL DEFAULT 0,
  works_indexed INTEGER NOT NULL DEFAULT 0,
  works_retracted INTEGER NOT NULL DEFAULT 0,
  failures TEXT,
  error TEXT,
  started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_cluster_runs_started ON cluster_runs(started_at);
`
