package storage

const (
	schemaVersionTable = "rowstore_schema_version"
	catalogTable       = "rowstore_catalog"
)

var sqliteMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS rowstore_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rowstore_catalog (
			name TEXT NOT NULL PRIMARY KEY,
			definition TEXT NOT NULL,
			date_created TEXT NOT NULL
		)`,
	},
	2: {
		`CREATE UNIQUE INDEX IF NOT EXISTS rowstore_catalog_name_nocase ON rowstore_catalog (lower(name))`,
	},
}

var postgresMigrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS rowstore_schema_version (
			num INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rowstore_catalog (
			name TEXT NOT NULL PRIMARY KEY,
			definition TEXT NOT NULL,
			date_created TIMESTAMPTZ NOT NULL
		)`,
	},
	2: {
		`CREATE UNIQUE INDEX IF NOT EXISTS rowstore_catalog_name_nocase ON rowstore_catalog (lower(name))`,
	},
}
