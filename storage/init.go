package storage

func init() {
	RegisterAdapter(isSQLDB, newSQLAdapter)
	RegisterAdapter(isMongoDB, newMongoAdapter)

	// drivers
	RegisterDriver("sqlite", newSQLDriver(sqliteDialect))
	RegisterDriver("postgres", newSQLDriver(postgresDialect))
	RegisterDriver("mongodb", newMongoDriver)

	// openers, keyed by DSN scheme
	RegisterOpener("", openSQLite)
	RegisterOpener("file", openSQLite)
	RegisterOpener("postgres", openPostgres)
	RegisterOpener("postgresql", openPostgres)
	RegisterOpener("mongodb", openMongo)
	RegisterOpener("mongodb+srv", openMongo)
}
