// Package migrations generates SQL migration files for the tables of the SQL
// partial store: requests, partials and summaries, for PostgreSQL, MySQL/MariaDB
// and SQLite.
package migrations
