// Package storage provides the relational store for user and student
// profiles, usage counters and quota reservation.
package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database selected by driver. Supported drivers are
// postgres (pgx), sqlite3 and mysql; dsn follows the driver's format.
func Open(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn must be provided")
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(driver) {
	case "postgres", "pgx":
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	case "sqlite", "sqlite3":
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var studentID string
	switch strings.ToLower(driver) {
	case "postgres", "pgx":
		studentID = "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	case "mysql":
		studentID = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	default:
		studentID = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			plan TEXT NOT NULL DEFAULT 'free',
			usage_count INTEGER NOT NULL DEFAULT 0,
			disk_token_enc TEXT
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS students (
			id %s,
			user_id BIGINT NOT NULL,
			name_enc TEXT,
			subject_enc TEXT,
			level_enc TEXT,
			notes_enc TEXT
		)`, studentID),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
