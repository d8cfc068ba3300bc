package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// User is the pipeline's view of an account row. Encrypted fields hold the
// stored ciphertext; an empty string means the field was never set.
type User struct {
	ID           int64
	Plan         string
	UsageCount   int
	DiskTokenEnc string
}

// Student is the pipeline's view of a student profile row.
type Student struct {
	ID         int64
	UserID     int64
	NameEnc    string
	SubjectEnc string
	LevelEnc   string
	NotesEnc   string
}

// Store runs profile lookups and usage accounting. Queries are written with
// ? placeholders and rebound for postgres.
type Store struct {
	db       *sql.DB
	postgres bool
}

// NewStore wraps the opened database.
func NewStore(db *sql.DB, driver string) *Store {
	d := strings.ToLower(driver)
	return &Store{db: db, postgres: d == "postgres" || d == "pgx"}
}

func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// GetUser returns the account row, or nil when absent.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	var (
		u     User
		token sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT telegram_id, plan, usage_count, disk_token_enc FROM users WHERE telegram_id = ?`),
		userID,
	).Scan(&u.ID, &u.Plan, &u.UsageCount, &token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	u.DiskTokenEnc = token.String
	return &u, nil
}

// GetStudent returns the student profile row, or nil when absent.
func (s *Store) GetStudent(ctx context.Context, studentID int64) (*Student, error) {
	var (
		st                         Student
		name, subject, level, note sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, user_id, name_enc, subject_enc, level_enc, notes_enc FROM students WHERE id = ?`),
		studentID,
	).Scan(&st.ID, &st.UserID, &name, &subject, &level, &note)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student %d: %w", studentID, err)
	}
	st.NameEnc = name.String
	st.SubjectEnc = subject.String
	st.LevelEnc = level.String
	st.NotesEnc = note.String
	return &st, nil
}

// ReserveUsage atomically claims one unit of quota: the counter is
// incremented only while it is still below limit, and the return value
// reports whether the claim succeeded. A non-positive limit disables
// enforcement and always increments.
func (s *Store) ReserveUsage(ctx context.Context, userID int64, limit int) (bool, error) {
	if limit <= 0 {
		_, err := s.db.ExecContext(ctx,
			s.rebind(`UPDATE users SET usage_count = usage_count + 1 WHERE telegram_id = ?`), userID)
		if err != nil {
			return false, fmt.Errorf("reserve usage %d: %w", userID, err)
		}
		return true, nil
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE users SET usage_count = usage_count + 1 WHERE telegram_id = ? AND usage_count < ?`),
		userID, limit)
	if err != nil {
		return false, fmt.Errorf("reserve usage %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve usage %d: %w", userID, err)
	}
	return n > 0, nil
}

// ReleaseUsage returns a previously reserved unit after a task failed to
// complete, so retries are not billed twice.
func (s *Store) ReleaseUsage(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE users SET usage_count = usage_count - 1 WHERE telegram_id = ? AND usage_count > 0`),
		userID)
	if err != nil {
		return fmt.Errorf("release usage %d: %w", userID, err)
	}
	return nil
}
