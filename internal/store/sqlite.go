//go:build sqlite
// +build sqlite

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"

	"lessonbot/internal/schedule"
)

// sqliteBackend keeps the same full-snapshot contract as the file backend:
// Save replaces the whole users table in one transaction.
type sqliteBackend struct {
	db  *sql.DB
	log zerolog.Logger
}

func openSQLite(path string, log zerolog.Logger) (Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			chat_id      INTEGER PRIMARY KEY,
			group_key    TEXT NOT NULL DEFAULT '',
			learn_notify INTEGER NOT NULL DEFAULT 0,
			offset_min   INTEGER NOT NULL DEFAULT 0,
			lessons      TEXT NOT NULL DEFAULT '[]'
		)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteBackend{db: db, log: log}, nil
}

func (b *sqliteBackend) Load() (map[int64]schedule.User, error) {
	rows, err := b.db.Query(`SELECT chat_id, group_key, learn_notify, offset_min, lessons FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := map[int64]schedule.User{}
	for rows.Next() {
		var (
			chatID     int64
			group      string
			learnInt   int
			offset     int
			lessonsRaw string
		)
		if err := rows.Scan(&chatID, &group, &learnInt, &offset, &lessonsRaw); err != nil {
			return nil, err
		}
		var lessons []schedule.CustomLesson
		if err := json.Unmarshal([]byte(lessonsRaw), &lessons); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("skipping unreadable lesson list")
			lessons = nil
		}
		users[chatID] = schedule.User{
			ChatID:        chatID,
			Group:         group,
			LearnNotify:   learnInt != 0,
			OffsetMinutes: offset,
			Lessons:       lessons,
		}
	}
	return users, rows.Err()
}

func (b *sqliteBackend) Save(users map[int64]schedule.User) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM users`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO users(chat_id, group_key, learn_notify, offset_min, lessons) VALUES(?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for id, u := range users {
		lessons, err := json.Marshal(u.Lessons)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		learn := 0
		if u.LearnNotify {
			learn = 1
		}
		if _, err := stmt.Exec(id, u.Group, learn, u.OffsetMinutes, string(lessons)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *sqliteBackend) Close() error { return b.db.Close() }
