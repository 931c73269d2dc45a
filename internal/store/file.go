package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"lessonbot/internal/schedule"
)

// fileBackend keeps the whole user table in one JSON document, rewritten
// via tmp-file + rename so a crash mid-write never corrupts the snapshot.
type fileBackend struct {
	path string
	log  zerolog.Logger
}

func openFile(path string, log zerolog.Logger) (Backend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{path: path, log: log}, nil
}

func (b *fileBackend) Load() (map[int64]schedule.User, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[int64]schedule.User{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Keys are stringified chat IDs. Values are either full records or,
	// in the legacy format, a bare group string.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	users := make(map[int64]schedule.User, len(raw))
	for key, val := range raw {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			b.log.Warn().Str("key", key).Msg("skipping non-numeric user key")
			continue
		}

		var legacyGroup string
		if err := json.Unmarshal(val, &legacyGroup); err == nil {
			b.log.Info().Int64("chat_id", chatID).Msg("migrated legacy string-format user")
			users[chatID] = schedule.User{ChatID: chatID, Group: legacyGroup}
			continue
		}

		var u schedule.User
		if err := json.Unmarshal(val, &u); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("skipping unreadable user record")
			continue
		}
		u.ChatID = chatID
		users[chatID] = u
	}
	return users, nil
}

func (b *fileBackend) Save(users map[int64]schedule.User) error {
	out := make(map[string]schedule.User, len(users))
	for id, u := range users {
		out[strconv.FormatInt(id, 10)] = u
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *fileBackend) Close() error { return nil }
