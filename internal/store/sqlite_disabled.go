//go:build !sqlite
// +build !sqlite

package store

import (
	"errors"

	"github.com/rs/zerolog"
)

func openSQLite(path string, log zerolog.Logger) (Backend, error) {
	_ = path
	_ = log
	return nil, errors.New("sqlite storage not built: build with -tags sqlite")
}
