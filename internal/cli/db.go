package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/booklet/internal/store"
)

// openDB opens the durable store named by --db, falling back to the
// configured db_path. The file must already exist.
func openDB(opts *RootOptions, f *OutputFormatter, flagPath string) (*store.Store, error) {
	path := flagPath
	if path == "" {
		path = opts.Config.DBPath
	}
	if path == "" {
		return nil, f.Fail(ExitCommandError, ErrCodeInvalidInput, "--db is required (or set db_path / BOOKLET_DB_PATH)", nil)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", path), err)
		}
		return nil, f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("cannot access database: %s", path), err)
	}

	s, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitFailure, ErrCodeStorage, "open database", err)
	}
	f.VerboseLog("Opened %s", path)
	return s, nil
}
