package persistence

import (
	"database/sql"
	"fmt"
	"sync"

	"appgen/pkg/logx"
)

// singleton database access, following the teacher's persistence.Initialize
// / GetDB / Close pattern.
var (
	globalDB     *sql.DB
	globalDBOnce sync.Once
	globalDBMu   sync.RWMutex
	dbLogger     *logx.Logger
)

// Initialize opens the singleton database connection at dbPath. Must be
// called once at startup before Store or GetDB are used; subsequent calls
// are no-ops.
func Initialize(dbPath string) error {
	var initErr error
	globalDBOnce.Do(func() {
		dbLogger = logx.NewLogger("persistence")
		db, err := InitializeDatabase(dbPath)
		if err != nil {
			initErr = err
			return
		}
		globalDB = db
		dbLogger.Info("database initialized at %s", dbPath)
	})
	return initErr
}

// GetDB returns the singleton database connection. Panics if Initialize
// has not been called, matching the teacher's fail-fast singleton.
func GetDB() *sql.DB {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()
	if globalDB == nil {
		panic("persistence.Initialize must be called before GetDB")
	}
	return globalDB
}

// IsInitialized reports whether the singleton connection is open.
func IsInitialized() bool {
	globalDBMu.RLock()
	defer globalDBMu.RUnlock()
	return globalDB != nil
}

// Close closes the singleton database connection.
func Close() error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()
	if globalDB != nil {
		err := globalDB.Close()
		globalDB = nil
		if err != nil {
			return fmt.Errorf("close database: %w", err)
		}
	}
	return nil
}

// Reset closes the database and resets the singleton, for test isolation
// only.
func Reset() error {
	globalDBMu.Lock()
	defer globalDBMu.Unlock()
	if globalDB != nil {
		if err := globalDB.Close(); err != nil {
			return fmt.Errorf("close database during reset: %w", err)
		}
		globalDB = nil
	}
	globalDBOnce = sync.Once{}
	dbLogger = nil
	return nil
}
