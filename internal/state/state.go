// Package state persists the playback queue and the Last.fm session in
// a small SQLite database under the user's data directory.
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName      = "sub000"
	dbFileName   = "sub000.db"
	saveDebounce = 500 * time.Millisecond
)

type Manager struct {
	db        *sql.DB
	saveMu    sync.Mutex
	saveTimer *time.Timer
	pending   *QueueState
}

func Open() (*Manager, error) {
	dbPath, err := getDBPath()
	if err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Manager{db: db}, nil
}

func (m *Manager) Close() error {
	m.saveMu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	pending := m.pending
	m.pending = nil
	m.saveMu.Unlock()

	// Flush pending state
	if pending != nil {
		_ = saveQueue(m.db, *pending)
	}

	return m.db.Close()
}

func (m *Manager) GetQueue() (*QueueState, error) {
	return getQueue(m.db)
}

func (m *Manager) DB() *sql.DB {
	return m.db
}

// SaveQueue schedules a debounced write. Queue edits arrive in bursts;
// only the last snapshot within the window hits the disk.
func (m *Manager) SaveQueue(state QueueState) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.pending = &state

	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}

	m.saveTimer = time.AfterFunc(saveDebounce, func() {
		m.saveMu.Lock()
		pending := m.pending
		m.pending = nil
		m.saveMu.Unlock()

		if pending != nil {
			_ = saveQueue(m.db, *pending)
		}
	})
}

// SaveQueueNow writes the snapshot synchronously, bypassing the
// debounce. Used on shutdown.
func (m *Manager) SaveQueueNow(state QueueState) error {
	m.saveMu.Lock()
	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	m.pending = nil
	m.saveMu.Unlock()

	return saveQueue(m.db, state)
}

func getDBPath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}
