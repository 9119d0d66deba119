package badger

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/common"
	"github.com/leadflowhq/leadflow/internal/interfaces"
)

// Manager composes the Badger-backed storage implementations over a single
// database connection.
type Manager struct {
	db     *BadgerDB
	jobs   interfaces.JobStorage
	lists  interfaces.ListStorage
	leads  interfaces.LeadStorage
	logger arbor.ILogger
}

// NewManager opens the database and wires up the storage implementations.
func NewManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	return &Manager{
		db:     db,
		jobs:   NewJobStorage(db, logger),
		lists:  NewListStorage(db, logger),
		leads:  NewLeadStorage(db, logger),
		logger: logger,
	}, nil
}

func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.jobs
}

func (m *Manager) ListStorage() interfaces.ListStorage {
	return m.lists
}

func (m *Manager) LeadStorage() interfaces.LeadStorage {
	return m.leads
}

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	return m.db.Close()
}
