package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
)

// Manager implements interfaces.StorageManager over a single Badger database.
type Manager struct {
	db           *BadgerDB
	kv           interfaces.KeyValueStorage
	reference    interfaces.ReferenceStorage
	application  interfaces.ApplicationStorage
	resumeCache  interfaces.ResumeCacheStorage
	vettingRun   interfaces.VettingRunStorage
	requirements interfaces.RequirementsStorage
	embedding    interfaces.EmbeddingCacheStorage
	audit        interfaces.AuditLogStorage
	delivery     interfaces.DeliveryLedgerStorage
	schedLock    interfaces.SchedulerLockStorage
	jobCache     interfaces.JobCacheStorage
	logger       arbor.ILogger
}

// NewManager opens the Badger database and wires every durable store on top of it.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		kv:           NewKVStorage(db, logger),
		reference:    NewReferenceStorage(db, logger),
		application:  NewApplicationStorage(db, logger),
		resumeCache:  NewResumeCacheStorage(db, logger),
		vettingRun:   NewVettingRunStorage(db, logger),
		requirements: NewRequirementsStorage(db, logger),
		embedding:    NewEmbeddingCacheStorage(db, logger),
		audit:        NewAuditLogStorage(db, logger),
		delivery:     NewDeliveryLedgerStorage(db, logger),
		schedLock:    NewSchedulerLockStorage(db, logger),
		jobCache:     NewJobCacheStorage(db, logger),
		logger:       logger,
	}

	logger.Info().Msg("badger storage manager initialized")

	return manager, nil
}

func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage             { return m.kv }
func (m *Manager) ReferenceStorage() interfaces.ReferenceStorage           { return m.reference }
func (m *Manager) ApplicationStorage() interfaces.ApplicationStorage       { return m.application }
func (m *Manager) ResumeCacheStorage() interfaces.ResumeCacheStorage       { return m.resumeCache }
func (m *Manager) VettingRunStorage() interfaces.VettingRunStorage         { return m.vettingRun }
func (m *Manager) RequirementsStorage() interfaces.RequirementsStorage     { return m.requirements }
func (m *Manager) EmbeddingCacheStorage() interfaces.EmbeddingCacheStorage { return m.embedding }
func (m *Manager) AuditLogStorage() interfaces.AuditLogStorage             { return m.audit }
func (m *Manager) DeliveryLedgerStorage() interfaces.DeliveryLedgerStorage { return m.delivery }
func (m *Manager) SchedulerLockStorage() interfaces.SchedulerLockStorage   { return m.schedLock }
func (m *Manager) JobCacheStorage() interfaces.JobCacheStorage             { return m.jobCache }

// DB returns the underlying badgerhold store, for components that need raw access.
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
