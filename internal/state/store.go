package state

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"adpilot/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists one opaque JSON document per (identity, business) pair and
// returns it unmodified. Get returns (nil, nil) when nothing is stored.
type Store interface {
	Get(ctx context.Context, identity, business string) (json.RawMessage, error)
	Put(ctx context.Context, identity, business string, doc json.RawMessage) error
	Clear(ctx context.Context, identity, business string) error
	// Keys lists the business keys holding a document for identity, sorted.
	Keys(ctx context.Context, identity string) ([]string, error)
}

// GormStore keeps documents in the intake_sessions table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, identity, business string) (json.RawMessage, error) {
	var row models.IntakeSession
	err := s.db.WithContext(ctx).
		Where("identity = ? AND business_key = ?", identity, business).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(row.Document) == 0 {
		return nil, nil
	}
	return json.RawMessage(row.Document), nil
}

func (s *GormStore) Put(ctx context.Context, identity, business string, doc json.RawMessage) error {
	row := models.IntakeSession{
		Identity:    identity,
		BusinessKey: business,
		Document:    datatypes.JSON(doc),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}, {Name: "business_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) Clear(ctx context.Context, identity, business string) error {
	return s.db.WithContext(ctx).
		Where("identity = ? AND business_key = ?", identity, business).
		Delete(&models.IntakeSession{}).Error
}

func (s *GormStore) Keys(ctx context.Context, identity string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&models.IntakeSession{}).
		Where("identity = ?", identity).
		Order("business_key ASC").
		Pluck("business_key", &keys).Error
	return keys, err
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]json.RawMessage)}
}

func memKey(identity, business string) string { return identity + "\x00" + business }

func (m *MemoryStore) Get(_ context.Context, identity, business string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[memKey(identity, business)]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), doc...), nil
}

func (m *MemoryStore) Put(_ context.Context, identity, business string, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[memKey(identity, business)] = append(json.RawMessage(nil), doc...)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, identity, business string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, memKey(identity, business))
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, identity string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	prefix := identity + "\x00"
	for k := range m.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
