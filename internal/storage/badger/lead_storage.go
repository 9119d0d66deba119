package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
)

// LeadStorage implements the LeadStorage interface for Badger
type LeadStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLeadStorage creates a new LeadStorage instance
func NewLeadStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LeadStorage {
	return &LeadStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LeadStorage) SaveLeads(ctx context.Context, leads []*models.Lead) error {
	for _, lead := range leads {
		if lead.ID == "" {
			return fmt.Errorf("lead ID is required")
		}
		if lead.ListID == "" {
			return fmt.Errorf("lead list ID is required")
		}
		if err := s.db.Store().Upsert(lead.ID, lead); err != nil {
			return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
		}
	}
	return nil
}

func (s *LeadStorage) ListLeads(ctx context.Context, listID string, limit, offset int) ([]*models.Lead, error) {
	query := badgerhold.Where("ListID").Eq(listID).Index("ListID").SortBy("CreatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Skip(offset)
	}

	var leads []models.Lead
	if err := s.db.Store().Find(&leads, query); err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	result := make([]*models.Lead, len(leads))
	for i := range leads {
		result[i] = &leads[i]
	}
	return result, nil
}

func (s *LeadStorage) CountLeads(ctx context.Context, listID string) (int, error) {
	count, err := s.db.Store().Count(&models.Lead{},
		badgerhold.Where("ListID").Eq(listID).Index("ListID"))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *LeadStorage) DeleteLeadsByList(ctx context.Context, listID string) error {
	err := s.db.Store().DeleteMatching(&models.Lead{},
		badgerhold.Where("ListID").Eq(listID).Index("ListID"))
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete leads for list %s: %w", listID, err)
	}
	return nil
}
