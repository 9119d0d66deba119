package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
)

// ListStorage implements the ListStorage interface for Badger
type ListStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewListStorage creates a new ListStorage instance
func NewListStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ListStorage {
	return &ListStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ListStorage) SaveList(ctx context.Context, list *models.LeadList) error {
	if err := list.Validate(); err != nil {
		return fmt.Errorf("invalid list: %w", err)
	}

	if err := s.db.Store().Upsert(list.ID, list); err != nil {
		return fmt.Errorf("failed to save list: %w", err)
	}
	return nil
}

func (s *ListStorage) GetList(ctx context.Context, listID string) (*models.LeadList, error) {
	var list models.LeadList
	if err := s.db.Store().Get(listID, &list); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("list not found: %s", listID)
		}
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	return &list, nil
}

func (s *ListStorage) ListLists(ctx context.Context, opts *interfaces.ListListOptions) ([]*models.LeadList, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}

	var lists []models.LeadList
	if err := s.db.Store().Find(&lists, query); err != nil {
		return nil, fmt.Errorf("failed to list lead lists: %w", err)
	}

	result := make([]*models.LeadList, len(lists))
	for i := range lists {
		result[i] = &lists[i]
	}
	return result, nil
}

func (s *ListStorage) CountLists(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.LeadList{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *ListStorage) DeleteList(ctx context.Context, listID string) error {
	if err := s.db.Store().Delete(listID, &models.LeadList{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete list: %w", err)
	}
	return nil
}
