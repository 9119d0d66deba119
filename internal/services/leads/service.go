// Package leads manages lead lists and their leads: CRUD, bulk import with
// payload validation, and the denormalized lead count that gates the first
// pipeline stage.
package leads

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/leadflowhq/leadflow/internal/interfaces"
	"github.com/leadflowhq/leadflow/internal/models"
)

// CreateListRequest is the payload for creating a lead list.
type CreateListRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Source      string `json:"source" validate:"max=200"`
}

// UpdateListRequest is the payload for updating list metadata. Nil fields
// are left unchanged.
type UpdateListRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Source      *string `json:"source" validate:"omitempty,max=200"`
}

// ImportLeadRequest is one lead in a bulk import payload.
type ImportLeadRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Company   string `json:"company" validate:"max=200"`
	Title     string `json:"title" validate:"max=200"`
	Phone     string `json:"phone" validate:"max=50"`
}

// Service implements lead list and lead management over storage.
type Service struct {
	lists    interfaces.ListStorage
	leads    interfaces.LeadStorage
	jobs     interfaces.JobStorage
	events   interfaces.EventService
	logger   arbor.ILogger
	validate *validator.Validate
}

// NewService creates a leads service.
func NewService(lists interfaces.ListStorage, leads interfaces.LeadStorage, jobs interfaces.JobStorage, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		lists:    lists,
		leads:    leads,
		jobs:     jobs,
		events:   events,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateList creates a new empty lead list.
func (s *Service) CreateList(ctx context.Context, req *CreateListRequest) (*models.LeadList, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid list payload: %w", err)
	}

	list := models.NewLeadList(req.Name, req.Description, req.Source)
	if err := s.lists.SaveList(ctx, list); err != nil {
		return nil, err
	}

	s.logger.Info().Str("list_id", list.ID).Str("name", list.Name).Msg("Lead list created")
	s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventListChanged, Payload: list})

	return list, nil
}

// GetList returns a list by ID.
func (s *Service) GetList(ctx context.Context, listID string) (*models.LeadList, error) {
	return s.lists.GetList(ctx, listID)
}

// ListLists returns lists with pagination.
func (s *Service) ListLists(ctx context.Context, limit, offset int) ([]*models.LeadList, int, error) {
	lists, err := s.lists.ListLists(ctx, &interfaces.ListListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, 0, err
	}
	total, err := s.lists.CountLists(ctx)
	if err != nil {
		return nil, 0, err
	}
	return lists, total, nil
}

// UpdateList applies a partial metadata update.
func (s *Service) UpdateList(ctx context.Context, listID string, req *UpdateListRequest) (*models.LeadList, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid list payload: %w", err)
	}

	list, err := s.lists.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		list.Name = *req.Name
	}
	if req.Description != nil {
		list.Description = *req.Description
	}
	if req.Source != nil {
		list.Source = *req.Source
	}

	if err := s.lists.SaveList(ctx, list); err != nil {
		return nil, err
	}

	s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventListChanged, Payload: list})
	return list, nil
}

// DeleteList removes a list together with its leads and job history.
func (s *Service) DeleteList(ctx context.Context, listID string) error {
	if _, err := s.lists.GetList(ctx, listID); err != nil {
		return err
	}

	if err := s.leads.DeleteLeadsByList(ctx, listID); err != nil {
		return fmt.Errorf("failed to delete leads: %w", err)
	}
	if err := s.jobs.DeleteJobsByList(ctx, listID); err != nil {
		return fmt.Errorf("failed to delete jobs: %w", err)
	}
	if err := s.lists.DeleteList(ctx, listID); err != nil {
		return err
	}

	s.logger.Info().Str("list_id", listID).Msg("Lead list deleted")
	s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventListChanged, Payload: listID})
	return nil
}

// ImportLeads bulk-imports leads into a list and refreshes the denormalized
// lead count. The whole batch is validated before anything is written.
func (s *Service) ImportLeads(ctx context.Context, listID string, reqs []*ImportLeadRequest) ([]*models.Lead, error) {
	list, err := s.lists.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no leads in import payload")
	}

	for i, req := range reqs {
		if err := s.validate.Struct(req); err != nil {
			return nil, fmt.Errorf("invalid lead at index %d: %w", i, err)
		}
	}

	imported := make([]*models.Lead, 0, len(reqs))
	for _, req := range reqs {
		lead := models.NewLead(listID, req.Email)
		lead.FirstName = req.FirstName
		lead.LastName = req.LastName
		lead.Company = req.Company
		lead.Title = req.Title
		lead.Phone = req.Phone
		imported = append(imported, lead)
	}

	if err := s.leads.SaveLeads(ctx, imported); err != nil {
		return nil, err
	}

	if err := s.refreshLeadCount(ctx, list); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("list_id", listID).
		Int("count", len(imported)).
		Msg("Leads imported")
	s.events.Publish(ctx, interfaces.Event{Type: interfaces.EventListChanged, Payload: list})

	return imported, nil
}

// ListLeads returns leads in a list with pagination.
func (s *Service) ListLeads(ctx context.Context, listID string, limit, offset int) ([]*models.Lead, int, error) {
	if _, err := s.lists.GetList(ctx, listID); err != nil {
		return nil, 0, err
	}
	leads, err := s.leads.ListLeads(ctx, listID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.leads.CountLeads(ctx, listID)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func (s *Service) refreshLeadCount(ctx context.Context, list *models.LeadList) error {
	count, err := s.leads.CountLeads(ctx, list.ID)
	if err != nil {
		return fmt.Errorf("failed to count leads: %w", err)
	}
	list.LeadCount = count
	if err := s.lists.SaveList(ctx, list); err != nil {
		return fmt.Errorf("failed to update lead count: %w", err)
	}
	return nil
}
