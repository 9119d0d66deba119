package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LeadList is the parent entity owning a batch of leads processed through
// the pipeline. LeadCount is denormalized and maintained by the leads
// service; it gates the first pipeline stage.
type LeadList struct {
	ID          string    `json:"id" badgerhold:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source,omitempty"`
	LeadCount   int       `json:"lead_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewLeadList creates a lead list with a generated ID.
func NewLeadList(name, description, source string) *LeadList {
	now := time.Now()
	return &LeadList{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Source:      source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks structural validity before persistence.
func (l *LeadList) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("list ID is required")
	}
	if l.Name == "" {
		return fmt.Errorf("list name is required")
	}
	if l.LeadCount < 0 {
		return fmt.Errorf("lead count cannot be negative")
	}
	return nil
}

// Lead is a single contact record owned by a lead list. The pipeline stages
// mutate leads remotely; this service only stores and serves them.
type Lead struct {
	ID        string    `json:"id" badgerhold:"key"`
	ListID    string    `json:"list_id" badgerhold:"index"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Company   string    `json:"company,omitempty"`
	Title     string    `json:"title,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Enriched  bool      `json:"enriched"`
	Synced    bool      `json:"synced"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewLead creates a lead with a generated ID for the given list.
func NewLead(listID, email string) *Lead {
	now := time.Now()
	return &Lead{
		ID:        uuid.New().String(),
		ListID:    listID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
