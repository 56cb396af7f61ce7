package request

import (
	"context"
	"fmt"
	"strings"
)

// Store abstracts repository operations for the service.
type Store interface {
	Insert(ctx context.Context, creatorUserID, subject string) (Request, error)
	GetByID(ctx context.Context, id string) (Request, error)
	List(ctx context.Context, f Filters) ([]Request, int, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create publishes a new teaching request for the calling student.
func (s *Service) Create(ctx context.Context, creatorUserID, subject string) (Request, error) {
	if creatorUserID == "" {
		return Request{}, fmt.Errorf("request: creator user id required")
	}
	if strings.TrimSpace(subject) == "" {
		return Request{}, fmt.Errorf("request: subject required")
	}
	return s.store.Insert(ctx, creatorUserID, strings.TrimSpace(subject))
}

// GetByID returns a single teaching request.
func (s *Service) GetByID(ctx context.Context, id string) (Request, error) {
	return s.store.GetByID(ctx, id)
}

// List returns teaching requests matching the filters.
func (s *Service) List(ctx context.Context, f Filters) ([]Request, int, error) {
	return s.store.List(ctx, f)
}
