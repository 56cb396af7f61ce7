package party

import "context"

// ProfileReader abstracts repository operations for the service.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	GetByUser(ctx context.Context, userID string) (Profile, error)
}

// Service exposes party lookups to the arbitration gateway.
type Service struct {
	repo ProfileReader
}

// NewService builds a Service using the provided repository.
func NewService(repo ProfileReader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the party profile for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUser returns the party profile linked to a platform user.
func (s *Service) GetByUser(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetByUser(ctx, userID)
}

// Identities resolves the identity sets for a commitment's two parties.
func (s *Service) Identities(ctx context.Context, studentPartyID, tutorPartyID string) (IdentitySet, IdentitySet, error) {
	student, err := s.repo.GetByID(ctx, studentPartyID)
	if err != nil {
		return IdentitySet{}, IdentitySet{}, err
	}
	tutor, err := s.repo.GetByID(ctx, tutorPartyID)
	if err != nil {
		return IdentitySet{}, IdentitySet{}, err
	}
	return student.Identity(), tutor.Identity(), nil
}
