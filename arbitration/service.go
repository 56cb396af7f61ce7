package arbitration

import (
	"context"
	"fmt"

	"tutorflow/attribution"
	"tutorflow/commitment"
	"tutorflow/party"
)

// Protocol is the slice of the commitment service the gateway needs.
type Protocol interface {
	Get(ctx context.Context, id string) (commitment.Commitment, error)
	History(ctx context.Context, id string) ([]commitment.HistoryEntry, error)
	DisputeLogs(ctx context.Context, id string) ([]commitment.DisputeLogEntry, error)
	ResolveDispute(ctx context.Context, id, adminID string, approve bool, notes string) (commitment.Commitment, error)
	CloseCancellation(ctx context.Context, id, adminID string, approve bool, notes string) (commitment.Commitment, error)
}

// SessionSource supplies the scheduling collaborator's records.
type SessionSource interface {
	ListByCommitment(ctx context.Context, commitmentID string) ([]attribution.Session, error)
}

// PartySource resolves the identity sets for attribution.
type PartySource interface {
	Identities(ctx context.Context, studentPartyID, tutorPartyID string) (party.IdentitySet, party.IdentitySet, error)
}

// Service is the admin-facing gateway: it assembles the review view and
// applies terminal resolutions through the protocol. The audit log write
// and the state change share one transaction inside ResolveDispute, so an
// admin action is never observably half applied.
type Service struct {
	protocol Protocol
	sessions SessionSource
	parties  PartySource
}

func NewService(protocol Protocol, sessions SessionSource, parties PartySource) *Service {
	return &Service{
		protocol: protocol,
		sessions: sessions,
		parties:  parties,
	}
}

// Review returns the arbitration read view. Attribution statistics are
// computed only while a dispute is open; they support the arbitrator's
// judgment and never drive a transition by themselves.
func (s *Service) Review(ctx context.Context, commitmentID string) (ReviewView, error) {
	c, err := s.protocol.Get(ctx, commitmentID)
	if err != nil {
		return ReviewView{}, err
	}
	history, err := s.protocol.History(ctx, commitmentID)
	if err != nil {
		return ReviewView{}, err
	}
	logs, err := s.protocol.DisputeLogs(ctx, commitmentID)
	if err != nil {
		return ReviewView{}, err
	}

	view := ReviewView{
		CommitmentID: c.ID,
		Status:       c.Status,
		History:      history,
		DisputeLogs:  logs,
	}

	switch {
	case c.CancellationDecision != nil:
		view.Decision = DecisionState{Open: c.CancellationDecision}
	case len(history) > 0:
		last := history[len(history)-1]
		view.Decision = DecisionState{Resolved: &last}
	}

	if c.Status == commitment.StatusAdminReview {
		stats, err := s.statistics(ctx, c)
		if err != nil {
			return ReviewView{}, err
		}
		view.Statistics = stats
	}

	return view, nil
}

// Resolve applies the arbitrator's decision on an admin_review commitment.
func (s *Service) Resolve(ctx context.Context, commitmentID, adminID string, approve bool, notes string) (commitment.Commitment, error) {
	return s.protocol.ResolveDispute(ctx, commitmentID, adminID, approve, notes)
}

// Close applies an admin decision on a cancellation the counterpart never
// answered.
func (s *Service) Close(ctx context.Context, commitmentID, adminID string, approve bool, notes string) (commitment.Commitment, error) {
	return s.protocol.CloseCancellation(ctx, commitmentID, adminID, approve, notes)
}

func (s *Service) statistics(ctx context.Context, c commitment.Commitment) (*attribution.Statistics, error) {
	sessions, err := s.sessions.ListByCommitment(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	student, tutor, err := s.parties.Identities(ctx, c.StudentPartyID, c.TutorPartyID)
	if err != nil {
		return nil, fmt.Errorf("arbitration: resolve party identities: %w", err)
	}
	stats := attribution.Classify(sessions,
		attribution.PartyIdentity{IDs: student.IDs, Names: student.Names},
		attribution.PartyIdentity{IDs: tutor.IDs, Names: tutor.Names},
	)
	return &stats, nil
}
