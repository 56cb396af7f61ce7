package request

import "time"

type Status string

const (
	StatusOpen      Status = "open"
	StatusCommitted Status = "committed"
	StatusClosed    Status = "closed"
)

// Request is a student's published teaching request; every commitment
// references exactly one as its origin.
type Request struct {
	ID            string
	CreatorUserID string
	Subject       string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filters narrows request listings.
type Filters struct {
	CreatorUserID string
	Status        Status
	Page          int
	PageSize      int
}
