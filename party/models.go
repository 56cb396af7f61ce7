package party

import "time"

// Profile is one side of a commitment: a student or tutor party record
// with its linked platform user.
type Profile struct {
	ID          string
	UserID      *string
	DisplayName string
	Role        string
	CreatedAt   time.Time
}

// IdentitySet collects every id and display name a party is known by.
// Session records reference actors inconsistently by either, so the
// attribution engine matches against both.
type IdentitySet struct {
	IDs   []string
	Names []string
}

// Identity builds the dual-key identity set for the profile.
func (p Profile) Identity() IdentitySet {
	set := IdentitySet{IDs: []string{p.ID}}
	if p.UserID != nil && *p.UserID != "" {
		set.IDs = append(set.IDs, *p.UserID)
	}
	if p.DisplayName != "" {
		set.Names = append(set.Names, p.DisplayName)
	}
	return set
}
