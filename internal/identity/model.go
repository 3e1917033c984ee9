package identity

import (
	"time"

	"github.com/openharvest/outreach-platform/internal/store"
)

// Role is an application-level privilege tier.
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleTeamMember Role = "team_member"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleTeamMember:
		return true
	}
	return false
}

// ApprovalStatus gates whether a registered user may establish a
// session.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// User is a team member's application profile. The principal returned
// by the identity collaborator maps onto this by ID.
type User struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Role        Role           `json:"role"`
	Status      ApprovalStatus `json:"status"`
	Phone       string         `json:"phone,omitempty"`
	PhotoURL    string         `json:"photoURL,omitempty"`
	Team        string         `json:"team,omitempty"`
	HasSeenTour bool           `json:"hasSeenTour"`
	CreatedAt   time.Time      `json:"createdAt"`

	// PasswordHash is set only when the local credential verifier is
	// active. It is stripped before profiles are returned to clients.
	PasswordHash string `json:"-"`
}

// CanManageUsers reports whether u may approve or reject other users.
func (u *User) CanManageUsers() bool {
	return u.Role == RoleSuperAdmin || u.Role == RoleAdmin
}

// CanEditRoles reports whether u may change another user's role.
// Admins approve members but only the super admin reassigns roles.
func (u *User) CanEditRoles() bool {
	return u.Role == RoleSuperAdmin
}

// Sanitized returns a copy safe to return to clients.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// userToRecord maps a User onto the store's document shape. This is
// the explicit boundary between typed domain values and the sanitized
// records both backends persist.
func userToRecord(u *User) store.Record {
	rec := store.Record{
		"id":          u.ID,
		"name":        u.Name,
		"email":       u.Email,
		"role":        string(u.Role),
		"status":      string(u.Status),
		"hasSeenTour": u.HasSeenTour,
		"createdAt":   u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if u.Phone != "" {
		rec["phone"] = u.Phone
	}
	if u.PhotoURL != "" {
		rec["photoURL"] = u.PhotoURL
	}
	if u.Team != "" {
		rec["team"] = u.Team
	}
	if u.PasswordHash != "" {
		rec["passwordHash"] = u.PasswordHash
	}
	return rec
}

func userFromRecord(rec store.Record) *User {
	u := &User{
		ID:           recString(rec, "id"),
		Name:         recString(rec, "name"),
		Email:        recString(rec, "email"),
		Role:         Role(recString(rec, "role")),
		Status:       ApprovalStatus(recString(rec, "status")),
		Phone:        recString(rec, "phone"),
		PhotoURL:     recString(rec, "photoURL"),
		Team:         recString(rec, "team"),
		PasswordHash: recString(rec, "passwordHash"),
	}
	if v, ok := rec["hasSeenTour"].(bool); ok {
		u.HasSeenTour = v
	}
	if ts, err := time.Parse(time.RFC3339Nano, recString(rec, "createdAt")); err == nil {
		u.CreatedAt = ts
	}
	return u
}

func recString(rec store.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}
