package invites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openharvest/outreach-platform/internal/identity"
	"github.com/openharvest/outreach-platform/internal/notify"
	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// Invitation is an audit record of a team invite. Sending is best
// effort; the record persists either way so admins can see who was
// asked and whether delivery worked.
type Invitation struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Role      identity.Role `json:"role"`
	InvitedBy string        `json:"invitedBy"`
	CreatedAt time.Time     `json:"createdAt"`
	Status    string        `json:"status"`
}

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Service creates invitation records and dispatches the invite email.
type Service struct {
	backend store.Backend
	sender  notify.EmailSender
	baseURL string
	logger  *logging.Logger
}

// NewService wires the invitation service. baseURL is the public
// address the join link points at.
func NewService(backend store.Backend, sender notify.EmailSender, baseURL string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = notify.NewStubEmailSender(logger)
	}
	return &Service{
		backend: backend,
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// CreateRequest is an admin's invite submission.
type CreateRequest struct {
	Email string        `json:"email"`
	Role  identity.Role `json:"role"`
}

// Validate checks the invite fields. Inviting a super admin is never
// allowed; that role exists only through first-user bootstrap or an
// explicit role change by the current super admin.
func (r *CreateRequest) Validate() error {
	if !strings.Contains(r.Email, "@") {
		return errors.New("invites: a valid email is required")
	}
	if r.Role == "" {
		r.Role = identity.RoleTeamMember
	}
	if !identity.ValidRole(r.Role) || r.Role == identity.RoleSuperAdmin {
		return fmt.Errorf("invites: cannot invite role %q", r.Role)
	}
	return nil
}

// Create persists the invitation audit record and sends the email. An
// email failure marks the record failed but is not returned as an
// error; the caller sees the status on the returned invitation.
func (s *Service) Create(ctx context.Context, req CreateRequest, invitedBy string) (*Invitation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv := &Invitation{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Role:      req.Role,
		InvitedBy: invitedBy,
		CreatedAt: time.Now().UTC(),
		Status:    StatusSent,
	}

	msg := s.buildEmail(inv)
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("invitation email failed", "error", err, "email", inv.Email)
		inv.Status = StatusFailed
	}

	if err := s.backend.Put(ctx, store.CollectionInvitations, inv.ID, invitationToRecord(inv)); err != nil {
		return nil, fmt.Errorf("invites: save failed: %w", err)
	}

	s.logger.Info("invitation recorded",
		"email", inv.Email, "role", string(inv.Role), "invited_by", invitedBy, "status", inv.Status)
	return inv, nil
}

// List returns all invitations, newest first.
func (s *Service) List(ctx context.Context) ([]*Invitation, error) {
	records, err := s.backend.List(ctx, store.CollectionInvitations)
	if err != nil {
		return nil, err
	}
	out := make([]*Invitation, 0, len(records))
	for _, rec := range records {
		out = append(out, invitationFromRecord(rec))
	}
	return out, nil
}

// JoinURL builds the signup link carried in the invite email. The
// registration page pre-fills role and referrer from the query.
func (s *Service) JoinURL(inv *Invitation) string {
	q := url.Values{}
	q.Set("refRole", string(inv.Role))
	q.Set("refBy", inv.InvitedBy)
	return s.baseURL + "/join?" + q.Encode()
}

func (s *Service) buildEmail(inv *Invitation) notify.EmailMessage {
	join := s.JoinURL(inv)
	body := fmt.Sprintf(`%s has invited you to join the outreach team.

Follow this link to create your account:
%s

Your account will start with the %s role once an admin approves it.`,
		inv.InvitedBy, join, roleLabel(inv.Role))

	html := fmt.Sprintf(`<p>%s has invited you to join the outreach team.</p>
<p><a href=%q>Create your account</a></p>
<p>Your account will start with the %s role once an admin approves it.</p>`,
		inv.InvitedBy, join, roleLabel(inv.Role))

	return notify.EmailMessage{
		To:      inv.Email,
		Subject: "You're invited to the outreach team",
		Body:    body,
		HTML:    html,
	}
}

func roleLabel(r identity.Role) string {
	switch r {
	case identity.RoleAdmin:
		return "Admin"
	default:
		return "Team Member"
	}
}

func invitationToRecord(inv *Invitation) store.Record {
	return store.Record{
		"id":        inv.ID,
		"email":     inv.Email,
		"role":      string(inv.Role),
		"invitedBy": inv.InvitedBy,
		"createdAt": inv.CreatedAt.UTC().Format(time.RFC3339Nano),
		"status":    inv.Status,
	}
}

func invitationFromRecord(rec store.Record) *Invitation {
	inv := &Invitation{
		ID:        recString(rec, "id"),
		Email:     recString(rec, "email"),
		Role:      identity.Role(recString(rec, "role")),
		InvitedBy: recString(rec, "invitedBy"),
		Status:    recString(rec, "status"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, recString(rec, "createdAt")); err == nil {
		inv.CreatedAt = ts
	}
	return inv
}

func recString(rec store.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}
