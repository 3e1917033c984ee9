package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openharvest/outreach-platform/internal/session"
	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

var (
	// ErrEmailTaken indicates a registration against an email that
	// already has a profile.
	ErrEmailTaken = errors.New("identity: email already registered")

	// ErrForbidden indicates the acting user lacks the privilege for
	// the attempted team mutation.
	ErrForbidden = errors.New("identity: operation not permitted for this role")

	// ErrUserNotFound indicates the target profile does not exist.
	ErrUserNotFound = errors.New("identity: user not found")
)

// SessionState is a step in the per-session authentication machine.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticating  SessionState = "authenticating"
	StateActive          SessionState = "active"
	StateDenied          SessionState = "denied"
)

// DenialReason distinguishes why a session did not reach Active.
type DenialReason string

const (
	DenialInvalidCredentials DenialReason = "invalid_credentials"
	DenialProfileNotFound    DenialReason = "profile_not_found"
	DenialPending            DenialReason = "account_pending"
	DenialRejected           DenialReason = "account_rejected"
)

// Message returns the user-facing text for a denial.
func (d DenialReason) Message() string {
	switch d {
	case DenialInvalidCredentials:
		return "Email or password is incorrect."
	case DenialProfileNotFound:
		return "No team profile exists for this account. Ask an admin to invite you."
	case DenialPending:
		return "Your account is awaiting approval by an admin."
	case DenialRejected:
		return "Your account access has been restricted. Contact your team admin."
	}
	return "Sign-in denied."
}

// Session is the outcome of an authentication attempt.
type Session struct {
	State     SessionState `json:"state"`
	User      *User        `json:"user,omitempty"`
	Token     string       `json:"token,omitempty"`
	TokenID   string       `json:"-"`
	ExpiresAt time.Time    `json:"expiresAt,omitempty"`
	Denial    DenialReason `json:"denial,omitempty"`
	ShowTour  bool         `json:"showTour,omitempty"`
}

// RegisterRequest carries a new-member registration. RequestedRole and
// InvitedBy come from the invitation link's refRole/refBy parameters
// when present.
type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	RequestedRole Role   `json:"requestedRole,omitempty"`
	InvitedBy     string `json:"invitedBy,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

// Validate checks required registration fields.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("identity: name is required")
	}
	if !strings.Contains(r.Email, "@") {
		return errors.New("identity: a valid email is required")
	}
	if len(r.Password) < 8 {
		return errors.New("identity: password must be at least 8 characters")
	}
	return nil
}

// ProfileUpdate carries self-service profile edits; empty fields are
// left unchanged.
type ProfileUpdate struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
	Team     string `json:"team,omitempty"`
}

// Service is the session/auth bridge: it resolves verified principals
// to application profiles and owns the approval state machine.
type Service struct {
	backend  store.Backend
	verifier Verifier
	tokens   *TokenIssuer
	revoker  session.Revoker
	logger   *logging.Logger
}

// NewService wires the bridge.
func NewService(backend store.Backend, verifier Verifier, tokens *TokenIssuer, revoker session.Revoker, logger *logging.Logger) *Service {
	if revoker == nil {
		revoker = session.NopRevoker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		backend:  backend,
		verifier: verifier,
		tokens:   tokens,
		revoker:  revoker,
		logger:   logger,
	}
}

// Login runs the session state machine for a credential submission.
// Denials come back as a Session in StateDenied, never as an error;
// errors are reserved for infrastructure failures. Any denial after
// successful credential verification forces a collaborator-side
// sign-out so no partially authenticated state lingers.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	sess := &Session{State: StateAuthenticating}

	principal, err := s.verifier.Verify(ctx, email, password)
	if errors.Is(err, ErrInvalidCredentials) {
		sess.State = StateDenied
		sess.Denial = DenialInvalidCredentials
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: credential verification failed: %w", err)
	}

	rec, err := s.backend.Get(ctx, store.CollectionUsers, principal.ID)
	if errors.Is(err, store.ErrNotFound) {
		s.forceSignOut(ctx, principal.ID, "profile not found")
		sess.State = StateDenied
		sess.Denial = DenialProfileNotFound
		return sess, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: profile lookup failed: %w", err)
	}

	user := userFromRecord(rec)
	switch user.Status {
	case StatusApproved:
		// fall through to session establishment
	case StatusRejected:
		s.forceSignOut(ctx, principal.ID, "account rejected")
		sess.State = StateDenied
		sess.Denial = DenialRejected
		return sess, nil
	default:
		s.forceSignOut(ctx, principal.ID, "account pending")
		sess.State = StateDenied
		sess.Denial = DenialPending
		return sess, nil
	}

	token, tokenID, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("identity: token issue failed: %w", err)
	}

	sess.State = StateActive
	sess.User = user.Sanitized()
	sess.Token = token
	sess.TokenID = tokenID
	sess.ExpiresAt = time.Now().Add(s.tokens.TTL())
	sess.ShowTour = !user.HasSeenTour

	s.logger.Info("session established", "user_id", user.ID, "role", user.Role)
	return sess, nil
}

// Register creates a new profile. The very first user registered into
// an empty users collection is promoted to SuperAdmin and approved
// immediately; everyone after starts Pending with the requested (or
// default) role. The emptiness check and the subsequent write are not
// atomic across concurrent registrations; see DESIGN.md.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.backend.List(ctx, store.CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("identity: users lookup failed: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	for _, rec := range existing {
		if strings.ToLower(recString(rec, "email")) == email {
			return nil, ErrEmailTaken
		}
	}
	firstUser := len(existing) == 0

	principal, err := s.verifier.CreateAccount(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("identity: account creation failed: %w", err)
	}

	user := &User{
		ID:           principal.ID,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PhotoURL:     principal.PhotoURL,
		HasSeenTour:  false,
		CreatedAt:    time.Now().UTC(),
		PasswordHash: principal.PasswordHash,
	}
	if firstUser {
		user.Role = RoleSuperAdmin
		user.Status = StatusApproved
	} else {
		user.Role = req.RequestedRole
		if !ValidRole(user.Role) || user.Role == RoleSuperAdmin {
			user.Role = RoleTeamMember
		}
		user.Status = StatusPending
	}

	if err := s.backend.Put(ctx, store.CollectionUsers, user.ID, userToRecord(user)); err != nil {
		return nil, fmt.Errorf("identity: profile write failed: %w", err)
	}

	s.logger.Info("user registered",
		"user_id", user.ID, "role", user.Role, "status", user.Status,
		"invited_by", req.InvitedBy, "bootstrap", firstUser)
	return user.Sanitized(), nil
}

// Logout revokes the session token and signs the principal out at the
// identity collaborator.
func (s *Service) Logout(ctx context.Context, claims *SessionClaims) error {
	if claims == nil {
		return nil
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
		s.logger.Warn("session revocation failed", "error", err)
	}
	return s.verifier.SignOut(ctx, claims.Subject)
}

// GetUser loads one profile.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	rec, err := s.backend.Get(ctx, store.CollectionUsers, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return userFromRecord(rec), nil
}

// ListUsers returns all profiles, newest first, stripped of
// credentials.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	records, err := s.backend.List(ctx, store.CollectionUsers)
	if err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(records))
	for _, rec := range records {
		users = append(users, userFromRecord(rec).Sanitized())
	}
	return users, nil
}

// SetApproval moves a user between Pending/Approved/Rejected. Admins
// and the super admin may approve; nobody edits their own record.
func (s *Service) SetApproval(ctx context.Context, actor *User, targetID string, status ApprovalStatus) error {
	if actor == nil || !actor.CanManageUsers() {
		return ErrForbidden
	}
	if actor.ID == targetID {
		return ErrForbidden
	}
	switch status {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		return fmt.Errorf("identity: unknown approval status %q", status)
	}
	if _, err := s.GetUser(ctx, targetID); err != nil {
		return err
	}

	if err := s.backend.Patch(ctx, store.CollectionUsers, targetID, store.Record{
		"status": string(status),
	}); err != nil {
		return err
	}
	s.logger.Info("approval changed", "target", targetID, "status", status, "by", actor.ID)
	return nil
}

// SetRole reassigns a user's role. Only the super admin may do this,
// and never to itself.
func (s *Service) SetRole(ctx context.Context, actor *User, targetID string, role Role) error {
	if actor == nil || !actor.CanEditRoles() {
		return ErrForbidden
	}
	if actor.ID == targetID {
		return ErrForbidden
	}
	if !ValidRole(role) {
		return fmt.Errorf("identity: unknown role %q", role)
	}
	if _, err := s.GetUser(ctx, targetID); err != nil {
		return err
	}

	if err := s.backend.Patch(ctx, store.CollectionUsers, targetID, store.Record{
		"role": string(role),
	}); err != nil {
		return err
	}
	s.logger.Info("role changed", "target", targetID, "role", role, "by", actor.ID)
	return nil
}

// UpdateProfile applies self-service edits. Users edit themselves;
// admins may edit anyone else's contact fields.
func (s *Service) UpdateProfile(ctx context.Context, actor *User, targetID string, update ProfileUpdate) error {
	if actor == nil {
		return ErrForbidden
	}
	if actor.ID != targetID && !actor.CanManageUsers() {
		return ErrForbidden
	}
	if _, err := s.GetUser(ctx, targetID); err != nil {
		return err
	}

	fields := store.Record{}
	if update.Name != "" {
		fields["name"] = update.Name
	}
	if update.Phone != "" {
		fields["phone"] = update.Phone
	}
	if update.PhotoURL != "" {
		fields["photoURL"] = update.PhotoURL
	}
	if update.Team != "" {
		fields["team"] = update.Team
	}
	if len(fields) == 0 {
		return nil
	}
	return s.backend.Patch(ctx, store.CollectionUsers, targetID, fields)
}

// MarkTourSeen records that the onboarding sequence ran for the user.
func (s *Service) MarkTourSeen(ctx context.Context, userID string) error {
	return s.backend.Patch(ctx, store.CollectionUsers, userID, store.Record{
		"hasSeenTour": true,
	})
}

// IssuePasswordReset creates an out-of-band reset code for the email.
func (s *Service) IssuePasswordReset(ctx context.Context, email string) (string, error) {
	return s.verifier.IssueResetCode(ctx, email)
}

// ConfirmPasswordReset redeems a reset action code from a
// mode/oobCode URL pair.
func (s *Service) ConfirmPasswordReset(ctx context.Context, mode, oobCode, newPassword string) error {
	if mode != "resetPassword" {
		return fmt.Errorf("identity: unsupported action mode %q", mode)
	}
	if len(newPassword) < 8 {
		return errors.New("identity: password must be at least 8 characters")
	}
	return s.verifier.ConfirmReset(ctx, oobCode, newPassword)
}

// SubscribeUsers exposes the users collection subscription.
func (s *Service) SubscribeUsers(fn store.SubscriberFunc) func() {
	return s.backend.Subscribe(store.CollectionUsers, fn)
}

func (s *Service) forceSignOut(ctx context.Context, principalID, why string) {
	if err := s.verifier.SignOut(ctx, principalID); err != nil {
		s.logger.Warn("forced sign-out failed", "principal", principalID, "reason", why, "error", err)
	}
}
