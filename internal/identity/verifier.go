package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// ErrInvalidCredentials indicates the email/password pair was not
// accepted by the credential verifier.
var ErrInvalidCredentials = errors.New("identity: invalid credentials")

// ErrResetCodeInvalid indicates an unknown or expired password-reset
// action code.
var ErrResetCodeInvalid = errors.New("identity: reset code invalid or expired")

// Principal is an authenticated identity as reported by the
// credential verifier, before any application-level profile lookup.
type Principal struct {
	ID       string
	Name     string
	Email    string
	PhotoURL string

	// PasswordHash is populated only by the local verifier so newly
	// registered credentials can be stored alongside the profile.
	PasswordHash string
}

// Verifier abstracts the identity collaborator. The remote
// implementation talks to the external identity service; the local one
// checks bcrypt hashes held in the fallback store.
type Verifier interface {
	// Verify checks credentials and returns the matching principal,
	// or ErrInvalidCredentials.
	Verify(ctx context.Context, email, password string) (*Principal, error)

	// CreateAccount registers credentials and returns the new
	// principal.
	CreateAccount(ctx context.Context, name, email, password string) (*Principal, error)

	// SignOut terminates any collaborator-side session for the
	// principal. Used both for explicit logout and to avoid dangling
	// authenticated-but-denied states.
	SignOut(ctx context.Context, principalID string) error

	// IssueResetCode creates an out-of-band password-reset action
	// code for the account.
	IssueResetCode(ctx context.Context, email string) (string, error)

	// ConfirmReset redeems an action code and sets a new password.
	ConfirmReset(ctx context.Context, oobCode, newPassword string) error
}

const resetCodeTTL = time.Hour

type resetEntry struct {
	email   string
	expires time.Time
}

// LocalVerifier verifies credentials against bcrypt hashes stored with
// the user profiles in the local backend. It exists so the application
// stays usable with no identity service configured; it offers
// materially weaker guarantees than the remote collaborator (no MFA,
// no federated sign-in, reset codes held only in process memory) and
// is not intended for production deployments.
type LocalVerifier struct {
	backend store.Backend
	logger  *logging.Logger

	mu     sync.Mutex
	resets map[string]resetEntry
}

var _ Verifier = (*LocalVerifier)(nil)

// NewLocalVerifier creates a verifier over the given backend.
func NewLocalVerifier(backend store.Backend, logger *logging.Logger) *LocalVerifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LocalVerifier{
		backend: backend,
		logger:  logger,
		resets:  make(map[string]resetEntry),
	}
}

func (v *LocalVerifier) findByEmail(ctx context.Context, email string) (*User, error) {
	records, err := v.backend.List(ctx, store.CollectionUsers)
	if err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, rec := range records {
		u := userFromRecord(rec)
		if strings.ToLower(u.Email) == email {
			return u, nil
		}
	}
	return nil, nil
}

func (v *LocalVerifier) Verify(ctx context.Context, email, password string) (*Principal, error) {
	u, err := v.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &Principal{ID: u.ID, Name: u.Name, Email: u.Email, PhotoURL: u.PhotoURL}, nil
}

func (v *LocalVerifier) CreateAccount(ctx context.Context, name, email, password string) (*Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Principal{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}, nil
}

// SignOut is a no-op locally; there is no collaborator-side session to
// terminate.
func (v *LocalVerifier) SignOut(ctx context.Context, principalID string) error {
	return nil
}

func (v *LocalVerifier) IssueResetCode(ctx context.Context, email string) (string, error) {
	u, err := v.findByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u == nil {
		// Same response whether or not the account exists; the code
		// simply never validates.
		return uuid.New().String(), nil
	}

	code := uuid.New().String()
	v.mu.Lock()
	v.resets[code] = resetEntry{email: u.Email, expires: time.Now().Add(resetCodeTTL)}
	v.mu.Unlock()
	return code, nil
}

func (v *LocalVerifier) ConfirmReset(ctx context.Context, oobCode, newPassword string) error {
	v.mu.Lock()
	entry, ok := v.resets[oobCode]
	if ok {
		delete(v.resets, oobCode)
	}
	v.mu.Unlock()
	if !ok || time.Now().After(entry.expires) {
		return ErrResetCodeInvalid
	}

	u, err := v.findByEmail(ctx, entry.email)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrResetCodeInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return v.backend.Patch(ctx, store.CollectionUsers, u.ID, store.Record{
		"passwordHash": string(hash),
	})
}
