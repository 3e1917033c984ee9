package invites

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/outreach-platform/internal/identity"
	"github.com/openharvest/outreach-platform/internal/notify"
	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

type recordingSender struct {
	sent []notify.EmailMessage
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg notify.EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func newInviteService(t *testing.T, sender notify.EmailSender) (*Service, store.Backend) {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir(), logging.Default())
	require.NoError(t, err)
	return NewService(backend, sender, "https://outreach.example.com/", logging.Default()), backend
}

func TestCreateSendsAndRecords(t *testing.T) {
	sender := &recordingSender{}
	svc, backend := newInviteService(t, sender)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateRequest{
		Email: "New.Volunteer@Example.com",
		Role:  identity.RoleTeamMember,
	}, "Pastor John")
	require.NoError(t, err)

	assert.Equal(t, "new.volunteer@example.com", inv.Email)
	assert.Equal(t, StatusSent, inv.Status)
	assert.Equal(t, "Pastor John", inv.InvitedBy)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "new.volunteer@example.com", msg.To)
	assert.Contains(t, msg.Body, "Pastor John")

	rec, err := backend.Get(ctx, store.CollectionInvitations, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "sent", rec["status"])
}

func TestCreateRecordsFailedDelivery(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	svc, backend := newInviteService(t, sender)
	ctx := context.Background()

	inv, err := svc.Create(ctx, CreateRequest{Email: "v@example.com"}, "Pastor John")
	require.NoError(t, err, "delivery failure must not fail the operation")
	assert.Equal(t, StatusFailed, inv.Status)

	rec, err := backend.Get(ctx, store.CollectionInvitations, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", rec["status"])
}

func TestCreateDefaultsRole(t *testing.T) {
	svc, _ := newInviteService(t, &recordingSender{})
	inv, err := svc.Create(context.Background(), CreateRequest{Email: "v@example.com"}, "Ana")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleTeamMember, inv.Role)
}

func TestCreateRejectsSuperAdminRole(t *testing.T) {
	svc, _ := newInviteService(t, &recordingSender{})
	_, err := svc.Create(context.Background(), CreateRequest{
		Email: "v@example.com",
		Role:  identity.RoleSuperAdmin,
	}, "Ana")
	assert.Error(t, err)
}

func TestCreateRejectsBadEmail(t *testing.T) {
	svc, _ := newInviteService(t, &recordingSender{})
	_, err := svc.Create(context.Background(), CreateRequest{Email: "not-an-email"}, "Ana")
	assert.Error(t, err)
}

func TestJoinURLCarriesReferral(t *testing.T) {
	svc, _ := newInviteService(t, &recordingSender{})

	inv, err := svc.Create(context.Background(), CreateRequest{
		Email: "v@example.com",
		Role:  identity.RoleAdmin,
	}, "Pastor John")
	require.NoError(t, err)

	link := svc.JoinURL(inv)
	assert.True(t, strings.HasPrefix(link, "https://outreach.example.com/join?"))

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Query().Get("refRole"))
	assert.Equal(t, "Pastor John", u.Query().Get("refBy"))
}

func TestListReturnsAll(t *testing.T) {
	svc, _ := newInviteService(t, &recordingSender{})
	ctx := context.Background()

	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := svc.Create(ctx, CreateRequest{Email: email}, "Ana")
		require.NoError(t, err)
	}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
