package share

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/auth"
	"github.com/abduss/clientdrop/internal/blob"
	"github.com/abduss/clientdrop/internal/events"
	"github.com/abduss/clientdrop/internal/file"
	"github.com/abduss/clientdrop/internal/storage"
	"github.com/abduss/clientdrop/internal/storage/migrations"
	"github.com/abduss/clientdrop/internal/token"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// expiredIssuer signs real capabilities but reports every one as expired.
type expiredIssuer struct {
	*token.Issuer
}

func (expiredIssuer) VerifyCapability(string) (token.CapabilityClaims, error) {
	return token.CapabilityClaims{}, token.ErrExpiredCredential
}

type fixture struct {
	files     *file.Service
	blobs     *blob.LocalStore
	issuer    *token.Issuer
	publisher *recordingPublisher
	owner     int64
	stranger  int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(ctx, db, migrations.DialectSQLite, zap.NewNop()))

	accounts := auth.NewSQLiteRepository(db)
	owner, err := accounts.CreateAccount(ctx, "OWNER1", "Owner", "hash")
	require.NoError(t, err)
	stranger, err := accounts.CreateAccount(ctx, "OTHER1", "Other", "hash")
	require.NoError(t, err)

	blobs, err := blob.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	publisher := &recordingPublisher{}
	registry := file.NewRegistry(file.NewSQLiteRepository(db), blobs, nil)
	return fixture{
		files:     file.NewService(registry, blobs, publisher, 1024, nil),
		blobs:     blobs,
		issuer:    token.NewIssuer([]byte("share-test"), time.Hour, time.Hour),
		publisher: publisher,
		owner:     owner.ID,
		stranger:  stranger.ID,
	}
}

func (f fixture) upload(t *testing.T, content string) file.Record {
	t.Helper()
	rec, err := f.files.Upload(context.Background(), file.UploadInput{
		OwnerID:  f.owner,
		Filename: "statement.txt",
		Body:     bytes.NewBufferString(content),
	})
	require.NoError(t, err)
	return rec
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestShareAndRedeem(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.files, f.issuer, f.publisher, nil)
	rec := f.upload(t, "balance: 42")

	link, err := svc.Share(context.Background(), f.owner, rec.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, link.Token)
	assert.True(t, link.ExpiresAt.After(time.Now()))

	// links stay valid until they expire, so a second redemption works too
	for i := 0; i < 2; i++ {
		got, rc, err := svc.Redeem(context.Background(), link.Token)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "balance: 42", readAll(t, rc))
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, events.TypeFileShared, f.publisher.events[1].Type)
	assert.Equal(t, rec.ID, f.publisher.events[1].FileID)
}

func TestShareRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.files, f.issuer, nil, nil)
	rec := f.upload(t, "private")

	_, err := svc.Share(context.Background(), f.stranger, rec.ID)
	assert.ErrorIs(t, err, file.ErrNotFound)

	_, err = svc.Share(context.Background(), f.owner, uuid.New())
	assert.ErrorIs(t, err, file.ErrNotFound)
}

func TestRedeemFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.files, f.issuer, nil, nil)

	deleted := f.upload(t, "gone")
	deletedLink, err := svc.Share(context.Background(), f.owner, deleted.ID)
	require.NoError(t, err)
	require.NoError(t, f.files.Delete(context.Background(), f.owner, deleted.ID))

	orphan := f.upload(t, "bytes vanish")
	orphanLink, err := svc.Share(context.Background(), f.owner, orphan.ID)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(context.Background(), orphan.StorageKey))

	session, _, err := f.issuer.IssueSession(token.SessionSubject{AccountID: f.owner, Code: "OWNER1"})
	require.NoError(t, err)

	foreign := token.NewIssuer([]byte("other-secret"), time.Hour, time.Hour)
	forged, _, err := foreign.IssueCapability(orphan.ID)
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":         "not-a-token",
		"empty":           "",
		"deleted file":    deletedLink.Token,
		"missing bytes":   orphanLink.Token,
		"session token":   session,
		"foreign signing": forged,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, rc, err := svc.Redeem(context.Background(), tok)
			assert.ErrorIs(t, err, ErrLinkInvalid)
			assert.Nil(t, rc)
		})
	}
}

func TestRedeemExpiredLink(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.files, expiredIssuer{f.issuer}, nil, nil)
	rec := f.upload(t, "late")

	link, err := svc.Share(context.Background(), f.owner, rec.ID)
	require.NoError(t, err)

	_, _, err = svc.Redeem(context.Background(), link.Token)
	assert.True(t, errors.Is(err, ErrLinkInvalid))
}

func TestBaseURL(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name      string
		publicURL string
		header    string
		want      string
	}{
		{name: "request host", want: "http://files.local"},
		{name: "forwarded proto", header: "https", want: "https://files.local"},
		{name: "ignores junk proto", header: "gopher", want: "http://files.local"},
		{name: "configured url", publicURL: "https://drop.example/", header: "http", want: "https://drop.example"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "http://files.local/api/files/x/share", nil)
			if tc.header != "" {
				c.Request.Header.Set("X-Forwarded-Proto", tc.header)
			}
			h := NewHandler(nil, tc.publicURL, nil)
			assert.Equal(t, tc.want, h.baseURL(c))
		})
	}
}
