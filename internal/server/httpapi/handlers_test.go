package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-app/daybook/internal/common"
	"github.com/daybook-app/daybook/internal/logging"
	"github.com/daybook-app/daybook/internal/server/models"
	"github.com/daybook-app/daybook/internal/server/services"
)

const testUserID = "6a8f0a50-0f3a-4a57-9b56-5b6d6d4b9f01"

type fakeUsers struct {
	registerErr error
	loginErr    error
	refreshErr  error
	verifyErr   error
}

func (f *fakeUsers) Register(ctx context.Context, username, password string) (*models.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &models.User{ID: testUserID, UserName: username}, nil
}

func (f *fakeUsers) Login(ctx context.Context, username, password string) (*models.User, *services.TokenPair, error) {
	if f.loginErr != nil {
		return nil, nil, f.loginErr
	}
	return &models.User{ID: testUserID, UserName: username},
		&services.TokenPair{AccessToken: "access1", RefreshToken: "refresh1"}, nil
}

func (f *fakeUsers) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "access2", RefreshToken: "refresh2"}, nil
}

func (f *fakeUsers) VerifyAccessToken(tokenString string) (string, error) {
	if f.verifyErr != nil {
		return "", f.verifyErr
	}
	if tokenString != "access1" {
		return "", common.ErrInvalidToken
	}
	return testUserID, nil
}

type fakeEntries struct {
	store     map[string]models.Entry
	serverTS  int64
	upsertErr error
	queryErr  error
	marked    map[string]string
}

func newFakeEntries() *fakeEntries {
	return &fakeEntries{store: make(map[string]models.Entry), marked: make(map[string]string)}
}

func (f *fakeEntries) Upsert(ctx context.Context, entry *models.Entry) (int64, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.serverTS++
	entry.ServerTS = f.serverTS
	f.store[entry.ID] = *entry
	return f.serverTS, nil
}

func (f *fakeEntries) Get(ctx context.Context, ownerID, id string) (*models.Entry, error) {
	e, ok := f.store[id]
	if !ok || e.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return &e, nil
}

func (f *fakeEntries) Query(ctx context.Context, ownerID string, byServerTS bool) ([]models.Entry, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []models.Entry
	for _, e := range f.store {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEntries) Delete(ctx context.Context, ownerID, id string) error {
	delete(f.store, id)
	return nil
}

func (f *fakeEntries) MarkUploaded(ctx context.Context, ownerID, id, key string) error {
	if _, ok := f.store[id]; !ok {
		return common.ErrNotFound
	}
	f.marked[key] = id
	return nil
}

func (f *fakeEntries) PresignPut(ctx context.Context, ownerID, entryID, filename string) (string, string, error) {
	key := fmt.Sprintf("attachments/%s/%s/%s", ownerID, entryID, filename)
	return key, "http://blobstore/" + key, nil
}

func (f *fakeEntries) PresignGet(ctx context.Context, key string) (string, error) {
	return "http://blobstore/" + key, nil
}

func (f *fakeEntries) DeleteBlob(ctx context.Context, key string) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, *fakeUsers, *fakeEntries) {
	t.Helper()
	users := &fakeUsers{}
	entries := newFakeEntries()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewServer(users, entries, log), users, entries
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHandleRegister(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/register", "",
		map[string]string{"username": "alice", "password": "secret"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandleRegister_Conflict(t *testing.T) {
	srv, users, _ := newTestServer(t)
	users.registerErr = common.ErrAlreadyExists
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/register", "",
		map[string]string{"username": "alice", "password": "secret"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var payload errPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, common.CodeValidation, payload.Code)
}

func TestHandleRegister_MissingFields(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/register", "",
		map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLogin(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "alice", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, testUserID, resp["user_id"])
	assert.Equal(t, "access1", resp["access_token"])
	assert.Equal(t, "refresh1", resp["refresh_token"])
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	srv, users, _ := newTestServer(t)
	users.loginErr = common.ErrUnauthorized
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var payload errPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, common.CodeUnauthorized, payload.Code)
}

func TestHandleRefresh_Expired(t *testing.T) {
	srv, users, _ := newTestServer(t)
	users.refreshErr = common.ErrTokenExpired
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/auth/refresh", "",
		map[string]string{"refresh_token": "stale"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var payload errPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, common.CodeTokenExpired, payload.Code)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	srv, users, _ := newTestServer(t)
	users.verifyErr = common.ErrTokenExpired
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entries", "stale", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var payload errPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, common.CodeTokenExpired, payload.Code)
}

func TestHandleUpsertEntry(t *testing.T) {
	srv, _, entries := newTestServer(t)
	h := srv.Router()

	doc := entryDoc{Title: "First", Body: "hello", Mood: "calm", LastModified: 42}
	rec := doRequest(t, h, http.MethodPut, "/api/v1/entries/e1", "access1", doc)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	decodeBody(t, rec, &resp)
	assert.Equal(t, int64(1), resp["server_ts"])

	stored := entries.store["e1"]
	assert.Equal(t, testUserID, stored.OwnerID)
	assert.Equal(t, "First", stored.Title)
}

func TestHandleUpsertEntry_ForeignOwner(t *testing.T) {
	srv, _, entries := newTestServer(t)
	entries.upsertErr = common.ErrUnauthorized
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPut, "/api/v1/entries/e1", "access1", entryDoc{Title: "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGetEntry_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entries/missing", "access1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var payload errPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, common.CodeNotFound, payload.Code)
}

func TestHandleQueryEntries(t *testing.T) {
	srv, _, entries := newTestServer(t)
	entries.store["e1"] = models.Entry{ID: "e1", OwnerID: testUserID, Title: "One"}
	entries.store["e2"] = models.Entry{ID: "e2", OwnerID: "somebody-else", Title: "Two"}
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entries", "access1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []entryDoc `json:"entries"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "e1", resp.Entries[0].ID)
}

func TestHandleQueryEntries_MissingIndex(t *testing.T) {
	srv, _, entries := newTestServer(t)
	entries.queryErr = common.ErrMissingIndex
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/api/v1/entries?order=server_ts", "access1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload errPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, common.CodeMissingIndex, payload.Code)
}

func TestHandleDeleteEntry(t *testing.T) {
	srv, _, entries := newTestServer(t)
	entries.store["e1"] = models.Entry{ID: "e1", OwnerID: testUserID}
	h := srv.Router()

	rec := doRequest(t, h, http.MethodDelete, "/api/v1/entries/e1", "access1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, entries.store)
}

func TestHandlePresignPut(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/attachments/presign-put", "access1",
		map[string]string{"entry_id": "e1", "filename": "photo.jpg"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp["key"], "e1")
	assert.NotEmpty(t, resp["url"])
}

func TestHandlePresignPut_QuotaExceeded(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	// wrap the fake to fail presigns
	srv.entries = &quotaEntries{entryAPI: srv.entries}
	rec := doRequest(t, h, http.MethodPost, "/api/v1/attachments/presign-put", "access1",
		map[string]string{"entry_id": "e1", "filename": "photo.jpg"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var payload errPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, common.CodeQuota, payload.Code)
}

type quotaEntries struct {
	entryAPI
}

func (q *quotaEntries) PresignPut(ctx context.Context, ownerID, entryID, filename string) (string, string, error) {
	return "", "", services.ErrQuotaExceeded
}

func TestHandleMarkUploaded(t *testing.T) {
	srv, _, entries := newTestServer(t)
	entries.store["e1"] = models.Entry{ID: "e1", OwnerID: testUserID}
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/v1/attachments/e1/uploaded", "access1",
		map[string]string{"key": "attachments/o/e1/a.jpg"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "e1", entries.marked["attachments/o/e1/a.jpg"])
}

func TestHandleDeleteBlob_MissingKey(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodDelete, "/api/v1/attachments", "access1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
