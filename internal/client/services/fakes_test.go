package services

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/daybook-app/daybook/internal/client/localdb"
	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/client/remote"
	"github.com/daybook-app/daybook/internal/client/repositories/entries"
	"github.com/daybook-app/daybook/internal/client/repositories/settings"
	"github.com/daybook-app/daybook/internal/logging"
)

// fakeRemote is an in-memory stand-in for the server. Individual calls can be
// made to fail by setting the corresponding err field; failN makes the next N
// Upsert calls fail before succeeding.
type fakeRemote struct {
	mu       sync.Mutex
	docs     map[string]models.Entry
	serverTS int64

	upsertErr  error
	upsertFail int
	upsertN    int
	rejectID   string
	queryErr   error
	orderedErr error
	deleteErr  error

	presignErr  error
	uploadErr   error
	uploadErrAt map[int]error // 1-based UploadObject call number -> error
	uploadCalls int
	markErr     error
	uploaded   map[string][]byte
	marked     map[string]string
	delBlobs   []string

	access, refresh string

	sub *fakeSub
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:     make(map[string]models.Entry),
		uploaded: make(map[string][]byte),
		marked:   make(map[string]string),
	}
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) Register(ctx context.Context, username, password string) error { return nil }

func (f *fakeRemote) Login(ctx context.Context, username, password string) (string, error) {
	f.access, f.refresh = "access-"+username, "refresh-"+username
	return "owner-" + username, nil
}

func (f *fakeRemote) SetTokens(access, refresh string) { f.access, f.refresh = access, refresh }

func (f *fakeRemote) Tokens() (string, string) { return f.access, f.refresh }

func (f *fakeRemote) Ping(ctx context.Context) error { return nil }

func (f *fakeRemote) Upsert(ctx context.Context, entry *models.Entry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertN++
	if f.upsertFail > 0 {
		f.upsertFail--
		return 0, remote.ErrUnavailable
	}
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	if f.rejectID != "" && entry.Id == f.rejectID {
		return 0, remote.ErrRejected
	}
	f.serverTS++
	stored := *entry
	stored.ServerTS = f.serverTS
	stored.Status = models.StatusSynced
	f.docs[entry.Id] = stored
	return f.serverTS, nil
}

func (f *fakeRemote) Get(ctx context.Context, id string) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.docs[id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return &e, nil
}

func (f *fakeRemote) Query(ctx context.Context, ownerId string, byServerTS bool) ([]models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if byServerTS && f.orderedErr != nil {
		return nil, f.orderedErr
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []models.Entry
	for _, e := range f.docs {
		if e.OwnerId == ownerId {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.docs, id)
	return nil
}

func (f *fakeRemote) Watch(ctx context.Context, ownerId string) (remote.Subscription, error) {
	return f.sub, nil
}

func (f *fakeRemote) PresignPut(ctx context.Context, entryID, filename string) (string, string, error) {
	if f.presignErr != nil {
		return "", "", f.presignErr
	}
	key := entryID + "/" + filename
	return key, "https://blobs.test/" + key, nil
}

func (f *fakeRemote) PresignGet(ctx context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (f *fakeRemote) UploadObject(ctx context.Context, url string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if err := f.uploadErrAt[f.uploadCalls]; err != nil {
		return err
	}
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded[url] = data
	return nil
}

func (f *fakeRemote) MarkUploaded(ctx context.Context, entryID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked[key] = entryID
	return nil
}

func (f *fakeRemote) DeleteBlob(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delBlobs = append(f.delBlobs, key)
	return nil
}

func (f *fakeRemote) upsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertN
}

func (f *fakeRemote) doc(id string) (models.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.docs[id]
	return e, ok
}

type fakeSub struct {
	ch      chan []models.Entry
	err     error
	closeMu sync.Once
}

func newFakeSub() *fakeSub {
	return &fakeSub{ch: make(chan []models.Entry, 4)}
}

func (s *fakeSub) C() <-chan []models.Entry { return s.ch }
func (s *fakeSub) Err() error               { return s.err }
func (s *fakeSub) Close() error {
	s.closeMu.Do(func() { close(s.ch) })
	return nil
}

type fakeMonitor struct {
	online atomic.Bool
	events chan bool
}

func newFakeMonitor(online bool) *fakeMonitor {
	m := &fakeMonitor{events: make(chan bool, 4)}
	m.online.Store(online)
	return m
}

func (m *fakeMonitor) IsOnline() bool      { return m.online.Load() }
func (m *fakeMonitor) Events() <-chan bool { return m.events }

func (m *fakeMonitor) goOnline() {
	m.online.Store(true)
	m.events <- true
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupRepos(t *testing.T) (entries.Repository, settings.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, localdb.RunMigrations(context.Background(), db))
	return entries.NewSQLiteRepository(db), settings.NewSQLiteRepository(db)
}

// mustJPEG renders a small gradient image for attachment tests.
func mustJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}
