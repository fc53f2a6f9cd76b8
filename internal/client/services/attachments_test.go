package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybook-app/daybook/internal/client/models"
	"github.com/daybook-app/daybook/internal/client/remote"
	"github.com/daybook-app/daybook/internal/client/repositories/entries"
	"github.com/daybook-app/daybook/internal/client/repositories/settings"
)

type attachFixture struct {
	svc     *attachmentService
	sync    SyncService
	rc      *fakeRemote
	mon     *fakeMonitor
	entries entries.Repository
	setts   settings.Repository
	dir     string
}

func newAttachFixture(t *testing.T, online bool) *attachFixture {
	t.Helper()
	erepo, srepo := setupRepos(t)
	rc := newFakeRemote()
	mon := newFakeMonitor(online)
	log := testLogger()
	syncSvc := NewSyncService(rc, erepo, mon, testOwner, log)
	dir := t.TempDir()
	svc := NewAttachmentService(rc, syncSvc, srepo, mon, dir, log).(*attachmentService)
	return &attachFixture{svc: svc, sync: syncSvc, rc: rc, mon: mon, entries: erepo, setts: srepo, dir: dir}
}

func TestAttach_Online_FullPipeline(t *testing.T) {
	f := newAttachFixture(t, true)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))

	require.NoError(t, f.svc.Attach(ctx, e, [][]byte{mustJPEG(t, 40, 30)}))

	stored, err := f.entries.GetByID(ctx, e.Id)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 1)
	ref := stored.Attachments[0]
	assert.True(t, ref.Uploaded())
	assert.FileExists(t, ref.LocalPath)
	assert.Equal(t, models.StatusSynced, stored.Status)

	f.rc.mu.Lock()
	assert.Len(t, f.rc.uploaded, 1)
	assert.Contains(t, f.rc.marked, ref.RemoteKey)
	f.rc.mu.Unlock()
}

func TestAttach_Offline_TicketSurvives(t *testing.T) {
	f := newAttachFixture(t, false)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))
	require.NoError(t, f.svc.Attach(ctx, e, [][]byte{mustJPEG(t, 40, 30)}))

	// the file is on disk and the ref recorded, nothing uploaded
	stored, err := f.entries.GetByID(ctx, e.Id)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 1)
	assert.False(t, stored.Attachments[0].Uploaded())
	assert.Equal(t, models.StatusPendingUpload, stored.Status)

	tickets, err := f.svc.loadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, e.Id, tickets[0].EntryID)

	// a fresh service over the same stores sees the ticket: restart survival
	svc2 := NewAttachmentService(f.rc, f.sync, f.setts, f.mon, f.dir, testLogger()).(*attachmentService)
	f.mon.online.Store(true)
	require.NoError(t, svc2.DrainUploads(ctx))

	stored, err = f.entries.GetByID(ctx, e.Id)
	require.NoError(t, err)
	assert.True(t, stored.Attachments[0].Uploaded())
	assert.Equal(t, models.StatusSynced, stored.Status)

	tickets, err = svc2.loadTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestAttach_UnreadableImageSkipped(t *testing.T) {
	f := newAttachFixture(t, true)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))

	err := f.svc.Attach(ctx, e, [][]byte{[]byte("not an image"), mustJPEG(t, 40, 30)})
	require.NoError(t, err)

	stored, gerr := f.entries.GetByID(ctx, e.Id)
	require.NoError(t, gerr)
	assert.Len(t, stored.Attachments, 1)
}

func TestAttach_AllImagesUnreadable(t *testing.T) {
	f := newAttachFixture(t, true)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))

	err := f.svc.Attach(ctx, e, [][]byte{[]byte("junk")})
	assert.Error(t, err)
}

func TestAttach_TransientUploadFailureTickets(t *testing.T) {
	f := newAttachFixture(t, true)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))

	f.rc.uploadErr = remote.ErrUnavailable
	require.NoError(t, f.svc.Attach(ctx, e, [][]byte{mustJPEG(t, 40, 30)}))

	stored, err := f.entries.GetByID(ctx, e.Id)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 1)
	assert.False(t, stored.Attachments[0].Uploaded())
	assert.Equal(t, models.StatusPendingUpload, stored.Status)

	tickets, err := f.svc.loadTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)

	// connectivity returns, the drain finishes the job
	f.rc.uploadErr = nil
	require.NoError(t, f.svc.DrainUploads(ctx))

	stored, err = f.entries.GetByID(ctx, e.Id)
	require.NoError(t, err)
	assert.True(t, stored.Attachments[0].Uploaded())
	assert.Equal(t, models.StatusSynced, stored.Status)
}

func TestAttach_TerminalUploadFailureSurfaces(t *testing.T) {
	f := newAttachFixture(t, true)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))

	f.rc.uploadErr = remote.ErrQuotaExceeded
	err := f.svc.Attach(ctx, e, [][]byte{mustJPEG(t, 40, 30)})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrQuotaExceeded)

	// no ticket for a failure a retry cannot fix
	tickets, terr := f.svc.loadTickets(ctx)
	require.NoError(t, terr)
	assert.Empty(t, tickets)
}

func TestAttach_OneFailureDoesNotAbortOthers(t *testing.T) {
	f := newAttachFixture(t, true)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))

	// second upload dies terminally, its neighbours must still land
	f.rc.uploadErrAt = map[int]error{2: remote.ErrQuotaExceeded}
	err := f.svc.Attach(ctx, e, [][]byte{
		mustJPEG(t, 40, 30),
		mustJPEG(t, 50, 30),
		mustJPEG(t, 60, 30),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrQuotaExceeded)

	stored, gerr := f.entries.GetByID(ctx, e.Id)
	require.NoError(t, gerr)
	require.Len(t, stored.Attachments, 3)
	assert.True(t, stored.Attachments[0].Uploaded())
	assert.False(t, stored.Attachments[1].Uploaded())
	assert.True(t, stored.Attachments[2].Uploaded())
	assert.Equal(t, models.StatusPendingUpload, stored.Status)

	f.rc.mu.Lock()
	assert.Len(t, f.rc.uploaded, 2)
	assert.Len(t, f.rc.marked, 2)
	f.rc.mu.Unlock()

	// a terminal failure earns no ticket
	tickets, terr := f.svc.loadTickets(ctx)
	require.NoError(t, terr)
	assert.Empty(t, tickets)
}

func TestDrainUploads_DropsTicketsForDeletedEntries(t *testing.T) {
	f := newAttachFixture(t, false)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))
	require.NoError(t, f.svc.Attach(ctx, e, [][]byte{mustJPEG(t, 40, 30)}))

	path := e.Attachments[0].LocalPath
	require.NoError(t, f.entries.Purge(ctx, e.Id))

	f.mon.online.Store(true)
	require.NoError(t, f.svc.DrainUploads(ctx))

	tickets, err := f.svc.loadTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickets)
	_, serr := os.Stat(path)
	assert.True(t, os.IsNotExist(serr))
}

func TestDeleteEntry_CleansUpEverywhere(t *testing.T) {
	f := newAttachFixture(t, true)
	ctx := context.Background()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))
	require.NoError(t, f.svc.Attach(ctx, e, [][]byte{mustJPEG(t, 40, 30)}))

	stored, err := f.entries.GetByID(ctx, e.Id)
	require.NoError(t, err)
	path := stored.Attachments[0].LocalPath
	key := stored.Attachments[0].RemoteKey

	require.NoError(t, f.svc.DeleteEntry(ctx, e.Id))

	_, serr := os.Stat(path)
	assert.True(t, os.IsNotExist(serr))
	f.rc.mu.Lock()
	assert.Contains(t, f.rc.delBlobs, key)
	f.rc.mu.Unlock()
	_, ok := f.rc.doc(e.Id)
	assert.False(t, ok)
	_, err = f.entries.GetByID(ctx, e.Id)
	assert.Error(t, err)
}

func TestAttachmentRun_DrainsOnReconnect(t *testing.T) {
	f := newAttachFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := models.NewEntry(testOwner, "title", "body")
	require.NoError(t, f.sync.Save(ctx, e))
	require.NoError(t, f.svc.Attach(ctx, e, [][]byte{mustJPEG(t, 40, 30)}))

	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()

	f.mon.goOnline()

	require.Eventually(t, func() bool {
		stored, err := f.entries.GetByID(ctx, e.Id)
		return err == nil && len(stored.Attachments) == 1 && stored.Attachments[0].Uploaded()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
