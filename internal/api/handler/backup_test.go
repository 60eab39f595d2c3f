package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dochub/internal/backup"
	"github.com/edvin/dochub/internal/model"
)

type fakeRunner struct {
	triggerID   string
	triggerErr  error
	triggerKind string
	triggerBy   string
	job         model.BackupJob
	statusErr   error
	folders     []model.RemoteFolder
	listErr     error
}

func (f *fakeRunner) Trigger(_ context.Context, kind, initiator string) (string, error) {
	f.triggerKind = kind
	f.triggerBy = initiator
	return f.triggerID, f.triggerErr
}

func (f *fakeRunner) Status(_ context.Context, jobID string) (model.BackupJob, error) {
	if f.statusErr != nil {
		return model.BackupJob{}, f.statusErr
	}
	return f.job, nil
}

func (f *fakeRunner) ListRemote(context.Context) ([]model.RemoteFolder, error) {
	return f.folders, f.listErr
}

type fakeHistoryLister struct {
	records []model.HistoryRecord
	hasMore bool
	err     error
	limit   int
	cursor  string
}

func (f *fakeHistoryLister) List(_ context.Context, limit int, cursor string) ([]model.HistoryRecord, bool, error) {
	f.limit = limit
	f.cursor = cursor
	return f.records, f.hasMore, f.err
}

// --- Trigger ---

func TestBackupTrigger_Accepted(t *testing.T) {
	runner := &fakeRunner{
		triggerID: "job-1",
		job:       model.BackupJob{ID: "job-1", State: model.StatePending, Percent: 0},
	}
	h := NewBackup(runner, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/backups", map[string]any{"initiator": "admin"})

	h.Trigger(rec, r)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, model.KindManual, runner.triggerKind)
	assert.Equal(t, "admin", runner.triggerBy)

	var job model.BackupJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "job-1", job.ID)
}

func TestBackupTrigger_InvalidJSON(t *testing.T) {
	h := NewBackup(&fakeRunner{}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/backups", "{bad json")

	h.Trigger(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestBackupTrigger_MissingInitiator(t *testing.T) {
	h := NewBackup(&fakeRunner{}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/backups", map[string]any{})

	h.Trigger(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestBackupTrigger_AlreadyRunning(t *testing.T) {
	h := NewBackup(&fakeRunner{triggerErr: backup.ErrAlreadyRunning}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/backups", map[string]any{"initiator": "admin"})

	h.Trigger(rec, r)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBackupTrigger_StoreNotReady(t *testing.T) {
	h := NewBackup(&fakeRunner{triggerErr: backup.ErrStoreNotReady}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/backups", map[string]any{"initiator": "admin"})

	h.Trigger(rec, r)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBackupTrigger_InternalError(t *testing.T) {
	h := NewBackup(&fakeRunner{triggerErr: errors.New("db down")}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/backups", map[string]any{"initiator": "admin"})

	h.Trigger(rec, r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- Progress ---

func TestBackupProgress_OK(t *testing.T) {
	runner := &fakeRunner{job: model.BackupJob{
		ID:            "job-1",
		State:         model.StateRunning,
		Percent:       45,
		StatusMessage: "Exporting messages...",
	}}
	h := NewBackup(runner, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodGet, "/backups/job-1", nil), "jobID", "job-1")

	h.Progress(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	var job model.BackupJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, 45, job.Percent)
	assert.Equal(t, model.StateRunning, job.State)
}

func TestBackupProgress_NotFound(t *testing.T) {
	h := NewBackup(&fakeRunner{statusErr: backup.ErrJobNotFound}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodGet, "/backups/nope", nil), "jobID", "nope")

	h.Progress(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackupProgress_MissingID(t *testing.T) {
	h := NewBackup(&fakeRunner{}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()
	r := withChiURLParam(newRequest(http.MethodGet, "/backups/", nil), "jobID", "")

	h.Progress(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- ListRemote ---

func TestBackupListRemote_OK(t *testing.T) {
	runner := &fakeRunner{folders: []model.RemoteFolder{
		{ID: "DocumentHub_Backups/b/", Name: "b", CreatedAt: time.Now()},
		{ID: "DocumentHub_Backups/a/", Name: "a", CreatedAt: time.Now().Add(-time.Hour)},
	}}
	h := NewBackup(runner, &fakeHistoryLister{})
	rec := httptest.NewRecorder()

	h.ListRemote(rec, newRequest(http.MethodGet, "/backup-folders", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var folders []model.RemoteFolder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &folders))
	require.Len(t, folders, 2)
	assert.Equal(t, "b", folders[0].Name)
}

func TestBackupListRemote_EmptyIsNotNull(t *testing.T) {
	h := NewBackup(&fakeRunner{}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()

	h.ListRemote(rec, newRequest(http.MethodGet, "/backup-folders", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestBackupListRemote_Error(t *testing.T) {
	h := NewBackup(&fakeRunner{listErr: errors.New("endpoint unreachable")}, &fakeHistoryLister{})
	rec := httptest.NewRecorder()

	h.ListRemote(rec, newRequest(http.MethodGet, "/backup-folders", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- History ---

func TestBackupHistory_Paginated(t *testing.T) {
	lister := &fakeHistoryLister{
		records: []model.HistoryRecord{
			{ID: 12, BackupType: model.KindManual, Status: model.HistorySuccess},
			{ID: 11, BackupType: model.KindAuto, Status: model.HistoryFailed},
		},
		hasMore: true,
	}
	h := NewBackup(&fakeRunner{}, lister)
	rec := httptest.NewRecorder()

	h.History(rec, newRequest(http.MethodGet, "/backup-history?limit=2&cursor=13", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, lister.limit)
	assert.Equal(t, "13", lister.cursor)

	var body struct {
		Items      []model.HistoryRecord `json:"items"`
		NextCursor string                `json:"next_cursor"`
		HasMore    bool                  `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "11", body.NextCursor)
	assert.True(t, body.HasMore)
}

func TestBackupHistory_Error(t *testing.T) {
	h := NewBackup(&fakeRunner{}, &fakeHistoryLister{err: errors.New("db down")})
	rec := httptest.NewRecorder()

	h.History(rec, newRequest(http.MethodGet, "/backup-history", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
