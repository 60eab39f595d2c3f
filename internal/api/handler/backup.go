package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/dochub/internal/api/request"
	"github.com/edvin/dochub/internal/api/response"
	"github.com/edvin/dochub/internal/backup"
	"github.com/edvin/dochub/internal/model"
)

// BackupRunner is the orchestrator surface the handler needs.
type BackupRunner interface {
	Trigger(ctx context.Context, kind, initiator string) (string, error)
	Status(ctx context.Context, jobID string) (model.BackupJob, error)
	ListRemote(ctx context.Context) ([]model.RemoteFolder, error)
}

// HistoryLister pages through the durable backup audit trail.
type HistoryLister interface {
	List(ctx context.Context, limit int, cursor string) ([]model.HistoryRecord, bool, error)
}

type Backup struct {
	runner  BackupRunner
	history HistoryLister
}

func NewBackup(runner BackupRunner, history HistoryLister) *Backup {
	return &Backup{runner: runner, history: history}
}

func (h *Backup) Trigger(w http.ResponseWriter, r *http.Request) {
	var req request.TriggerBackup
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.runner.Trigger(r.Context(), model.KindManual, req.Initiator)
	if err != nil {
		switch {
		case errors.Is(err, backup.ErrAlreadyRunning):
			response.WriteError(w, http.StatusConflict, err.Error())
		case errors.Is(err, backup.ErrStoreNotReady):
			response.WriteError(w, http.StatusServiceUnavailable, err.Error())
		default:
			response.WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	job, err := h.runner.Status(r.Context(), jobID)
	if err != nil {
		// The job was admitted; fall back to the bare id.
		response.WriteJSON(w, http.StatusAccepted, map[string]string{"id": jobID})
		return
	}
	response.WriteJSON(w, http.StatusAccepted, job)
}

func (h *Backup) Progress(w http.ResponseWriter, r *http.Request) {
	jobID, err := request.RequireID(chi.URLParam(r, "jobID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.runner.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, backup.ErrJobNotFound) {
			response.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

func (h *Backup) ListRemote(w http.ResponseWriter, r *http.Request) {
	folders, err := h.runner.ListRemote(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if folders == nil {
		folders = []model.RemoteFolder{}
	}
	response.WriteJSON(w, http.StatusOK, folders)
}

func (h *Backup) History(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	records, hasMore, err := h.history.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextCursor string
	if hasMore && len(records) > 0 {
		nextCursor = strconv.FormatInt(records[len(records)-1].ID, 10)
	}
	response.WritePaginated(w, http.StatusOK, records, nextCursor, hasMore)
}
