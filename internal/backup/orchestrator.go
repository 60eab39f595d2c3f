package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/dochub/internal/model"
	"github.com/edvin/dochub/internal/platform"
)

// Admission errors returned by Trigger.
var (
	ErrAlreadyRunning = errors.New("a backup is already in progress")
	ErrStoreNotReady  = errors.New("remote object store is not ready")
	ErrJobNotFound    = errors.New("backup job not found")
)

// ObjectStore is the remote destination for backup artifacts. The
// implementation owns parent-folder resolution; the orchestrator only
// creates one folder per job and uploads into it.
type ObjectStore interface {
	Ready() bool
	CreateBackupFolder(ctx context.Context, name string) (model.RemoteFolder, error)
	Upload(ctx context.Context, folder model.RemoteFolder, name, contentType string, r io.Reader) error
	ListBackupFolders(ctx context.Context) ([]model.RemoteFolder, error)
}

// History is the durable audit trail: one insert at admission, one terminal
// update per job.
type History interface {
	RecordStart(ctx context.Context, backupType, createdBy, folder string) (int64, error)
	RecordTerminal(ctx context.Context, id int64, status string, errMsg *string, fileCount int, totalSize int64) error
	GetByID(ctx context.Context, id int64) (*model.HistoryRecord, error)
}

// Notifier records admin-facing events for automatic jobs.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// DatabaseExporter produces the SQL script artifact.
type DatabaseExporter interface {
	Export(ctx context.Context, w io.Writer, backupType, createdBy string, progress ProgressFunc) (map[string]int, error)
}

// Archiver produces the documents archive artifact.
type Archiver interface {
	BuildArchive(dir string, w io.Writer) (int, int64, error)
}

// Config tunes the orchestrator. Zero values fall back to defaults.
type Config struct {
	DocumentsDir string
	ParentFolder string
	// GracePeriod keeps a finished job visible in the tracker before
	// eviction.
	GracePeriod time.Duration
	// RemoteCallTimeout bounds each individual remote-store call so a hung
	// endpoint cannot stall the worker forever.
	RemoteCallTimeout time.Duration
	Now               func() time.Time
}

const (
	defaultGracePeriod       = 5 * time.Minute
	defaultRemoteCallTimeout = 5 * time.Minute
)

// Orchestrator owns the single-flight invariant and drives the backup
// pipeline. Triggers are admitted synchronously and executed on one
// background worker, so at most one pipeline runs at a time both by check
// and by construction.
type Orchestrator struct {
	logger   zerolog.Logger
	tracker  *Tracker
	history  History
	notifier Notifier
	exporter DatabaseExporter
	archiver Archiver
	store    ObjectStore
	cfg      Config

	mu         sync.Mutex
	historyIDs map[string]int64

	jobs chan queuedJob
}

type queuedJob struct {
	job       model.BackupJob
	historyID int64
}

func NewOrchestrator(logger zerolog.Logger, tracker *Tracker, history History, notifier Notifier,
	exporter DatabaseExporter, archiver Archiver, store ObjectStore, cfg Config) *Orchestrator {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	if cfg.RemoteCallTimeout == 0 {
		cfg.RemoteCallTimeout = defaultRemoteCallTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ParentFolder == "" {
		cfg.ParentFolder = "DocumentHub_Backups"
	}
	return &Orchestrator{
		logger:     logger.With().Str("component", "backup-orchestrator").Logger(),
		tracker:    tracker,
		history:    history,
		notifier:   notifier,
		exporter:   exporter,
		archiver:   archiver,
		store:      store,
		cfg:        cfg,
		historyIDs: make(map[string]int64),
		jobs:       make(chan queuedJob, 1),
	}
}

// Run executes queued pipelines until ctx is cancelled. It must be running
// for accepted triggers to make progress.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qj := <-o.jobs:
			o.runPipeline(ctx, qj)
		}
	}
}

// Trigger admits a new backup job. It returns the job id immediately; the
// pipeline continues on the background worker. Rejections: ErrStoreNotReady
// while the remote store is still initializing, ErrAlreadyRunning while
// another job is pending or running.
func (o *Orchestrator) Trigger(ctx context.Context, kind, initiator string) (string, error) {
	if !o.store.Ready() {
		backupRejectedTotal.WithLabelValues("store_not_ready").Inc()
		return "", ErrStoreNotReady
	}

	now := o.cfg.Now()
	job := model.BackupJob{
		ID:               platform.NewID(),
		Kind:             kind,
		Initiator:        initiator,
		RemoteFolderName: "DocumentHub_Backup_" + now.Format("20060102_150405"),
		State:            model.StatePending,
		StatusMessage:    "Backup queued",
		StartedAt:        now,
		LastUpdatedAt:    now,
	}

	// Admission check and registration are one critical section so two
	// concurrent triggers cannot both pass the guard.
	o.mu.Lock()
	if o.tracker.Active() {
		o.mu.Unlock()
		backupRejectedTotal.WithLabelValues("already_running").Inc()
		return "", ErrAlreadyRunning
	}
	o.tracker.Register(job)
	o.mu.Unlock()

	historyID, err := o.history.RecordStart(ctx, kind, initiator, job.RemoteFolderName)
	if err != nil {
		o.tracker.SetState(job.ID, model.StateFailed, err.Error())
		o.tracker.ScheduleEviction(job.ID, 0)
		backupRejectedTotal.WithLabelValues("admission_error").Inc()
		return "", fmt.Errorf("record backup start: %w", err)
	}

	o.mu.Lock()
	o.historyIDs[job.ID] = historyID
	o.mu.Unlock()

	if kind == model.KindAuto {
		o.notifyAuto(ctx, "Auto-backup Started",
			fmt.Sprintf("Automatic backup process started at %s\nBackup folder: %s",
				now.Format("2006-01-02 15:04:05"), job.RemoteFolderName))
	}

	select {
	case o.jobs <- queuedJob{job: job, historyID: historyID}:
	default:
		// Cannot happen while the single-flight guard holds; fail loudly
		// rather than block the caller.
		msg := "backup worker queue full"
		o.finalize(ctx, job, historyID, time.Time{}, pipelineStats{}, errors.New(msg))
		return "", errors.New(msg)
	}

	o.logger.Info().Str("job_id", job.ID).Str("kind", kind).Str("initiator", initiator).
		Str("folder", job.RemoteFolderName).Msg("backup job admitted")
	return job.ID, nil
}

// Status returns the live tracker snapshot for the job, falling back to the
// durable history record once the entry has been evicted.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (model.BackupJob, error) {
	if job, ok := o.tracker.Get(jobID); ok {
		return job, nil
	}

	o.mu.Lock()
	historyID, ok := o.historyIDs[jobID]
	o.mu.Unlock()
	if !ok {
		return model.BackupJob{}, ErrJobNotFound
	}

	rec, err := o.history.GetByID(ctx, historyID)
	if err != nil {
		return model.BackupJob{}, fmt.Errorf("load backup history for job %s: %w", jobID, err)
	}
	return jobFromHistory(jobID, rec), nil
}

// ListRemote lists backup folders in the remote store, newest first.
func (o *Orchestrator) ListRemote(ctx context.Context) ([]model.RemoteFolder, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RemoteCallTimeout)
	defer cancel()
	return o.store.ListBackupFolders(ctx)
}

// Busy reports whether a job is currently pending or running.
func (o *Orchestrator) Busy() bool {
	return o.tracker.Active()
}

// StoreReady reports whether the remote store has finished initializing.
func (o *Orchestrator) StoreReady() bool {
	return o.store.Ready()
}

type pipelineStats struct {
	fileCount int
	totalSize int64
}

func (o *Orchestrator) runPipeline(ctx context.Context, qj queuedJob) {
	job := qj.job
	logger := o.logger.With().Str("job_id", job.ID).Str("folder", job.RemoteFolderName).Logger()
	started := o.cfg.Now()

	o.tracker.SetState(job.ID, model.StateRunning, "")
	o.tracker.Update(job.ID, 5, "Initializing backup system...")
	logger.Info().Str("kind", job.Kind).Msg("backup pipeline started")

	var stats pipelineStats
	err := o.executeStages(ctx, job, &stats)

	elapsed := o.cfg.Now().Sub(started)
	backupDurationSeconds.Observe(elapsed.Seconds())
	o.finalize(ctx, job, qj.historyID, started, stats, err)

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("backup pipeline failed")
	} else {
		logger.Info().Dur("elapsed", elapsed).Int("files", stats.fileCount).
			Int64("bytes", stats.totalSize).Msg("backup pipeline completed")
	}
}

// finalize moves the job to its terminal state and settles history,
// notifications, and metrics. Persistence failures here are logged and
// never unwind the worker: the job's outcome is independent of audit-trail
// durability.
func (o *Orchestrator) finalize(ctx context.Context, job model.BackupJob, historyID int64,
	started time.Time, stats pipelineStats, pipelineErr error) {
	defer o.tracker.ScheduleEviction(job.ID, o.cfg.GracePeriod)

	now := o.cfg.Now()
	if pipelineErr == nil {
		o.tracker.Update(job.ID, 100, "Backup completed successfully!")
		o.tracker.SetState(job.ID, model.StateSucceeded, "")
		backupRunsTotal.WithLabelValues(job.Kind, "success").Inc()
		backupLastSuccessTimestamp.Set(float64(now.Unix()))

		if err := o.history.RecordTerminal(ctx, historyID, model.HistorySuccess, nil, stats.fileCount, stats.totalSize); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to finalize backup history")
		}
		if job.Kind == model.KindAuto {
			o.notifyAuto(ctx, "Auto-backup Completed",
				fmt.Sprintf("Automatic backup completed successfully!\nCompleted at: %s\nBackup folder: %s\nAll data has been securely backed up to remote storage.",
					now.Format("2006-01-02 15:04:05"), job.RemoteFolderName))
		}
		return
	}

	msg := pipelineErr.Error()
	o.tracker.Update(job.ID, 0, "Backup failed: "+msg)
	o.tracker.SetState(job.ID, model.StateFailed, msg)
	backupRunsTotal.WithLabelValues(job.Kind, "failure").Inc()

	if err := o.history.RecordTerminal(ctx, historyID, model.HistoryFailed, &msg, stats.fileCount, stats.totalSize); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to finalize backup history")
	}
	if job.Kind == model.KindAuto {
		o.notifyAuto(ctx, "Auto-backup Failed",
			fmt.Sprintf("Automatic backup failed!\nAttempted at: %s\nError: %s\nPlease check the server logs.",
				now.Format("2006-01-02 15:04:05"), msg))
	}
}

// executeStages runs the pipeline stages in order. The first failure aborts
// the rest; artifacts already uploaded stay in place.
func (o *Orchestrator) executeStages(ctx context.Context, job model.BackupJob, stats *pipelineStats) error {
	progress := func(percent int, message string) {
		o.tracker.Update(job.ID, percent, message)
	}

	progress(10, "Creating backup folder in remote storage...")
	folder, err := o.remoteCreateFolder(ctx, job.RemoteFolderName)
	if err != nil {
		return fmt.Errorf("create backup folder: %w", err)
	}

	progress(20, "Starting database backup...")
	if err := o.exportDatabase(ctx, job, folder, stats, progress); err != nil {
		return err
	}

	progress(60, "Starting documents backup...")
	if err := o.archiveDocuments(ctx, job, folder, stats, progress); err != nil {
		return err
	}

	progress(85, "Creating backup summary...")
	if err := o.uploadManifest(ctx, job, folder); err != nil {
		return fmt.Errorf("upload backup summary: %w", err)
	}

	progress(95, "Finalizing backup...")
	return nil
}

func (o *Orchestrator) exportDatabase(ctx context.Context, job model.BackupJob, folder model.RemoteFolder,
	stats *pipelineStats, progress ProgressFunc) error {
	tmp, err := os.CreateTemp("", "database_backup_*.sql")
	if err != nil {
		return fmt.Errorf("create database export temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	counts, err := o.exporter.Export(ctx, tmp, job.Kind, job.Initiator, progress)
	if err != nil {
		return fmt.Errorf("export database: %w", err)
	}
	for table, n := range counts {
		o.logger.Debug().Str("table", table).Int("rows", n).Msg("exported table")
	}

	info, err := tmp.Stat()
	if err != nil {
		return fmt.Errorf("stat database export: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind database export: %w", err)
	}

	progress(50, "Uploading database backup...")
	name := "database_backup_" + job.StartedAt.Format("20060102_150405") + ".sql"
	if err := o.remoteUpload(ctx, folder, name, "application/sql", tmp); err != nil {
		return fmt.Errorf("upload database backup: %w", err)
	}
	stats.totalSize += info.Size()
	return nil
}

func (o *Orchestrator) archiveDocuments(ctx context.Context, job model.BackupJob, folder model.RemoteFolder,
	stats *pipelineStats, progress ProgressFunc) error {
	tmp, err := os.CreateTemp("", "documents_backup_*.zip")
	if err != nil {
		return fmt.Errorf("create documents archive temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	progress(65, "Scanning documents folder...")
	files, size, err := o.archiver.BuildArchive(o.cfg.DocumentsDir, tmp)
	if err != nil {
		return fmt.Errorf("archive documents: %w", err)
	}
	if files == 0 {
		progress(70, "No documents found - skipping")
		return nil
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind documents archive: %w", err)
	}

	progress(80, fmt.Sprintf("Uploading documents archive (%d files)...", files))
	name := "documents_backup_" + job.StartedAt.Format("20060102_150405") + ".zip"
	if err := o.remoteUpload(ctx, folder, name, "application/zip", tmp); err != nil {
		return fmt.Errorf("upload documents archive: %w", err)
	}
	stats.fileCount += files
	stats.totalSize += size
	return nil
}

func (o *Orchestrator) uploadManifest(ctx context.Context, job model.BackupJob, folder model.RemoteFolder) error {
	content := fmt.Sprintf(`Document Hub Backup Information
==============================
Backup Time: %s
Backup Folder: %s
Backup Type: %s
Created By: %s
Parent Folder: %s
Items Included:
- Database backup (SQL format) with users, documents, activity logs, and messages
- All documents (ZIP format)
- This summary file

Restore Instructions:
1. Download all files from this folder
2. Extract documents from the ZIP file
3. Run the SQL file to restore database
4. Place documents in shared_documents folder
`, job.StartedAt.Format("2006-01-02 15:04:05"), job.RemoteFolderName, job.Kind, job.Initiator, o.cfg.ParentFolder)

	return o.remoteUpload(ctx, folder, "BACKUP_INFO.txt", "text/plain", strings.NewReader(content))
}

func (o *Orchestrator) remoteCreateFolder(ctx context.Context, name string) (model.RemoteFolder, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RemoteCallTimeout)
	defer cancel()
	return o.store.CreateBackupFolder(ctx, name)
}

func (o *Orchestrator) remoteUpload(ctx context.Context, folder model.RemoteFolder, name, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RemoteCallTimeout)
	defer cancel()
	return o.store.Upload(ctx, folder, name, contentType, r)
}

func (o *Orchestrator) notifyAuto(ctx context.Context, title, message string) {
	if err := o.notifier.Notify(ctx, title, message); err != nil {
		o.logger.Warn().Err(err).Str("title", title).Msg("failed to record notification")
	}
}

func jobFromHistory(jobID string, rec *model.HistoryRecord) model.BackupJob {
	job := model.BackupJob{
		ID:               jobID,
		Kind:             rec.BackupType,
		Initiator:        rec.CreatedBy,
		RemoteFolderName: rec.BackupFolder,
		StartedAt:        rec.StartTime,
		LastUpdatedAt:    rec.StartTime,
		FinishedAt:       rec.EndTime,
	}
	if rec.EndTime != nil {
		job.LastUpdatedAt = *rec.EndTime
	}
	switch rec.Status {
	case model.HistorySuccess:
		job.State = model.StateSucceeded
		job.Percent = 100
		job.StatusMessage = "Backup completed successfully!"
	case model.HistoryFailed:
		job.State = model.StateFailed
		if rec.ErrorMessage != nil {
			job.Error = *rec.ErrorMessage
			job.StatusMessage = "Backup failed: " + *rec.ErrorMessage
		} else {
			job.StatusMessage = "Backup failed"
		}
	default:
		job.State = model.StateRunning
		job.StatusMessage = "Backup in progress"
	}
	return job
}
