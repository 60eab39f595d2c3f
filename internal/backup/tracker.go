package backup

import (
	"sync"
	"time"

	"github.com/edvin/dochub/internal/model"
)

// Tracker is the in-memory store of live job progress. Writes are
// serialized per key by the mutex, so readers observe percent in
// non-decreasing order. Entries are evicted a grace period after the job
// reaches a terminal state; the durable record lives in backup_history.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*model.BackupJob
	now  func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		jobs: make(map[string]*model.BackupJob),
		now:  time.Now,
	}
}

// Register adds a job snapshot under its id.
func (t *Tracker) Register(job model.BackupJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := job
	t.jobs[job.ID] = &j
}

// Update overwrites the progress snapshot for a job. Unknown ids are a
// no-op so late callbacks after eviction are harmless. Percent never
// decreases.
func (t *Tracker) Update(jobID string, percent int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[jobID]
	if !ok {
		return
	}
	if percent > j.Percent {
		j.Percent = percent
	}
	j.StatusMessage = message
	j.LastUpdatedAt = t.now()
}

// SetState transitions the job's state. Terminal transitions stamp
// FinishedAt and record the failure message, if any.
func (t *Tracker) SetState(jobID, state, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[jobID]
	if !ok {
		return
	}
	j.State = state
	j.LastUpdatedAt = t.now()
	if model.Terminal(state) {
		finished := t.now()
		j.FinishedAt = &finished
		j.Error = errMsg
	}
}

// Get returns a copy of the job snapshot, never the live object.
func (t *Tracker) Get(jobID string) (model.BackupJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[jobID]
	if !ok {
		return model.BackupJob{}, false
	}
	return *j, true
}

// Active reports whether any job is pending or running.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if !model.Terminal(j.State) {
			return true
		}
	}
	return false
}

// ScheduleEviction removes the entry after the delay, independent of job
// outcome.
func (t *Tracker) ScheduleEviction(jobID string, after time.Duration) {
	time.AfterFunc(after, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.jobs, jobID)
	})
}

// Len reports the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}
