package model

import "time"

// BackupJob is the live, in-memory view of one backup attempt, tracked from
// trigger to terminal state and evicted a grace period after finishing. The
// durable record of the attempt is HistoryRecord.
type BackupJob struct {
	ID               string     `json:"id"`
	Kind             string     `json:"kind"`
	Initiator        string     `json:"initiator"`
	RemoteFolderName string     `json:"remote_folder_name"`
	State            string     `json:"state"`
	Percent          int        `json:"percent"`
	StatusMessage    string     `json:"status_message"`
	StartedAt        time.Time  `json:"started_at"`
	LastUpdatedAt    time.Time  `json:"last_updated_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Error            string     `json:"error,omitempty"`
}

const (
	KindManual = "manual"
	KindAuto   = "auto"
)

// Job states. Pending exists only during admission; a job transitions to
// Running once the pipeline picks it up and ends in Succeeded or Failed.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Terminal reports whether the state admits no further transitions.
func Terminal(state string) bool {
	return state == StateSucceeded || state == StateFailed
}

// HistoryRecord is the durable row for one backup attempt. It is inserted
// with StatusInProgress at trigger time and updated exactly once to a
// terminal status.
type HistoryRecord struct {
	ID           int64      `json:"id"`
	BackupType   string     `json:"backup_type"`
	CreatedBy    string     `json:"created_by"`
	BackupFolder string     `json:"backup_folder"`
	Status       string     `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	FileCount    int        `json:"file_count"`
	TotalSize    int64      `json:"total_size"`
}

const (
	HistoryInProgress = "in_progress"
	HistorySuccess    = "success"
	HistoryFailed     = "failed"
)

// RemoteFolder references a folder in the remote object store.
type RemoteFolder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
