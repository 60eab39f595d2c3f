package core

import (
	"context"
	"fmt"
	"strconv"

	"github.com/edvin/dochub/internal/model"
)

// HistoryService owns the durable backup_history table: one row per backup
// attempt, inserted at trigger time and updated exactly once to a terminal
// status. Rows are never deleted here.
type HistoryService struct {
	db DB
}

func NewHistoryService(db DB) *HistoryService {
	return &HistoryService{db: db}
}

// RecordStart inserts an in_progress row for a freshly admitted job and
// returns its id.
func (s *HistoryService) RecordStart(ctx context.Context, backupType, createdBy, folder string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO backup_history (backup_type, created_by, backup_folder, status, start_time, file_count, total_size)
		 VALUES ($1, $2, $3, $4, now(), 0, 0)
		 RETURNING id`,
		backupType, createdBy, folder, model.HistoryInProgress,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert backup history: %w", err)
	}
	return id, nil
}

// RecordTerminal moves the row to its terminal status. errMsg is nil on
// success.
func (s *HistoryService) RecordTerminal(ctx context.Context, id int64, status string, errMsg *string, fileCount int, totalSize int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_history
		 SET status = $1, error_message = $2, end_time = now(), file_count = $3, total_size = $4
		 WHERE id = $5`,
		status, errMsg, fileCount, totalSize, id,
	)
	if err != nil {
		return fmt.Errorf("finalize backup history %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize backup history %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *HistoryService) GetByID(ctx context.Context, id int64) (*model.HistoryRecord, error) {
	var r model.HistoryRecord
	err := s.db.QueryRow(ctx,
		`SELECT id, backup_type, created_by, backup_folder, status, start_time, end_time, error_message, file_count, total_size
		 FROM backup_history WHERE id = $1`, id,
	).Scan(&r.ID, &r.BackupType, &r.CreatedBy, &r.BackupFolder, &r.Status,
		&r.StartTime, &r.EndTime, &r.ErrorMessage, &r.FileCount, &r.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("get backup history %d: %w", id, err)
	}
	return &r, nil
}

// List returns history rows newest first with cursor pagination. The cursor
// is the id of the last row of the previous page.
func (s *HistoryService) List(ctx context.Context, limit int, cursor string) ([]model.HistoryRecord, bool, error) {
	query := `SELECT id, backup_type, created_by, backup_folder, status, start_time, end_time, error_message, file_count, total_size FROM backup_history`
	var args []any
	argIdx := 1

	if cursor != "" {
		cursorID, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		query += fmt.Sprintf(` WHERE id < $%d`, argIdx)
		args = append(args, cursorID)
		argIdx++
	}

	query += ` ORDER BY id DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list backup history: %w", err)
	}
	defer rows.Close()

	var records []model.HistoryRecord
	for rows.Next() {
		var r model.HistoryRecord
		if err := rows.Scan(&r.ID, &r.BackupType, &r.CreatedBy, &r.BackupFolder, &r.Status,
			&r.StartTime, &r.EndTime, &r.ErrorMessage, &r.FileCount, &r.TotalSize); err != nil {
			return nil, false, fmt.Errorf("scan backup history: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate backup history: %w", err)
	}

	hasMore := len(records) > limit
	if hasMore {
		records = records[:limit]
	}
	return records, hasMore, nil
}
