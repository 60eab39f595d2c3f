package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/dochub/internal/model"
)

// ---------- RecordStart ----------

func TestHistoryService_RecordStart_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int64)) = 42
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"),
		[]any{model.KindAuto, "System", "DocumentHub_Backup_20250101_020304", model.HistoryInProgress}).Return(row)

	id, err := svc.RecordStart(ctx, model.KindAuto, "System", "DocumentHub_Backup_20250101_020304")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	db.AssertExpectations(t)
}

func TestHistoryService_RecordStart_InsertError(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error {
		return errors.New("db down")
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := svc.RecordStart(ctx, model.KindManual, "admin", "folder")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert backup history")
	db.AssertExpectations(t)
}

// ---------- RecordTerminal ----------

func TestHistoryService_RecordTerminal_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"),
		[]any{model.HistorySuccess, (*string)(nil), 7, int64(1024), int64(42)}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := svc.RecordTerminal(ctx, 42, model.HistorySuccess, nil, 7, 1024)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestHistoryService_RecordTerminal_Failed(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	errMsg := "upload documents: connection reset"
	db.On("Exec", ctx, mock.AnythingOfType("string"),
		[]any{model.HistoryFailed, &errMsg, 0, int64(0), int64(42)}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := svc.RecordTerminal(ctx, 42, model.HistoryFailed, &errMsg, 0, 0)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestHistoryService_RecordTerminal_NoSuchRecord(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := svc.RecordTerminal(ctx, 99, model.HistorySuccess, nil, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	db.AssertExpectations(t)
}

func TestHistoryService_RecordTerminal_ExecError(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("db down"))

	err := svc.RecordTerminal(ctx, 42, model.HistorySuccess, nil, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finalize backup history")
	db.AssertExpectations(t)
}

// ---------- GetByID ----------

func TestHistoryService_GetByID_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	start := time.Now().Truncate(time.Microsecond)
	end := start.Add(2 * time.Minute)

	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int64)) = 42
		*(dest[1].(*string)) = model.KindAuto
		*(dest[2].(*string)) = "System"
		*(dest[3].(*string)) = "DocumentHub_Backup_20250101_020304"
		*(dest[4].(*string)) = model.HistorySuccess
		*(dest[5].(*time.Time)) = start
		*(dest[6].(**time.Time)) = &end
		*(dest[7].(**string)) = nil
		*(dest[8].(*int)) = 7
		*(dest[9].(*int64)) = 1024
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{int64(42)}).Return(row)

	r, err := svc.GetByID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(42), r.ID)
	assert.Equal(t, model.KindAuto, r.BackupType)
	assert.Equal(t, model.HistorySuccess, r.Status)
	assert.Equal(t, 7, r.FileCount)
	assert.Equal(t, int64(1024), r.TotalSize)
	require.NotNil(t, r.EndTime)
	assert.Equal(t, end, *r.EndTime)
	db.AssertExpectations(t)
}

func TestHistoryService_GetByID_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error {
		return errors.New("no rows in result set")
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := svc.GetByID(ctx, 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get backup history 99")
	db.AssertExpectations(t)
}

// ---------- List ----------

func TestHistoryService_List_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	now := time.Now()
	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*int64)) = 2
			*(dest[1].(*string)) = model.KindManual
			*(dest[2].(*string)) = "admin"
			*(dest[3].(*string)) = "DocumentHub_Backup_b"
			*(dest[4].(*string)) = model.HistoryInProgress
			*(dest[5].(*time.Time)) = now
			return nil
		},
		func(dest ...any) error {
			*(dest[0].(*int64)) = 1
			*(dest[1].(*string)) = model.KindAuto
			*(dest[2].(*string)) = "System"
			*(dest[3].(*string)) = "DocumentHub_Backup_a"
			*(dest[4].(*string)) = model.HistorySuccess
			*(dest[5].(*time.Time)) = now.Add(-time.Hour)
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{51}).Return(rows, nil)

	records, hasMore, err := svc.List(ctx, 50, "")
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].ID)
	assert.Equal(t, int64(1), records[1].ID)
	db.AssertExpectations(t)
}

func TestHistoryService_List_WithCursorAndMore(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	now := time.Now()
	scan := func(id int64) func(dest ...any) error {
		return func(dest ...any) error {
			*(dest[0].(*int64)) = id
			*(dest[1].(*string)) = model.KindAuto
			*(dest[2].(*string)) = "System"
			*(dest[3].(*string)) = "folder"
			*(dest[4].(*string)) = model.HistorySuccess
			*(dest[5].(*time.Time)) = now
			return nil
		}
	}
	rows := newMockRows(scan(9), scan(8), scan(7))
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{int64(10), 3}).Return(rows, nil)

	records, hasMore, err := svc.List(ctx, 2, "10")
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, records, 2)
	assert.Equal(t, int64(9), records[0].ID)
	db.AssertExpectations(t)
}

func TestHistoryService_List_InvalidCursor(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)

	_, _, err := svc.List(context.Background(), 50, "not-a-number")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cursor")
}

func TestHistoryService_List_Empty(t *testing.T) {
	db := &mockDB{}
	svc := NewHistoryService(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(newEmptyMockRows(), nil)

	records, hasMore, err := svc.List(ctx, 50, "")
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, records)
	db.AssertExpectations(t)
}
