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
)

func TestNotificationService_Notify_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewNotificationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"),
		[]any{"Auto-backup Started", "Automatic backup process started"}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := svc.Notify(ctx, "Auto-backup Started", "Automatic backup process started")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestNotificationService_Notify_Error(t *testing.T) {
	db := &mockDB{}
	svc := NewNotificationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("db down"))

	err := svc.Notify(ctx, "title", "message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert notification")
	db.AssertExpectations(t)
}

func TestNotificationService_List_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewNotificationService(db)
	ctx := context.Background()

	now := time.Now()
	rows := newMockRows(
		func(dest ...any) error {
			*(dest[0].(*int64)) = 2
			*(dest[1].(*string)) = "Auto-backup Completed"
			*(dest[2].(*string)) = "Backup finished"
			*(dest[3].(*time.Time)) = now
			*(dest[4].(*bool)) = false
			return nil
		},
		func(dest ...any) error {
			*(dest[0].(*int64)) = 1
			*(dest[1].(*string)) = "Auto-backup Started"
			*(dest[2].(*string)) = "Backup started"
			*(dest[3].(*time.Time)) = now.Add(-time.Minute)
			*(dest[4].(*bool)) = true
			return nil
		},
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{51}).Return(rows, nil)

	notifications, hasMore, err := svc.List(ctx, 50, "")
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, notifications, 2)
	assert.Equal(t, "Auto-backup Completed", notifications[0].Title)
	assert.True(t, notifications[1].IsRead)
	db.AssertExpectations(t)
}

func TestNotificationService_MarkRead_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewNotificationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{int64(7)}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, svc.MarkRead(ctx, 7))
	db.AssertExpectations(t)
}

func TestNotificationService_MarkRead_NotFound(t *testing.T) {
	db := &mockDB{}
	svc := NewNotificationService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := svc.MarkRead(ctx, 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	db.AssertExpectations(t)
}
