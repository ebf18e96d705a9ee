package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestMemoryStoreSaveIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := s.Put(model.Appointment{ClientID: "c-1", ScheduledAt: t0, Status: model.StatusScheduled})
	require.NotEmpty(t, a.ID)
	require.EqualValues(t, 1, a.Version)

	stale := a
	a.Status = model.StatusConfirmed
	saved, err := s.Save(ctx, a)
	require.NoError(t, err)
	require.EqualValues(t, 2, saved.Version)

	stale.Status = model.StatusNoShow
	_, err = s.Save(ctx, stale)
	require.True(t, errors.Is(err, ErrConflict))

	got, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, got.Status)

	_, err = s.Save(ctx, model.Appointment{ID: "missing", Version: 1})
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = s.FindByID(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreQueries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	early := s.Put(model.Appointment{ID: "early", ScheduledAt: t0.Add(-time.Hour), Status: model.StatusScheduled})
	edge := s.Put(model.Appointment{ID: "edge", ScheduledAt: t0, Status: model.StatusConfirmed})
	s.Put(model.Appointment{ID: "later", ScheduledAt: t0.Add(time.Hour), Status: model.StatusScheduled})
	s.Put(model.Appointment{ID: "gone", ScheduledAt: t0, Status: model.StatusCancelled})

	before, err := s.FindByStatusBefore(ctx, model.StatusScheduled, t0)
	require.NoError(t, err)
	require.Equal(t, []model.Appointment{early}, before)

	between, err := s.FindByStatusBetween(ctx, model.StatusConfirmed, t0, t0)
	require.NoError(t, err)
	require.Equal(t, []model.Appointment{edge}, between)

	all, err := s.FindByStatus(ctx, model.StatusScheduled)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "early", all[0].ID)

	due, err := s.FindDueForReminder(ctx, t0.Add(-time.Hour), t0)
	require.NoError(t, err)
	require.Len(t, due, 2, "cancelled appointments never get reminders")
}

func TestMemoryStoreKeepsEmptyCancellationReasonEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := s.Put(model.Appointment{ScheduledAt: t0, Status: model.StatusScheduled})

	cancelledAt := t0.Add(-time.Hour)
	a.Status = model.StatusCancelled
	a.CancelledAt = &cancelledAt
	_, err := s.Save(ctx, a)
	require.NoError(t, err)

	got, err := s.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "", got.CancellationReason)
	require.NotNil(t, got.CancelledAt)
}
