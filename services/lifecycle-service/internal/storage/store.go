package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrConflict means the row changed since it was read.
	ErrConflict = errors.New("appointment was modified concurrently")
)

// Store is the appointment collection the lifecycle core reads candidates
// from and writes transitions to. Save is a compare-and-swap on Version:
// it fails with ErrConflict when the stored version differs from a.Version,
// and on success returns a with the new version.
type Store interface {
	FindByStatusBefore(ctx context.Context, status model.Status, before time.Time) ([]model.Appointment, error)
	// FindByStatusBetween is inclusive on both ends.
	FindByStatusBetween(ctx context.Context, status model.Status, start, end time.Time) ([]model.Appointment, error)
	FindByStatus(ctx context.Context, status model.Status) ([]model.Appointment, error)
	// FindDueForReminder returns SCHEDULED and CONFIRMED appointments whose
	// scheduled time lies in [start, end].
	FindDueForReminder(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
	FindByID(ctx context.Context, id string) (model.Appointment, error)
	Save(ctx context.Context, a model.Appointment) (model.Appointment, error)
}
