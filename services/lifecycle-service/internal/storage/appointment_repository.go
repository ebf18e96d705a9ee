package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/carecycle/libs/db"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

var _ Store = (*AppointmentRepository)(nil)

const selectAppointments = `
	SELECT a.id::text, a.client_id::text, COALESCE(c.full_name, ''),
		a.facility_id::text, COALESCE(f.name, ''),
		COALESCE(a.worker_id::text, ''), COALESCE(w.full_name, ''),
		a.type, a.scheduled_at, a.duration_minutes, a.status,
		a.reminder_sent, a.reminder_2h_sent,
		a.completed_at, a.cancelled_at, COALESCE(a.cancellation_reason, ''),
		a.version, a.created_at, a.updated_at
	FROM appointments a
	LEFT JOIN users c ON c.id = a.client_id
	LEFT JOIN users w ON w.id = a.worker_id
	LEFT JOIN facilities f ON f.id = a.facility_id
`

func (r *AppointmentRepository) FindByStatusBefore(ctx context.Context, status model.Status, before time.Time) ([]model.Appointment, error) {
	return r.query(ctx, selectAppointments+`
		WHERE a.status = $1 AND a.scheduled_at < $2
		ORDER BY a.scheduled_at ASC
	`, string(status), before)
}

func (r *AppointmentRepository) FindByStatusBetween(ctx context.Context, status model.Status, start, end time.Time) ([]model.Appointment, error) {
	return r.query(ctx, selectAppointments+`
		WHERE a.status = $1 AND a.scheduled_at BETWEEN $2 AND $3
		ORDER BY a.scheduled_at ASC
	`, string(status), start, end)
}

func (r *AppointmentRepository) FindByStatus(ctx context.Context, status model.Status) ([]model.Appointment, error) {
	return r.query(ctx, selectAppointments+`
		WHERE a.status = $1
		ORDER BY a.scheduled_at ASC
	`, string(status))
}

func (r *AppointmentRepository) FindDueForReminder(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	return r.query(ctx, selectAppointments+`
		WHERE a.status IN ($1, $2) AND a.scheduled_at BETWEEN $3 AND $4
		ORDER BY a.scheduled_at ASC
	`, string(model.StatusScheduled), string(model.StatusConfirmed), start, end)
}

func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, ErrNotFound
	}
	appts, err := r.query(ctx, selectAppointments+`WHERE a.id = $1`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, ErrNotFound
	}
	return appts[0], nil
}

// Save writes the lifecycle-owned columns. Parties and schedule belong to the
// booking flow and are never written here. An empty cancellation reason is
// stored as NULL and read back as "", the same value MemoryStore returns.
func (r *AppointmentRepository) Save(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	if _, err := uuid.Parse(a.ID); err != nil {
		return model.Appointment{}, ErrNotFound
	}
	err := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			reminder_sent = $4,
			reminder_2h_sent = $5,
			completed_at = $6,
			cancelled_at = $7,
			cancellation_reason = NULLIF($8, ''),
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`, a.ID, a.Version, string(a.Status), a.ReminderSent, a.Reminder2hSent,
		a.CompletedAt, a.CancelledAt, a.CancellationReason).Scan(&a.Version, &a.UpdatedAt)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("save appointment %s: %w", a.ID, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
		return model.Appointment{}, fmt.Errorf("save appointment %s: %w", a.ID, err)
	}
	if !exists {
		return model.Appointment{}, ErrNotFound
	}
	return model.Appointment{}, ErrConflict
}

func (r *AppointmentRepository) query(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var status string
		if err := rows.Scan(
			&a.ID,
			&a.ClientID,
			&a.ClientName,
			&a.FacilityID,
			&a.FacilityName,
			&a.WorkerID,
			&a.WorkerName,
			&a.Type,
			&a.ScheduledAt,
			&a.DurationMinutes,
			&status,
			&a.ReminderSent,
			&a.Reminder2hSent,
			&a.CompletedAt,
			&a.CancelledAt,
			&a.CancellationReason,
			&a.Version,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.Status = model.Status(status)
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
