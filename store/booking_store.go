package store

import (
	"context"
	"database/sql"
	"fmt"

	"pianosale/api/models"
)

// BookingStore is the local ledger of scheduled bookings and whether each one
// reached the CRM.
type BookingStore struct {
	db *sql.DB
}

func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db}
}

func (s *BookingStore) RecordBooking(ctx context.Context, rec models.BookingRecord, mirrorStatus, mirrorError string) (int64, error) {
	query := `
		INSERT INTO bookings (
			booking_id, uid, name, email, phone, location, notes,
			start_time, end_time, event_type, mirror_status, mirror_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (booking_id) DO UPDATE
			SET mirror_status = EXCLUDED.mirror_status, mirror_error = EXCLUDED.mirror_error
		RETURNING id;
	`
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		rec.BookingID, rec.UID, rec.Name, rec.Email,
		nullString(rec.Phone), nullString(rec.Location), nullString(rec.AdditionalNotes),
		rec.StartTime, rec.EndTime, rec.EventType, mirrorStatus, nullString(mirrorError),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record booking %s: %w", rec.BookingID, err)
	}
	return id, nil
}

// ListBookings returns the newest ledger entries first. An empty mirrorStatus
// matches every entry.
func (s *BookingStore) ListBookings(ctx context.Context, mirrorStatus string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT id, booking_id, uid, name, email, COALESCE(phone, ''), COALESCE(location, ''), COALESCE(notes, ''),
			start_time, end_time, event_type, mirror_status, COALESCE(mirror_error, ''), created_at
		FROM bookings
		WHERE ($1 = '' OR mirror_status = $1)
		ORDER BY created_at DESC
		LIMIT $2;
	`
	rows, err := s.db.QueryContext(ctx, query, mirrorStatus, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		b := &e.Booking
		if err := rows.Scan(
			&e.ID, &b.BookingID, &b.UID, &b.Name, &b.Email, &b.Phone, &b.Location, &b.AdditionalNotes,
			&b.StartTime, &b.EndTime, &b.EventType, &e.MirrorStatus, &e.MirrorError, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating booking rows: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
