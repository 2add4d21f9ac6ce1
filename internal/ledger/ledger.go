// Package ledger answers availability questions over the set of active
// (pending or confirmed) reservations of a room.
package ledger

import (
	"context"
	"fmt"
	"hash/fnv"
	"iter"
	"time"

	"gorm.io/gorm"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/stay"
)

// Ledger reads reservations through gorm.
type Ledger struct {
	db       *gorm.DB
	lockWait time.Duration
}

// New creates a Ledger over db. lockWait bounds how long LockRoom waits
// for another instance holding the same room; zero means no bound.
func New(db *gorm.DB, lockWait time.Duration) *Ledger {
	return &Ledger{db: db, lockWait: lockWait}
}

// LockRoom takes a transaction-scoped advisory lock on postgres so that
// other instances serialize on the same room. A wait longer than lockWait
// fails with apperror.ErrBusy. Other dialects rely on the caller's room
// lock and the database's own write serialization.
func (l *Ledger) LockRoom(tx *gorm.DB, roomID string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if l.lockWait > 0 {
		ms := max(l.lockWait.Milliseconds(), 1)
		// is_local=true: the timeout ends with the transaction.
		if err := tx.Exec("SELECT set_config('lock_timeout', ?, true)", fmt.Sprintf("%dms", ms)).Error; err != nil {
			return apperror.FromStorage(err)
		}
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", roomLockKey(roomID)).Error; err != nil {
		return fmt.Errorf("room %s: %w", roomID, apperror.FromStorage(err))
	}
	return nil
}

func roomLockKey(roomID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(roomID))
	return int64(h.Sum64())
}

// HasConflict returns the id of the earliest active reservation on the
// interval's room that overlaps it, or "" when the room is free. tx must be
// the transaction that will perform the dependent insert; called outside
// one, the answer is advisory.
func (l *Ledger) HasConflict(tx *gorm.DB, interval stay.Interval, excludeReservationID string) (string, error) {
	q := tx.Model(&model.Reservation{}).
		Select("id").
		Where("room_id = ? AND status IN ?", interval.RoomID, model.ActiveStatuses).
		Where("check_in < ? AND ? < check_out", interval.CheckOut, interval.CheckIn)
	if excludeReservationID != "" {
		q = q.Where("id <> ?", excludeReservationID)
	}

	var ids []string
	if err := q.Order("created_at ASC").Limit(1).Pluck("id", &ids).Error; err != nil {
		return "", fmt.Errorf("conflict lookup for room %s: %w", interval.RoomID, apperror.FromStorage(err))
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// ActiveReservationsForRoom streams the room's pending and confirmed
// reservations ordered by check-in. Rows are read lazily; stop ranging to
// release the cursor.
func (l *Ledger) ActiveReservationsForRoom(ctx context.Context, roomID string) iter.Seq2[model.Reservation, error] {
	return func(yield func(model.Reservation, error) bool) {
		q := l.db.WithContext(ctx).Model(&model.Reservation{}).
			Where("room_id = ? AND status IN ?", roomID, model.ActiveStatuses).
			Order("check_in ASC")

		rows, err := q.Rows()
		if err != nil {
			yield(model.Reservation{}, apperror.FromStorage(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			if err := ctx.Err(); err != nil {
				yield(model.Reservation{}, apperror.FromStorage(err))
				return
			}
			var r model.Reservation
			if err := l.db.ScanRows(rows, &r); err != nil {
				yield(model.Reservation{}, apperror.FromStorage(err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Reservation{}, apperror.FromStorage(err))
		}
	}
}

// ListActive collects ActiveReservationsForRoom into a slice.
func (l *Ledger) ListActive(ctx context.Context, roomID string) ([]model.Reservation, error) {
	var out []model.Reservation
	for r, err := range l.ActiveReservationsForRoom(ctx, roomID) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
