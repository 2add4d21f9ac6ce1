package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/catalog"
	"hotel-stays-backend/internal/dbtest"
	"hotel-stays-backend/internal/lock"
	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/notification"
	"hotel-stays-backend/internal/reservation"
	"hotel-stays-backend/internal/subscription"
)

type fixture struct {
	db       *gorm.DB
	registry *subscription.Registry
	locker   *lock.LocalLocker
	coord    *Coordinator
}

func newFixture(t *testing.T, policy reservation.Policy) *fixture {
	t.Helper()
	gormDB := dbtest.Open(t)
	dbtest.SeedRoom(t, gormDB, "room-1", "owner-1", 2, 100000)

	reg := subscription.NewRegistry(16)
	d := notification.NewDispatcher(gormDB, reg, zap.NewNop(), notification.Options{Workers: 2, QueueSize: 64})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)

	locker := lock.NewLocalLocker(2 * time.Second)
	coord := NewCoordinator(gormDB, catalog.NewGormCatalog(gormDB, time.Minute), locker, d, zap.NewNop(), Options{
		TaxRate: 0.12,
		Policy:  policy,
	})
	return &fixture{db: gormDB, registry: reg, locker: locker, coord: coord}
}

func stayRequest(guest string, inDay, outDay int) StayRequest {
	return StayRequest{
		GuestID:    guest,
		RoomID:     "room-1",
		CheckIn:    dbtest.Date(time.April, inDay),
		CheckOut:   dbtest.Date(time.April, outDay),
		GuestCount: 2,
	}
}

func (f *fixture) notifications(t *testing.T, recipient string) []model.NotificationRecord {
	t.Helper()
	var out []model.NotificationRecord
	require.NoError(t, f.db.Where("recipient_id = ?", recipient).Order("seq").Find(&out).Error)
	return out
}

func (f *fixture) reservationCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&model.Reservation{}).Count(&n).Error)
	return n
}

func TestRequestStay_CreatesPendingReservation(t *testing.T) {
	f := newFixture(t, reservation.Policy{})

	req := stayRequest("guest-1", 1, 4)
	req.SpecialRequests = "late arrival"
	res, err := f.coord.RequestStay(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, model.StatusPending, res.Status)
	assert.Equal(t, "owner-1", res.OwnerID)
	assert.Equal(t, model.Money(336000), res.TotalPrice)
	assert.Equal(t, "late arrival", res.SpecialRequests)

	var stored model.Reservation
	require.NoError(t, f.db.First(&stored, "id = ?", res.ID).Error)
	assert.Equal(t, model.StatusPending, stored.Status)

	records := f.notifications(t, "owner-1")
	require.Len(t, records, 1)
	assert.Equal(t, string(notification.KindReservationCreated), records[0].Kind)
	assert.Equal(t, res.ID, records[0].RelatedReservationID)
	assert.Empty(t, f.notifications(t, "guest-1"))
}

func TestRequestStay_Validation(t *testing.T) {
	f := newFixture(t, reservation.Policy{})

	tests := []struct {
		name  string
		req   StayRequest
		field string
	}{
		{"check-out before check-in", stayRequest("guest-1", 5, 3), "check_out"},
		{"empty interval", stayRequest("guest-1", 5, 5), "check_out"},
		{"no guests", func() StayRequest { r := stayRequest("guest-1", 1, 2); r.GuestCount = 0; return r }(), "guest_count"},
		{"over capacity", func() StayRequest { r := stayRequest("guest-1", 1, 2); r.GuestCount = 3; return r }(), "guest_count"},
		{"unknown room", func() StayRequest { r := stayRequest("guest-1", 1, 2); r.RoomID = "room-x"; return r }(), "room_id"},
		{"missing guest", stayRequest("", 1, 2), "guest_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.RequestStay(context.Background(), tt.req)
			var verr *apperror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Zero(t, f.reservationCount(t))
	assert.Empty(t, f.notifications(t, "owner-1"))
}

func TestRequestStay_ConflictAndAdjacency(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	ctx := context.Background()

	first, err := f.coord.RequestStay(ctx, stayRequest("guest-1", 10, 15))
	require.NoError(t, err)

	_, err = f.coord.RequestStay(ctx, stayRequest("guest-2", 12, 13))
	var conflict *apperror.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ConflictingReservationID)
	assert.Equal(t, "room-1", conflict.RoomID)

	// Check-out day is free for the next check-in.
	_, err = f.coord.RequestStay(ctx, stayRequest("guest-2", 15, 17))
	require.NoError(t, err)
	_, err = f.coord.RequestStay(ctx, stayRequest("guest-3", 8, 10))
	require.NoError(t, err)

	assert.Equal(t, int64(3), f.reservationCount(t))
	assert.Len(t, f.notifications(t, "owner-1"), 3)
}

func TestRequestStay_ConcurrentRequestsBookOnce(t *testing.T) {
	f := newFixture(t, reservation.Policy{})

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []model.Reservation
		losers  []*apperror.ConflictError
		other   []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := f.coord.RequestStay(context.Background(), stayRequest("guest-"+string(rune('a'+i)), 20, 22))

			mu.Lock()
			defer mu.Unlock()
			var conflict *apperror.ConflictError
			switch {
			case err == nil:
				winners = append(winners, res)
			case errors.As(err, &conflict):
				losers = append(losers, conflict)
			default:
				other = append(other, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Len(t, winners, 1)
	require.Len(t, losers, n-1)
	for _, c := range losers {
		assert.Equal(t, winners[0].ID, c.ConflictingReservationID)
	}

	active, err := f.coord.ListActiveReservations(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, winners[0].ID, active[0].ID)

	records := f.notifications(t, "owner-1")
	require.Len(t, records, 1)
	assert.Equal(t, string(notification.KindReservationCreated), records[0].Kind)
}

func TestRequestStay_BusyWhenRoomLocked(t *testing.T) {
	gormDB := dbtest.Open(t)
	dbtest.SeedRoom(t, gormDB, "room-1", "owner-1", 2, 100000)
	d := notification.NewDispatcher(gormDB, subscription.NewRegistry(1), zap.NewNop(), notification.Options{})
	locker := lock.NewLocalLocker(30 * time.Millisecond)
	coord := NewCoordinator(gormDB, catalog.NewGormCatalog(gormDB, time.Minute), locker, d, zap.NewNop(), Options{})

	release, err := locker.Acquire(context.Background(), "room-1")
	require.NoError(t, err)
	defer release()

	_, err = coord.RequestStay(context.Background(), stayRequest("guest-1", 1, 2))
	require.ErrorIs(t, err, apperror.ErrBusy)
	assert.True(t, apperror.IsTransient(err))

	var n int64
	require.NoError(t, gormDB.Model(&model.Reservation{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRequestStay_StorageUnavailable(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.coord.RequestStay(context.Background(), stayRequest("guest-1", 1, 2))
	require.Error(t, err)
	assert.True(t, apperror.IsTransient(err))
	var conflict *apperror.ConflictError
	assert.False(t, errors.As(err, &conflict))
}

func TestTransition_ConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	ctx := context.Background()
	owner := reservation.Actor{UserID: "owner-1", Role: reservation.RoleOwner}

	res, err := f.coord.RequestStay(ctx, stayRequest("guest-1", 1, 3))
	require.NoError(t, err)

	confirmed, err := f.coord.Transition(ctx, res.ID, reservation.ActionConfirm, owner)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)

	_, err = f.coord.Transition(ctx, res.ID, reservation.ActionConfirm, owner)
	var terr *apperror.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.False(t, terr.Unauthorized)

	var stored model.Reservation
	require.NoError(t, f.db.First(&stored, "id = ?", res.ID).Error)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.True(t, stored.StatusChangedAt.Equal(confirmed.StatusChangedAt))

	records := f.notifications(t, "guest-1")
	require.Len(t, records, 1)
	assert.Equal(t, string(notification.KindReservationConfirmed), records[0].Kind)
}

func TestTransition_ConfirmRefusesOverlap(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	ctx := context.Background()
	owner := reservation.Actor{UserID: "owner-1", Role: reservation.RoleOwner}

	res, err := f.coord.RequestStay(ctx, stayRequest("guest-1", 1, 3))
	require.NoError(t, err)

	// A row that reached the table without the intake checks.
	imported := model.Reservation{
		ID: "imported-1", GuestID: "guest-2", OwnerID: "owner-1", RoomID: "room-1",
		CheckIn: dbtest.Date(time.April, 2), CheckOut: dbtest.Date(time.April, 4),
		GuestCount: 1, Status: model.StatusPending,
		CreatedAt: time.Now().UTC(), StatusChangedAt: time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(&imported).Error)

	_, err = f.coord.Transition(ctx, res.ID, reservation.ActionConfirm, owner)
	var cerr *apperror.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "imported-1", cerr.ConflictingReservationID)

	var stored model.Reservation
	require.NoError(t, f.db.First(&stored, "id = ?", res.ID).Error)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Empty(t, f.notifications(t, "guest-1"))

	// Rejecting the other one frees the dates for the decision.
	_, err = f.coord.Transition(ctx, "imported-1", reservation.ActionReject, owner)
	require.NoError(t, err)
	confirmed, err := f.coord.Transition(ctx, res.ID, reservation.ActionConfirm, owner)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
}

func TestTransition_AuthorizationBoundary(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	ctx := context.Background()

	res, err := f.coord.RequestStay(ctx, stayRequest("guest-1", 1, 3))
	require.NoError(t, err)

	for _, actor := range []reservation.Actor{
		{UserID: "guest-1", Role: reservation.RoleGuest},
		{UserID: "guest-2", Role: reservation.RoleGuest},
		{UserID: "owner-2", Role: reservation.RoleOwner},
	} {
		_, err := f.coord.Transition(ctx, res.ID, reservation.ActionConfirm, actor)
		var terr *apperror.InvalidTransitionError
		require.ErrorAs(t, err, &terr, actor.UserID)
		assert.True(t, terr.Unauthorized, actor.UserID)
	}

	var stored model.Reservation
	require.NoError(t, f.db.First(&stored, "id = ?", res.ID).Error)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Empty(t, f.notifications(t, "guest-1"))

	admin := reservation.Actor{UserID: "ops", Role: reservation.RoleAdmin}
	_, err = f.coord.Transition(ctx, res.ID, reservation.ActionReject, admin)
	require.NoError(t, err)
}

func TestTransition_CancelReleasesDates(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	ctx := context.Background()

	res, err := f.coord.RequestStay(ctx, stayRequest("guest-1", 1, 5))
	require.NoError(t, err)
	_, err = f.coord.Transition(ctx, res.ID, reservation.ActionCancel, reservation.Actor{UserID: "guest-1", Role: reservation.RoleGuest})
	require.NoError(t, err)

	assert.Len(t, f.notifications(t, "guest-1"), 1)
	assert.Len(t, f.notifications(t, "owner-1"), 2)

	_, err = f.coord.RequestStay(ctx, stayRequest("guest-2", 2, 4))
	require.NoError(t, err)
}

func TestTransition_CancelAfterConfirmPolicy(t *testing.T) {
	guest := reservation.Actor{UserID: "guest-1", Role: reservation.RoleGuest}
	owner := reservation.Actor{UserID: "owner-1", Role: reservation.RoleOwner}

	for _, allow := range []bool{false, true} {
		f := newFixture(t, reservation.Policy{AllowCancelAfterConfirm: allow})
		ctx := context.Background()

		res, err := f.coord.RequestStay(ctx, stayRequest("guest-1", 1, 3))
		require.NoError(t, err)
		_, err = f.coord.Transition(ctx, res.ID, reservation.ActionConfirm, owner)
		require.NoError(t, err)

		_, err = f.coord.Transition(ctx, res.ID, reservation.ActionCancel, guest)
		if allow {
			require.NoError(t, err)
		} else {
			var terr *apperror.InvalidTransitionError
			require.ErrorAs(t, err, &terr)
		}
	}
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	_, err := f.coord.Transition(context.Background(), "missing", reservation.ActionConfirm, reservation.Actor{UserID: "owner-1", Role: reservation.RoleOwner})
	require.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTransition_ConcurrentDecisionsApplyOnce(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	ctx := context.Background()
	owner := reservation.Actor{UserID: "owner-1", Role: reservation.RoleOwner}

	res, err := f.coord.RequestStay(ctx, stayRequest("guest-1", 1, 3))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, action := range []reservation.Action{reservation.ActionConfirm, reservation.ActionReject} {
		wg.Add(1)
		go func(i int, action reservation.Action) {
			defer wg.Done()
			_, results[i] = f.coord.Transition(ctx, res.ID, action, owner)
		}(i, action)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var terr *apperror.InvalidTransitionError
		assert.ErrorAs(t, err, &terr)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.notifications(t, "guest-1"), 1)
}

func TestRequestStay_OwnerReceivesLiveNotification(t *testing.T) {
	f := newFixture(t, reservation.Policy{})
	h := f.registry.Subscribe("owner-1")
	defer f.registry.Unsubscribe(h)

	res, err := f.coord.RequestStay(context.Background(), stayRequest("guest-1", 1, 3))
	require.NoError(t, err)

	select {
	case msg := <-h.C:
		assert.Equal(t, res.ID, msg.ReservationID)
		assert.Equal(t, string(notification.KindReservationCreated), msg.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("owner did not receive the live notification")
	}

	require.Eventually(t, func() bool {
		var rec model.NotificationRecord
		if err := f.db.Where("recipient_id = ?", "owner-1").First(&rec).Error; err != nil {
			return false
		}
		return rec.DeliveredLive
	}, 2*time.Second, 10*time.Millisecond)
}
