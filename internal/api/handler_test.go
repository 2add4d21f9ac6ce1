package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/booking"
	"hotel-stays-backend/internal/catalog"
	"hotel-stays-backend/internal/dbtest"
	"hotel-stays-backend/internal/lock"
	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/mw"
	"hotel-stays-backend/internal/notification"
	"hotel-stays-backend/internal/reservation"
	"hotel-stays-backend/internal/store"
	"hotel-stays-backend/internal/subscription"
)

var testSecret = []byte("api-test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestAPI(t *testing.T, push *webpush.Options) *testAPI {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.SeedRoom(t, db, "room-1", "owner-1", 2, 100000)

	reg := subscription.NewRegistry(8)
	d := notification.NewDispatcher(db, reg, zap.NewNop(), notification.Options{Workers: 1, QueueSize: 32})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d.Start(ctx)

	cat := catalog.NewGormCatalog(db, time.Minute)
	coord := booking.NewCoordinator(db, cat, lock.NewLocalLocker(time.Second), d, zap.NewNop(), booking.Options{TaxRate: 0.12})
	h := NewHandler(Deps{
		Store:    store.NewGormStore(db, zap.NewNop()),
		Booking:  coord,
		Catalog:  cat,
		Registry: reg,
		WebPush:  push,
		Log:      zap.NewNop(),
	})
	router := NewRouter(h, RouterConfig{
		JWTSecret:       testSecret,
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Minute,
	}, zap.NewNop())
	return &testAPI{router: router, db: db}
}

func (a *testAPI) do(t *testing.T, method, path, user string, role reservation.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := mw.SignToken(testSecret, "", user, role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func stayBody(in, out string, guests int) gin.H {
	return gin.H{"room_id": "room-1", "check_in": in, "check_out": out, "guest_count": guests}
}

func TestCreateReservation(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do(t, http.MethodPost, "/api/reservations", "", "", stayBody("2026-04-20", "2026-04-22", 1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/reservations", "guest-1", reservation.RoleGuest, stayBody("2026-04-20", "2026-04-23", 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[model.Reservation](t, w)
	assert.Equal(t, model.StatusPending, first.Status)
	assert.Equal(t, "guest-1", first.GuestID)
	assert.Equal(t, model.Money(336000), first.TotalPrice)
	assert.Contains(t, w.Body.String(), `"total_price":3360.00`)

	w = a.do(t, http.MethodPost, "/api/reservations", "guest-2", reservation.RoleGuest, stayBody("2026-04-21", "2026-04-22", 1))
	require.Equal(t, http.StatusConflict, w.Code)
	conflict := decode[map[string]any](t, w)
	assert.Equal(t, first.ID, conflict["conflicting_reservation_id"])

	w = a.do(t, http.MethodPost, "/api/reservations", "guest-2", reservation.RoleGuest, stayBody("2026-04-23", "2026-04-24", 3))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "guest_count", decode[map[string]any](t, w)["field"])

	w = a.do(t, http.MethodPost, "/api/reservations", "guest-2", reservation.RoleGuest, stayBody("April 23", "2026-04-24", 1))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "check_in", decode[map[string]any](t, w)["field"])

	w = a.do(t, http.MethodPost, "/api/reservations", "guest-2", reservation.RoleGuest, gin.H{"check_in": "2026-04-23"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionReservation(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do(t, http.MethodPost, "/api/reservations", "guest-1", reservation.RoleGuest, stayBody("2026-04-20", "2026-04-22", 1))
	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[model.Reservation](t, w)
	path := fmt.Sprintf("/api/reservations/%s/", res.ID)

	w = a.do(t, http.MethodPost, path+"confirm", "guest-1", reservation.RoleGuest, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, path+"teleport", "owner-1", reservation.RoleOwner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, path+"confirm", "owner-1", reservation.RoleOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.StatusConfirmed, decode[model.Reservation](t, w).Status)

	w = a.do(t, http.MethodPost, path+"confirm", "owner-1", reservation.RoleOwner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "confirmed", decode[map[string]any](t, w)["status"])

	w = a.do(t, http.MethodPost, "/api/reservations/missing/confirm", "owner-1", reservation.RoleOwner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadReservations(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do(t, http.MethodPost, "/api/reservations", "guest-1", reservation.RoleGuest, stayBody("2026-04-20", "2026-04-22", 1))
	require.Equal(t, http.StatusCreated, w.Code)
	res := decode[model.Reservation](t, w)

	w = a.do(t, http.MethodGet, "/api/reservations/"+res.ID, "guest-1", reservation.RoleGuest, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/api/reservations/"+res.ID, "owner-1", reservation.RoleOwner, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/api/reservations/"+res.ID, "guest-9", reservation.RoleGuest, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(t, http.MethodGet, "/api/reservations/"+res.ID, "ops", reservation.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/reservations", "guest-1", reservation.RoleGuest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Reservation](t, w), 1)

	w = a.do(t, http.MethodGet, "/api/reservations?as=owner", "guest-1", reservation.RoleGuest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/reservations?as=owner", "owner-1", reservation.RoleOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Reservation](t, w), 1)

	w = a.do(t, http.MethodGet, "/api/reservations?as=staff", "owner-1", reservation.RoleOwner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRooms(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do(t, http.MethodGet, "/api/rooms/room-1", "guest-1", reservation.RoleGuest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	room := decode[catalog.RoomInfo](t, w)
	assert.Equal(t, 2, room.Capacity)
	assert.Equal(t, "owner-1", room.OwnerID)

	w = a.do(t, http.MethodGet, "/api/rooms/nope", "guest-1", reservation.RoleGuest, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	a.do(t, http.MethodPost, "/api/reservations", "guest-1", reservation.RoleGuest, stayBody("2026-04-20", "2026-04-22", 1))
	a.do(t, http.MethodPost, "/api/reservations", "guest-2", reservation.RoleGuest, stayBody("2026-04-10", "2026-04-12", 1))

	w = a.do(t, http.MethodGet, "/api/rooms/room-1/reservations", "owner-1", reservation.RoleOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]model.Reservation](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "guest-2", list[0].GuestID, "ordered by check-in")

	w = a.do(t, http.MethodGet, "/api/rooms/room-1/reservations", "guest-1", reservation.RoleGuest, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestNotifications(t *testing.T) {
	a := newTestAPI(t, nil)

	w := a.do(t, http.MethodPost, "/api/reservations", "guest-1", reservation.RoleGuest, stayBody("2026-04-20", "2026-04-22", 1))
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(t, http.MethodGet, "/api/notifications", "owner-1", reservation.RoleOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]model.NotificationRecord](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "reservation_created", list[0].Kind)

	w = a.do(t, http.MethodPost, "/api/notifications/"+list[0].ID+"/read", "guest-1", reservation.RoleGuest, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodPost, "/api/notifications/"+list[0].ID+"/read", "owner-1", reservation.RoleOwner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/api/notifications?unread=true", "owner-1", reservation.RoleOwner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/notifications?limit=x", "owner-1", reservation.RoleOwner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPushSubscriptions(t *testing.T) {
	a := newTestAPI(t, &webpush.Options{VAPIDPublicKey: "public-key", TTL: 3600})

	w := a.do(t, http.MethodGet, "/api/vapid_public_key", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public-key","ttl_seconds":3600}`, w.Body.String())

	w = a.do(t, http.MethodPut, "/api/push_subscriptions", "guest-1", reservation.RoleGuest, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	body := gin.H{"endpoint": "https://push.example.com/abc", "p256dh": "key", "auth": "secret"}
	w = a.do(t, http.MethodPut, "/api/push_subscriptions", "guest-1", reservation.RoleGuest, body)
	assert.Equal(t, http.StatusCreated, w.Code)

	var sub model.PushSubscription
	require.NoError(t, a.db.First(&sub, "endpoint = ?", "https://push.example.com/abc").Error)
	assert.Equal(t, "guest-1", sub.UserID)

	w = a.do(t, http.MethodDelete, "/api/push_subscriptions", "guest-1", reservation.RoleGuest, gin.H{"endpoint": "https://push.example.com/abc"})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestVAPIDKeyNotConfigured(t *testing.T) {
	a := newTestAPI(t, nil)
	w := a.do(t, http.MethodGet, "/api/vapid_public_key", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWriteError(t *testing.T) {
	h := NewHandler(Deps{Log: zap.NewNop()})
	tests := []struct {
		err        error
		status     int
		retryAfter bool
	}{
		{&apperror.ValidationError{Field: "x", Reason: "bad"}, http.StatusBadRequest, false},
		{&apperror.ConflictError{RoomID: "r", ConflictingReservationID: "c"}, http.StatusConflict, false},
		{&apperror.InvalidTransitionError{Unauthorized: true}, http.StatusForbidden, false},
		{&apperror.InvalidTransitionError{}, http.StatusConflict, false},
		{apperror.ErrNotFound, http.StatusNotFound, false},
		{fmt.Errorf("wrapped: %w", apperror.ErrBusy), http.StatusServiceUnavailable, true},
		{apperror.ErrStorageUnavailable, http.StatusServiceUnavailable, true},
		{fmt.Errorf("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		h.writeError(c, tt.err)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
		assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After") != "", tt.err.Error())
	}
}
