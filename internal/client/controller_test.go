package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"metros-backend/internal/handlers"
	"metros-backend/internal/repository"
	"metros-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBackend struct {
	srv  *httptest.Server
	repo repository.UserRepository
	puts int32
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	repo := repository.NewMemoryUserRepository()
	userService := services.NewUserService(repo)
	statsService := services.NewStatsService(repo)
	roomService := services.NewRoomService(repo)

	userHandler := handlers.NewUserHandler(userService, nil)
	roomHandler := handlers.NewRoomHandler(roomService, userService, nil)
	stationHandler := handlers.NewStationHandler(statsService)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/users", userHandler.ListUsers)
		r.Post("/users", userHandler.CreateUser)
		r.Put("/users/{id}", userHandler.UpdateUser)
		r.Post("/users/{id}/ping", userHandler.PingUser)
		r.Post("/rooms/join-station", roomHandler.JoinStation)
		r.Get("/stations/waiting-room", stationHandler.WaitingRoom)
	})

	b := &testBackend{repo: repo}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodPut && strings.HasPrefix(req.URL.Path, "/api/users/") {
			atomic.AddInt32(&b.puts, 1)
		}
		r.ServeHTTP(w, req)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) putCount() int32 {
	return atomic.LoadInt32(&b.puts)
}

func newTestController(t *testing.T, b *testBackend, store *LocalStore) *Controller {
	t.Helper()

	api := NewClient(b.srv.URL+"/api", WithCacheTTL(0))
	t.Cleanup(api.Close)

	ctrl, err := NewController(api, store, WithDebounce(30*time.Millisecond))
	require.NoError(t, err)
	return ctrl
}

func TestControllerRegisterJoinLeave(t *testing.T) {
	b := newTestBackend(t)
	ctrl := newTestController(t, b, newTestStore(t))
	ctx := context.Background()

	assert.Equal(t, ScreenSetup, ctrl.Screen())

	// register
	require.NoError(t, ctrl.Register(ctx, "Анна", "spb", ""))
	assert.Equal(t, ScreenWaiting, ctrl.Screen())
	require.NotEmpty(t, ctrl.UserID())

	stored, err := b.repo.GetByID(ctx, ctrl.UserID())
	require.NoError(t, err)
	assert.Equal(t, "Анна", stored.Name)
	assert.True(t, stored.IsWaiting)
	assert.False(t, stored.IsConnected)

	// join a station
	require.NoError(t, ctrl.JoinStation(ctx, "Пушкинская", "3", "синяя куртка"))
	assert.Equal(t, ScreenJoined, ctrl.Screen())

	stored, err = b.repo.GetByID(ctx, ctrl.UserID())
	require.NoError(t, err)
	assert.Equal(t, "Пушкинская", stored.Station)
	assert.Equal(t, "синяя куртка", stored.Color)
	assert.True(t, stored.IsConnected)
	assert.False(t, stored.IsWaiting)

	// leave returns to waiting and clears the station on the server
	ctrl.Leave()
	assert.Equal(t, ScreenWaiting, ctrl.Screen())

	select {
	case res := <-ctrl.WriteResults():
		assert.Equal(t, "leave", res.Op)
		assert.NoError(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("leave write result not published")
	}

	stored, err = b.repo.GetByID(ctx, ctrl.UserID())
	require.NoError(t, err)
	assert.Empty(t, stored.Station)
	assert.False(t, stored.IsConnected)
	assert.True(t, stored.IsWaiting)
}

func TestControllerRegisterTwiceSameDevice(t *testing.T) {
	b := newTestBackend(t)
	store := newTestStore(t)
	ctx := context.Background()

	ctrl := newTestController(t, b, store)
	require.NoError(t, ctrl.Register(ctx, "Анна", "spb", ""))
	firstID := ctrl.UserID()

	// a fresh controller over the same store carries the same device identity
	ctrl2 := newTestController(t, b, store)
	require.NoError(t, ctrl2.Register(ctx, "Анна Петровна", "spb", ""))

	users, err := b.repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1, "same device must update, not duplicate")
	assert.Equal(t, firstID, users[0].ID)
	assert.Equal(t, "Анна Петровна", users[0].Name)
}

func TestControllerRegisterValidation(t *testing.T) {
	b := newTestBackend(t)
	var notified string
	store := newTestStore(t)
	api := NewClient(b.srv.URL+"/api", WithCacheTTL(0))
	t.Cleanup(api.Close)
	ctrl, err := NewController(api, store, WithNotify(func(m string) { notified = m }))
	require.NoError(t, err)

	err = ctrl.Register(context.Background(), "   ", "spb", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "nickname", verr.Field)
	assert.NotEmpty(t, notified)
	assert.Equal(t, ScreenSetup, ctrl.Screen())
}

func TestControllerJoinValidation(t *testing.T) {
	b := newTestBackend(t)
	ctrl := newTestController(t, b, newTestStore(t))
	ctx := context.Background()

	require.NoError(t, ctrl.Register(ctx, "Анна", "spb", ""))

	var verr *ValidationError
	err := ctrl.JoinStation(ctx, "Пушкинская", "", "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "color", verr.Field)

	err = ctrl.JoinStation(ctx, "", "", "синяя куртка")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "station", verr.Field)

	assert.Equal(t, ScreenWaiting, ctrl.Screen())
}

func TestControllerStatusDebounce(t *testing.T) {
	b := newTestBackend(t)
	ctrl := newTestController(t, b, newTestStore(t))
	ctx := context.Background()

	require.NoError(t, ctrl.Register(ctx, "Анна", "spb", ""))
	before := b.putCount()

	// rapid edits within the debounce window
	ctrl.SetStatus("у первого вагона", "")
	ctrl.SetStatus("у первого вагона", "спешу")
	ctrl.SetStatus("в центре зала", "спешу")

	require.Eventually(t, func() bool {
		return b.putCount() > before
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, before+1, b.putCount(), "rapid edits must collapse into one write")

	stored, err := b.repo.GetByID(ctx, ctrl.UserID())
	require.NoError(t, err)
	assert.Equal(t, "в центре зала, спешу", stored.Status)
}

func TestControllerRestore(t *testing.T) {
	b := newTestBackend(t)
	store := newTestStore(t)
	ctx := context.Background()

	ctrl := newTestController(t, b, store)
	require.NoError(t, ctrl.Register(ctx, "Анна", "spb", ""))
	require.NoError(t, ctrl.JoinStation(ctx, "Пушкинская", "", "синяя куртка"))
	userID := ctrl.UserID()

	// a fresh controller restores the joined session from the local store
	restored := newTestController(t, b, store)
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, ScreenJoined, restored.Screen())
	assert.Equal(t, userID, restored.UserID())
}

func TestControllerRestoreExpiredSnapshot(t *testing.T) {
	b := newTestBackend(t)
	store := newTestStore(t)

	codec, err := NewSessionCodec(store)
	require.NoError(t, err)
	token, err := codec.Encode(&Snapshot{
		UserID:  "u1",
		Name:    "Анна",
		Screen:  ScreenJoined,
		SavedAt: time.Now().Add(-25 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(KeySession, token))

	ctrl := newTestController(t, b, store)
	require.NoError(t, ctrl.Restore(context.Background()))
	assert.Equal(t, ScreenSetup, ctrl.Screen())
	assert.Empty(t, ctrl.UserID())

	_, ok := store.Get(KeySession)
	assert.False(t, ok, "unusable session must be discarded")
}

func TestControllerRestoreVerificationFailure(t *testing.T) {
	b := newTestBackend(t)
	store := newTestStore(t)
	ctx := context.Background()

	ctrl := newTestController(t, b, store)
	require.NoError(t, ctrl.Register(ctx, "Анна", "spb", ""))

	// backend gone: verification fails and the session resets to setup
	deadAPI := NewClient("http://127.0.0.1:1", WithTimeout(100*time.Millisecond))
	t.Cleanup(deadAPI.Close)
	restored, err := NewController(deadAPI, store)
	require.NoError(t, err)

	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, ScreenSetup, restored.Screen())
	assert.Empty(t, restored.UserID())

	_, ok := store.Get(KeySession)
	assert.False(t, ok)
}

func TestControllerPollingRefreshesStats(t *testing.T) {
	b := newTestBackend(t)
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := NewClient(b.srv.URL+"/api", WithCacheTTL(0))
	t.Cleanup(api.Close)
	ctrl, err := NewController(api, store,
		WithPollIntervals(20*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, ctrl.Register(ctx, "Анна", "spb", ""))
	ctrl.Start(ctx)

	require.Eventually(t, func() bool {
		stats := ctrl.Stats()
		return stats != nil && stats.TotalStats.TotalWaiting == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ctrl.JoinStation(ctx, "Пушкинская", "", "синяя куртка"))
	require.Eventually(t, func() bool {
		return len(ctrl.Members()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
