package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"metros-backend/internal/models"
	"metros-backend/internal/repository"
	"metros-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (chi.Router, repository.UserRepository) {
	t.Helper()

	repo := repository.NewMemoryUserRepository()
	userService := services.NewUserService(repo)
	statsService := services.NewStatsService(repo)
	roomService := services.NewRoomService(repo)

	userHandler := NewUserHandler(userService, nil)
	roomHandler := NewRoomHandler(roomService, userService, nil)
	stationHandler := NewStationHandler(statsService)
	healthHandler := NewHealthHandler()

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/users", userHandler.ListUsers)
		r.Post("/users", userHandler.CreateUser)
		r.Put("/users/{id}", userHandler.UpdateUser)
		r.Post("/users/{id}/ping", userHandler.PingUser)
		r.Post("/rooms/join-station", roomHandler.JoinStation)
		r.Get("/stations/waiting-room", stationHandler.WaitingRoom)
		r.Get("/health", healthHandler.Health)
	})
	r.Get("/healthz", healthHandler.Health)
	return r, repo
}

func doJSON(t *testing.T, r chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createUser(t *testing.T, r chi.Router, name, city, deviceID string) *models.User {
	t.Helper()

	rec := doJSON(t, r, http.MethodPost, "/api/users", &models.User{
		Name:     name,
		City:     city,
		DeviceID: deviceID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	return &user
}

func TestCreateUserAssignsIdentity(t *testing.T) {
	r, _ := newTestRouter(t)

	user := createUser(t, r, "Анна", "spb", "dev1")
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.True(t, user.Online)
	assert.True(t, user.IsWaiting)
}

func TestCreateUserSameDeviceReusesRecord(t *testing.T) {
	r, repo := newTestRouter(t)

	first := createUser(t, r, "Анна", "spb", "dev1")
	second := createUser(t, r, "Анна Петровна", "spb", "dev1")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Анна Петровна", second.Name)
	assert.True(t, second.Online)
	assert.True(t, second.IsWaiting)

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestCreateUserRequiresName(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/users", &models.User{City: "spb"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListUsers(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	createUser(t, r, "Анна", "spb", "dev1")
	createUser(t, r, "Боб", "spb", "dev2")

	rec = doJSON(t, r, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var users []*models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)
}

func TestUpdateUserMergesPartialFields(t *testing.T) {
	r, _ := newTestRouter(t)
	user := createUser(t, r, "Анна", "spb", "dev1")

	rec := doJSON(t, r, http.MethodPut, "/api/users/"+user.ID, map[string]interface{}{
		"station":      "Пушкинская",
		"color":        "синяя куртка",
		"is_connected": true,
		"is_waiting":   false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Пушкинская", updated.Station)
	assert.Equal(t, "синяя куртка", updated.Color)
	assert.True(t, updated.IsConnected)
	assert.False(t, updated.IsWaiting)
	assert.Equal(t, "Анна", updated.Name)
}

func TestUpdateUnknownUserReturns404(t *testing.T) {
	r, repo := newTestRouter(t)
	createUser(t, r, "Анна", "spb", "dev1")

	rec := doJSON(t, r, http.MethodPut, "/api/users/999", map[string]interface{}{
		"station": "Пушкинская",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	users, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Empty(t, users[0].Station)
}

func TestPingUser(t *testing.T) {
	r, _ := newTestRouter(t)
	user := createUser(t, r, "Анна", "spb", "dev1")

	rec := doJSON(t, r, http.MethodPost, "/api/users/"+user.ID+"/ping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = doJSON(t, r, http.MethodPost, "/api/users/999/ping", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinStation(t *testing.T) {
	r, repo := newTestRouter(t)
	anna := createUser(t, r, "Анна", "spb", "dev1")
	bob := createUser(t, r, "Боб", "spb", "dev2")

	rec := doJSON(t, r, http.MethodPost, "/api/rooms/join-station", &models.JoinStationRequest{
		Station: "Пушкинская",
		UserID:  anna.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.JoinStationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Users, 1)
	assert.Equal(t, anna.ID, resp.Users[0].ID)

	// second member at the same station sees both
	rec = doJSON(t, r, http.MethodPost, "/api/rooms/join-station", &models.JoinStationRequest{
		Station: "Пушкинская",
		UserID:  bob.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Users, 2)

	stored, err := repo.GetByID(context.Background(), anna.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsConnected)
	assert.False(t, stored.IsWaiting)
	assert.Equal(t, "Пушкинская", stored.Station)
}

func TestJoinStationValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/rooms/join-station", &models.JoinStationRequest{
		UserID: "u1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/rooms/join-station", &models.JoinStationRequest{
		Station: "Пушкинская",
		UserID:  "missing",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWaitingRoomStats(t *testing.T) {
	r, _ := newTestRouter(t)
	anna := createUser(t, r, "Анна", "spb", "dev1")
	createUser(t, r, "Боб", "spb", "dev2")

	doJSON(t, r, http.MethodPost, "/api/rooms/join-station", &models.JoinStationRequest{
		Station: "Пушкинская",
		UserID:  anna.ID,
	})

	rec := doJSON(t, r, http.MethodGet, "/api/stations/waiting-room?city=spb", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.WaitingRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalStats.TotalWaiting)
	assert.Equal(t, 1, resp.TotalStats.TotalConnected)
	assert.Equal(t, 2, resp.TotalStats.TotalUsers)

	rec = doJSON(t, r, http.MethodGet, "/api/stations/waiting-room", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/healthz", "/api/health"} {
		rec := doJSON(t, r, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	}
}
