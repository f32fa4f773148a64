package client

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"metros-backend/internal/models"
	"metros-backend/internal/stations"

	"github.com/google/uuid"
)

// fallbackResponse synthesizes a canned response for a failed request so the
// UI keeps working without the backend. Returns false for endpoints with no
// sensible local answer.
func fallbackResponse(method, path string, body []byte) (json.RawMessage, bool) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, false
	}

	switch {
	case method == http.MethodGet && u.Path == "/users":
		return mustMarshal([]*models.User{}), true

	case method == http.MethodGet && u.Path == "/stations/waiting-room":
		city := u.Query().Get("city")
		return mustMarshal(emptyWaitingRoom(city)), true

	case method == http.MethodPost && u.Path == "/users":
		var user models.User
		if body != nil {
			_ = json.Unmarshal(body, &user)
		}
		now := time.Now()
		user.ID = uuid.New().String()
		user.Online = true
		user.LastSeen = now
		user.CreatedAt = now
		return mustMarshal(&user), true

	case method == http.MethodPut && strings.HasPrefix(u.Path, "/users/"):
		var user models.User
		if body != nil {
			_ = json.Unmarshal(body, &user)
		}
		user.ID = strings.TrimPrefix(u.Path, "/users/")
		user.Online = true
		user.LastSeen = time.Now()
		return mustMarshal(&user), true

	case method == http.MethodPost && strings.HasSuffix(u.Path, "/ping"):
		return json.RawMessage(`{"success":true}`), true

	case method == http.MethodPost && u.Path == "/rooms/join-station":
		return mustMarshal(models.JoinStationResponse{Success: true, Users: []*models.User{}}), true
	}

	return nil, false
}

func emptyWaitingRoom(city string) *models.WaitingRoomResponse {
	resp := &models.WaitingRoomResponse{StationStats: []models.StationStat{}}
	for _, name := range stations.ForCity(city) {
		resp.StationStats = append(resp.StationStats, models.StationStat{Station: name})
	}
	return resp
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(data)
}
