package models

import "time"

// User represents a participant in the waiting room
type User struct {
	ID             string     `json:"id"`
	DeviceID       string     `json:"device_id,omitempty"`
	Name           string     `json:"name"`
	City           string     `json:"city"`
	Gender         string     `json:"gender,omitempty"`
	Color          string     `json:"color,omitempty"`
	Station        string     `json:"station,omitempty"`
	Wagon          string     `json:"wagon,omitempty"`
	Online         bool       `json:"online"`
	IsWaiting      bool       `json:"is_waiting"`
	IsConnected    bool       `json:"is_connected"`
	Status         string     `json:"status,omitempty"`
	ShowTimer      bool       `json:"show_timer,omitempty"`
	TimerSeconds   int        `json:"timer_seconds,omitempty"`
	TimerStartedAt *time.Time `json:"timer_started_at,omitempty"`
	LastSeen       time.Time  `json:"last_seen"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UserUpdate carries a partial update for a user. Nil fields are left unchanged.
type UserUpdate struct {
	Name           *string    `json:"name,omitempty"`
	City           *string    `json:"city,omitempty"`
	Gender         *string    `json:"gender,omitempty"`
	Color          *string    `json:"color,omitempty"`
	Station        *string    `json:"station,omitempty"`
	Wagon          *string    `json:"wagon,omitempty"`
	Online         *bool      `json:"online,omitempty"`
	IsWaiting      *bool      `json:"is_waiting,omitempty"`
	IsConnected    *bool      `json:"is_connected,omitempty"`
	Status         *string    `json:"status,omitempty"`
	ShowTimer      *bool      `json:"show_timer,omitempty"`
	TimerSeconds   *int       `json:"timer_seconds,omitempty"`
	TimerStartedAt *time.Time `json:"timer_started_at,omitempty"`
}

// Apply merges the update into the user in place.
func (u *UserUpdate) Apply(user *User) {
	if u.Name != nil {
		user.Name = *u.Name
	}
	if u.City != nil {
		user.City = *u.City
	}
	if u.Gender != nil {
		user.Gender = *u.Gender
	}
	if u.Color != nil {
		user.Color = *u.Color
	}
	if u.Station != nil {
		user.Station = *u.Station
	}
	if u.Wagon != nil {
		user.Wagon = *u.Wagon
	}
	if u.Online != nil {
		user.Online = *u.Online
	}
	if u.IsWaiting != nil {
		user.IsWaiting = *u.IsWaiting
	}
	if u.IsConnected != nil {
		user.IsConnected = *u.IsConnected
	}
	if u.Status != nil {
		user.Status = *u.Status
	}
	if u.ShowTimer != nil {
		user.ShowTimer = *u.ShowTimer
	}
	if u.TimerSeconds != nil {
		user.TimerSeconds = *u.TimerSeconds
	}
	if u.TimerStartedAt != nil {
		user.TimerStartedAt = u.TimerStartedAt
	}
}

// StationStat holds the waiting room counters for one station.
// Derived from the live user set on every query, never stored.
type StationStat struct {
	Station    string `json:"station"`
	Waiting    int    `json:"waiting"`
	Connected  int    `json:"connected"`
	TotalUsers int    `json:"totalUsers"`
}

// TotalStats holds the city-wide counters.
type TotalStats struct {
	TotalWaiting   int `json:"total_waiting"`
	TotalConnected int `json:"total_connected"`
	TotalUsers     int `json:"total_users"`
}

// WaitingRoomResponse is the payload of GET /api/stations/waiting-room.
type WaitingRoomResponse struct {
	StationStats []StationStat `json:"stationStats"`
	TotalStats   TotalStats    `json:"totalStats"`
}

// JoinStationRequest is the body of POST /api/rooms/join-station.
type JoinStationRequest struct {
	Station string `json:"station"`
	UserID  string `json:"userId"`
}

// JoinStationResponse lists the connected users at the joined station.
type JoinStationResponse struct {
	Success bool    `json:"success"`
	Users   []*User `json:"users"`
}
