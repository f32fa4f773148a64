package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message pushed to stats subscribers
type WSMessage struct {
	Type string      `json:"type"`
	City string      `json:"city,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// StatsHub manages WebSocket subscriptions to per-city station stats.
// Subscribers get a stats push on connect and after every mutation that can
// change the counters.
type StatsHub struct {
	mu           sync.RWMutex
	subscribers  map[string]map[*websocket.Conn]struct{}
	statsService *StatsService
}

// NewStatsHub creates a new stats hub
func NewStatsHub(statsService *StatsService) *StatsHub {
	return &StatsHub{
		subscribers:  make(map[string]map[*websocket.Conn]struct{}),
		statsService: statsService,
	}
}

// Subscribe registers a connection for a city's stats feed.
func (h *StatsHub) Subscribe(city string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[city] == nil {
		h.subscribers[city] = make(map[*websocket.Conn]struct{})
	}
	h.subscribers[city][conn] = struct{}{}

	log.Info().Str("city", city).Msg("Stats subscriber registered")
}

// Unsubscribe removes a connection from a city's stats feed.
func (h *StatsHub) Unsubscribe(city string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.subscribers[city]; ok {
		if _, ok := conns[conn]; ok {
			conn.Close()
			delete(conns, conn)
			log.Info().Str("city", city).Msg("Stats subscriber unregistered")
		}
	}
}

// SendCurrent pushes the current stats for a city to a single connection.
func (h *StatsHub) SendCurrent(ctx context.Context, city string, conn *websocket.Conn) error {
	stats, err := h.statsService.WaitingRoom(ctx, city)
	if err != nil {
		return err
	}
	return writeMessage(conn, WSMessage{Type: "station_stats", City: city, Data: stats})
}

// BroadcastCity recomputes and pushes the stats for a city to all its
// subscribers. Dead connections are dropped.
func (h *StatsHub) BroadcastCity(ctx context.Context, city string) {
	h.mu.RLock()
	n := len(h.subscribers[city])
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	stats, err := h.statsService.WaitingRoom(ctx, city)
	if err != nil {
		log.Error().Err(err).Str("city", city).Msg("Failed to compute stats for broadcast")
		return
	}
	msg := WSMessage{Type: "station_stats", City: city, Data: stats}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, n)
	for conn := range h.subscribers[city] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := writeMessage(conn, msg); err != nil {
			log.Error().Err(err).Str("city", city).Msg("Failed to push stats, dropping subscriber")
			h.Unsubscribe(city, conn)
		}
	}
}

// BroadcastAll pushes refreshed stats to the subscribers of every city.
func (h *StatsHub) BroadcastAll(ctx context.Context) {
	h.mu.RLock()
	cities := make([]string, 0, len(h.subscribers))
	for city := range h.subscribers {
		cities = append(cities, city)
	}
	h.mu.RUnlock()

	for _, city := range cities {
		h.BroadcastCity(ctx, city)
	}
}

func writeMessage(conn *websocket.Conn, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
