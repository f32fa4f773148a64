package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"metros-backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Screen is the active UI screen. Transitions:
// Setup -> Waiting (register), Waiting -> Joined (join station),
// Joined -> Waiting (leave).
type Screen int

const (
	ScreenSetup Screen = iota
	ScreenWaiting
	ScreenJoined
)

func (s Screen) String() string {
	switch s {
	case ScreenWaiting:
		return "waiting"
	case ScreenJoined:
		return "joined"
	default:
		return "setup"
	}
}

// ParseScreen maps a stored screen name back to the enum. Unknown names
// fall back to the setup screen.
func ParseScreen(name string) Screen {
	switch name {
	case "waiting":
		return ScreenWaiting
	case "joined":
		return ScreenJoined
	default:
		return ScreenSetup
	}
}

// ValidationError rejects a local form field before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// WriteResult reports the outcome of a background write. Fire-and-forget
// writes still publish their result here so failures stay observable.
type WriteResult struct {
	Op  string
	Err error
}

const (
	defaultDebounce        = 500 * time.Millisecond
	defaultStatsInterval   = 15 * time.Second
	defaultMembersInterval = 10 * time.Second
)

// Controller drives the screen state machine: session restore on load,
// registration, station join/leave, debounced status edits and periodic
// presence refresh. All remote failures are converted to notifications or
// fallback values; the state machine itself never crashes.
type Controller struct {
	api    *Client
	store  *LocalStore
	codec  *SessionCodec
	device string
	notify func(message string)
	log    zerolog.Logger

	debounce        time.Duration
	statsInterval   time.Duration
	membersInterval time.Duration

	mu          sync.Mutex
	screen      Screen
	userID      string
	profile     Snapshot
	members     []*models.User
	stats       *models.WaitingRoomResponse
	statusTimer *time.Timer
	writes      chan WriteResult
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithNotify sets the transient notification callback.
func WithNotify(fn func(message string)) ControllerOption {
	return func(c *Controller) { c.notify = fn }
}

// WithDebounce overrides the status edit debounce window.
func WithDebounce(d time.Duration) ControllerOption {
	return func(c *Controller) { c.debounce = d }
}

// WithPollIntervals overrides the stats and member list refresh intervals.
func WithPollIntervals(stats, members time.Duration) ControllerOption {
	return func(c *Controller) {
		c.statsInterval = stats
		c.membersInterval = members
	}
}

// NewController creates a controller bound to an API client and local store.
func NewController(api *Client, store *LocalStore, opts ...ControllerOption) (*Controller, error) {
	codec, err := NewSessionCodec(store)
	if err != nil {
		return nil, err
	}
	device, err := store.DeviceID()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		api:             api,
		store:           store,
		codec:           codec,
		device:          device,
		notify:          func(string) {},
		log:             log.Logger,
		debounce:        defaultDebounce,
		statsInterval:   defaultStatsInterval,
		membersInterval: defaultMembersInterval,
		screen:          ScreenSetup,
		writes:          make(chan WriteResult, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Screen returns the active screen.
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// UserID returns the registered user id, empty before registration.
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// DeviceID returns the persisted device identity.
func (c *Controller) DeviceID() string {
	return c.device
}

// Stats returns the last fetched waiting room stats, nil before the first fetch.
func (c *Controller) Stats() *models.WaitingRoomResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Members returns the last fetched member list for the joined station.
func (c *Controller) Members() []*models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members
}

// WriteResults exposes the outcomes of background writes.
func (c *Controller) WriteResults() <-chan WriteResult {
	return c.writes
}

// Restore loads the saved session on startup. A valid snapshot is applied
// optimistically before the backend is consulted; the stored user is then
// verified with a ping and a failure forces a reset to the setup screen,
// discarding the local user id.
func (c *Controller) Restore(ctx context.Context) error {
	token, ok := c.store.Get(KeySession)
	if !ok {
		return nil
	}

	snap, err := c.codec.Decode(token)
	if err != nil {
		c.log.Info().Err(err).Msg("Discarding unusable session")
		c.clearSession()
		return nil
	}

	c.mu.Lock()
	c.screen = snap.Screen
	c.userID = snap.UserID
	c.profile = *snap
	c.mu.Unlock()

	if snap.UserID == "" {
		return nil
	}

	if _, err := c.api.Post(ctx, "/users/"+snap.UserID+"/ping", nil); err != nil {
		c.log.Info().Err(err).Str("user_id", snap.UserID).Msg("Session verification failed, resetting")
		c.notify("Сессия устарела, начните заново")
		c.mu.Lock()
		c.screen = ScreenSetup
		c.userID = ""
		c.profile = Snapshot{}
		c.mu.Unlock()
		c.clearSession()
		return nil
	}

	c.refreshStats(ctx)
	if snap.Screen == ScreenJoined && snap.Station != "" {
		c.refreshMembers(ctx)
	}
	return nil
}

// Register validates the nickname, finds or creates the user for this device
// and switches to the waiting screen. The station stats load in the
// background after the switch.
func (c *Controller) Register(ctx context.Context, nickname, city, gender string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		c.notify("Введите имя")
		return &ValidationError{Field: "nickname", Reason: "is required"}
	}

	existing, err := c.findOwnUser(ctx)
	if err != nil {
		c.notify("Сервер недоступен, попробуйте ещё раз")
		return err
	}

	waiting := true
	var user models.User
	if existing != nil {
		raw, err := c.api.Put(ctx, "/users/"+existing.ID, &models.UserUpdate{
			Name:      &nickname,
			City:      &city,
			Gender:    &gender,
			Online:    &waiting,
			IsWaiting: &waiting,
		})
		if err != nil {
			c.notify("Не удалось обновить профиль")
			return err
		}
		if err := json.Unmarshal(raw, &user); err != nil {
			return fmt.Errorf("failed to decode user: %w", err)
		}
	} else {
		raw, err := c.api.Post(ctx, "/users", &models.User{
			DeviceID:  c.device,
			Name:      nickname,
			City:      city,
			Gender:    gender,
			IsWaiting: true,
		})
		if err != nil {
			c.notify("Не удалось зарегистрироваться")
			return err
		}
		if err := json.Unmarshal(raw, &user); err != nil {
			return fmt.Errorf("failed to decode user: %w", err)
		}
	}

	c.mu.Lock()
	c.screen = ScreenWaiting
	c.userID = user.ID
	c.profile.UserID = user.ID
	c.profile.Name = nickname
	c.profile.City = city
	c.profile.Gender = gender
	c.profile.Screen = ScreenWaiting
	c.mu.Unlock()
	c.saveSession()

	go c.refreshStats(context.Background())
	return nil
}

// JoinStation validates the color and station, marks the user connected at
// the station and switches to the joined screen. The member list loads in
// the background; a failed update keeps the optimistic local state.
func (c *Controller) JoinStation(ctx context.Context, station, wagon, color string) error {
	if strings.TrimSpace(color) == "" {
		c.notify("Укажите цвет одежды")
		return &ValidationError{Field: "color", Reason: "is required"}
	}
	if strings.TrimSpace(station) == "" {
		c.notify("Выберите станцию")
		return &ValidationError{Field: "station", Reason: "is required"}
	}

	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID == "" {
		c.notify("Сначала зарегистрируйтесь")
		return &ValidationError{Field: "userId", Reason: "is required"}
	}

	connected := true
	notWaiting := false
	_, err := c.api.Put(ctx, "/users/"+userID, &models.UserUpdate{
		Station:     &station,
		Wagon:       &wagon,
		Color:       &color,
		IsConnected: &connected,
		IsWaiting:   &notWaiting,
	})
	if err != nil {
		c.log.Error().Err(err).Str("station", station).Msg("Station join write failed")
		c.notify("Не удалось подключиться к станции")
	}

	c.mu.Lock()
	c.screen = ScreenJoined
	c.profile.Station = station
	c.profile.Wagon = wagon
	c.profile.Color = color
	c.profile.Screen = ScreenJoined
	c.mu.Unlock()
	c.saveSession()

	go c.refreshMembers(context.Background())
	return nil
}

// Leave switches back to the waiting screen immediately and clears the
// station on the server in the background. Client state is authoritative for
// navigation; server consistency is best-effort but the write result stays
// observable.
func (c *Controller) Leave() {
	c.mu.Lock()
	userID := c.userID
	c.screen = ScreenWaiting
	c.profile.Station = ""
	c.profile.Wagon = ""
	c.profile.Screen = ScreenWaiting
	c.members = nil
	c.mu.Unlock()
	c.saveSession()

	if userID == "" {
		return
	}

	go func() {
		empty := ""
		notConnected := false
		waiting := true
		_, err := c.api.Put(context.Background(), "/users/"+userID, &models.UserUpdate{
			Station:     &empty,
			IsConnected: &notConnected,
			IsWaiting:   &waiting,
		})
		if err != nil {
			c.log.Error().Err(err).Msg("Leave write failed")
		}
		c.publishWrite(WriteResult{Op: "leave", Err: err})
	}()
}

// SetStatus records a position/mood edit. Edits settle for the debounce
// window before a single combined status write is issued, so rapid changes
// cost one request.
func (c *Controller) SetStatus(position, mood string) {
	c.mu.Lock()
	c.profile.Position = position
	c.profile.Mood = mood
	if c.statusTimer != nil {
		c.statusTimer.Stop()
	}
	c.statusTimer = time.AfterFunc(c.debounce, c.flushStatus)
	c.mu.Unlock()
}

func (c *Controller) flushStatus() {
	c.mu.Lock()
	userID := c.userID
	status := composeStatus(c.profile.Position, c.profile.Mood)
	c.mu.Unlock()

	if userID == "" {
		return
	}

	_, err := c.api.Put(context.Background(), "/users/"+userID, &models.UserUpdate{
		Status: &status,
	})
	if err != nil {
		c.log.Error().Err(err).Msg("Status write failed")
		c.notify("Не удалось обновить статус")
	}
	c.publishWrite(WriteResult{Op: "status", Err: err})
	c.saveSession()
}

// composeStatus builds the free-text status from position and mood.
func composeStatus(position, mood string) string {
	parts := make([]string, 0, 2)
	if p := strings.TrimSpace(position); p != "" {
		parts = append(parts, p)
	}
	if m := strings.TrimSpace(mood); m != "" {
		parts = append(parts, m)
	}
	return strings.Join(parts, ", ")
}

// Start launches the pollers: station stats while waiting or joined, the
// station member list while joined. They stop when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	go c.pollLoop(ctx, c.statsInterval, func() {
		if s := c.Screen(); s == ScreenWaiting || s == ScreenJoined {
			c.refreshStats(ctx)
		}
	})
	go c.pollLoop(ctx, c.membersInterval, func() {
		if c.Screen() == ScreenJoined {
			c.refreshMembers(ctx)
		}
	})
}

func (c *Controller) pollLoop(ctx context.Context, interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (c *Controller) refreshStats(ctx context.Context) {
	c.mu.Lock()
	city := c.profile.City
	c.mu.Unlock()
	if city == "" {
		return
	}

	raw, err := c.api.Get(ctx, "/stations/waiting-room?city="+city)
	if err != nil {
		c.log.Debug().Err(err).Msg("Stats refresh failed")
		return
	}
	var stats models.WaitingRoomResponse
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.log.Debug().Err(err).Msg("Stats decode failed")
		return
	}
	c.mu.Lock()
	c.stats = &stats
	c.mu.Unlock()
}

func (c *Controller) refreshMembers(ctx context.Context) {
	c.mu.Lock()
	station := c.profile.Station
	userID := c.userID
	c.mu.Unlock()
	if station == "" || userID == "" {
		return
	}

	raw, err := c.api.Post(ctx, "/rooms/join-station", &models.JoinStationRequest{
		Station: station,
		UserID:  userID,
	})
	if err != nil {
		c.log.Debug().Err(err).Msg("Member refresh failed")
		return
	}
	var resp models.JoinStationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		c.log.Debug().Err(err).Msg("Member list decode failed")
		return
	}
	c.mu.Lock()
	c.members = resp.Users
	c.mu.Unlock()
}

// findOwnUser looks up this device's existing user so a returning client
// updates its record instead of creating a duplicate.
func (c *Controller) findOwnUser(ctx context.Context) (*models.User, error) {
	raw, err := c.api.Get(ctx, "/users")
	if err != nil {
		return nil, err
	}
	var users []*models.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("failed to decode user list: %w", err)
	}
	for _, u := range users {
		if u.DeviceID == c.device {
			return u, nil
		}
	}
	return nil, nil
}

// saveSession persists the snapshot and mirrors the profile fields so a
// reload restores the form even if the snapshot itself is unusable.
func (c *Controller) saveSession() {
	c.mu.Lock()
	snap := c.profile
	snap.UserID = c.userID
	snap.Screen = c.screen
	snap.SavedAt = time.Now()
	c.mu.Unlock()

	token, err := c.codec.Encode(&snap)
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to encode session")
		return
	}

	set := func(key, value string) {
		if err := c.store.Set(key, value); err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("Failed to persist field")
		}
	}
	set(KeySession, token)
	set(KeyUserID, snap.UserID)
	set(KeyNickname, snap.Name)
	set(KeyCity, snap.City)
	set(KeyGender, snap.Gender)
	set(KeyColor, snap.Color)
	set(KeyWagon, snap.Wagon)
	set(KeyStation, snap.Station)
	set(KeyPosition, snap.Position)
	set(KeyMood, snap.Mood)
	set(KeyScreen, snap.Screen.String())
}

func (c *Controller) clearSession() {
	for _, key := range []string{KeySession, KeyUserID, KeyStation, KeyScreen} {
		if err := c.store.Delete(key); err != nil {
			c.log.Error().Err(err).Str("key", key).Msg("Failed to clear field")
		}
	}
}

func (c *Controller) publishWrite(res WriteResult) {
	select {
	case c.writes <- res:
	default:
	}
}
