package client

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTTL bounds how long a saved session may be used to restore state.
const sessionTTL = 24 * time.Hour

// Snapshot is a denormalized copy of the client-relevant user fields plus
// the active screen. It mirrors server state but never overwrites it.
type Snapshot struct {
	UserID   string
	Name     string
	City     string
	Gender   string
	Color    string
	Wagon    string
	Station  string
	Position string
	Mood     string
	Screen   Screen
	SavedAt  time.Time
}

type sessionClaims struct {
	Name     string `json:"name,omitempty"`
	City     string `json:"city,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Color    string `json:"color,omitempty"`
	Wagon    string `json:"wagon,omitempty"`
	Station  string `json:"station,omitempty"`
	Position string `json:"position,omitempty"`
	Mood     string `json:"mood,omitempty"`
	Screen   string `json:"screen"`
	jwt.RegisteredClaims
}

// SessionCodec serializes session snapshots as signed tokens with a 24-hour
// expiry. The signing secret is per device and lives in the local store, so
// a token copied between devices or edited by hand never restores state.
type SessionCodec struct {
	secret []byte
}

// NewSessionCodec loads the per-device signing secret from the store,
// generating it on first use.
func NewSessionCodec(store *LocalStore) (*SessionCodec, error) {
	if hexSecret, ok := store.Get(KeySessionSecret); ok && hexSecret != "" {
		secret, err := hex.DecodeString(hexSecret)
		if err != nil {
			return nil, fmt.Errorf("corrupt session secret: %w", err)
		}
		return &SessionCodec{secret: secret}, nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate session secret: %w", err)
	}
	if err := store.Set(KeySessionSecret, hex.EncodeToString(secret)); err != nil {
		return nil, err
	}
	return &SessionCodec{secret: secret}, nil
}

// Encode signs a snapshot into a compact token.
func (c *SessionCodec) Encode(snap *Snapshot) (string, error) {
	claims := sessionClaims{
		Name:     snap.Name,
		City:     snap.City,
		Gender:   snap.Gender,
		Color:    snap.Color,
		Wagon:    snap.Wagon,
		Station:  snap.Station,
		Position: snap.Position,
		Mood:     snap.Mood,
		Screen:   snap.Screen.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   snap.UserID,
			IssuedAt:  jwt.NewNumericDate(snap.SavedAt),
			ExpiresAt: jwt.NewNumericDate(snap.SavedAt.Add(sessionTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Decode validates a token and returns the snapshot. Expired or tampered
// tokens fail, never partially restore.
func (c *SessionCodec) Decode(tokenString string) (*Snapshot, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	snap := &Snapshot{
		UserID:   claims.Subject,
		Name:     claims.Name,
		City:     claims.City,
		Gender:   claims.Gender,
		Color:    claims.Color,
		Wagon:    claims.Wagon,
		Station:  claims.Station,
		Position: claims.Position,
		Mood:     claims.Mood,
		Screen:   ParseScreen(claims.Screen),
	}
	if claims.IssuedAt != nil {
		snap.SavedAt = claims.IssuedAt.Time
	}
	return snap, nil
}
