// Package token mints and decodes LiveKit room-access tokens.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/livekit/protocol/auth"
)

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = 6 * time.Hour

// DefaultIdentity is used by callers that receive no participant name.
const DefaultIdentity = "my name"

var (
	// ErrInvalidRequest is returned for an empty identity or room.
	ErrInvalidRequest = errors.New("invalid token request")
	// ErrInvalidToken is returned by Verify for tokens that fail decoding or validation.
	ErrInvalidToken = errors.New("invalid access token")
)

// Issuer signs room-access tokens with a LiveKit API key pair.
type Issuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewIssuer returns an Issuer. A non-positive ttl selects DefaultTTL.
func NewIssuer(apiKey, apiSecret string, ttl time.Duration) (*Issuer, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("token issuer: API key and secret are required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}, nil
}

// TTL returns the lifetime of tokens minted by this issuer.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue mints a token letting identity join room. The identity doubles as the
// participant's display name.
func (i *Issuer) Issue(identity, room string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", fmt.Errorf("%w: identity is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(room) == "" {
		return "", fmt.Errorf("%w: room is required", ErrInvalidRequest)
	}

	at := auth.NewAccessToken(i.apiKey, i.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	at.AddGrant(grant).
		SetIdentity(identity).
		SetName(identity).
		SetValidFor(i.ttl)

	jwtToken, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return jwtToken, nil
}

// Claims is the decoded content of an access token.
type Claims struct {
	Identity  string
	Name      string
	Room      string
	RoomJoin  bool
	Issuer    string
	ExpiresAt time.Time
}

type videoClaims struct {
	RoomJoin bool   `json:"roomJoin,omitempty"`
	Room     string `json:"room,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name  string       `json:"name,omitempty"`
	Video *videoClaims `json:"video,omitempty"`
}

// Verify checks the token signature against the issuer's secret and decodes it.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(tokenString, &tc, func(*jwt.Token) (any, error) {
		return []byte(i.apiSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.apiKey),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c := Claims{
		Identity: tc.Subject,
		Name:     tc.Name,
		Issuer:   tc.Issuer,
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	if tc.Video != nil {
		c.Room = tc.Video.Room
		c.RoomJoin = tc.Video.RoomJoin
	}
	return c, nil
}
