// Package rooms lists active LiveKit rooms and generates unused room names.
package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// Prefix starts every generated room name.
const Prefix = "room-"

// ErrBackendUnavailable is returned when the room listing cannot be fetched.
var ErrBackendUnavailable = errors.New("room backend unavailable")

// Registry reports the names of currently active rooms.
type Registry interface {
	ListActiveRooms(ctx context.Context) (map[string]struct{}, error)
}

// RoomLister is the subset of the LiveKit room service used by LiveKitRegistry.
// *lksdk.RoomServiceClient satisfies it.
type RoomLister interface {
	ListRooms(ctx context.Context, req *livekit.ListRoomsRequest) (*livekit.ListRoomsResponse, error)
}

// LiveKitRegistry lists rooms through the LiveKit server API.
type LiveKitRegistry struct {
	client RoomLister
}

// NewLiveKitRegistry connects a registry to the LiveKit server at url.
func NewLiveKitRegistry(url, apiKey, apiSecret string) *LiveKitRegistry {
	return &LiveKitRegistry{client: lksdk.NewRoomServiceClient(url, apiKey, apiSecret)}
}

// NewRegistry wraps an existing room lister.
func NewRegistry(client RoomLister) *LiveKitRegistry {
	return &LiveKitRegistry{client: client}
}

// ListActiveRooms performs a single listing round trip. Failures are not retried.
func (r *LiveKitRegistry) ListActiveRooms(ctx context.Context) (map[string]struct{}, error) {
	resp, err := r.client.ListRooms(ctx, &livekit.ListRoomsRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: list rooms: %w", ErrBackendUnavailable, err)
	}

	active := make(map[string]struct{}, len(resp.GetRooms()))
	for _, room := range resp.GetRooms() {
		active[room.GetName()] = struct{}{}
	}
	return active, nil
}

// Generator produces room names that are unused at generation time. Two concurrent
// generators may still pick the same name; the chance is negligible and accepted.
type Generator struct {
	registry Registry
	newID    func() string
}

// NewGenerator returns a Generator backed by registry.
func NewGenerator(registry Registry) *Generator {
	return &Generator{registry: registry, newID: uuid.NewString}
}

// Generate lists active rooms once and draws candidates until one is not in use.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	active, err := g.registry.ListActiveRooms(ctx)
	if err != nil {
		return "", err
	}

	name := g.candidate()
	for {
		if _, taken := active[name]; !taken {
			return name, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name = g.candidate()
	}
}

func (g *Generator) candidate() string {
	return Prefix + g.newID()[:8]
}
