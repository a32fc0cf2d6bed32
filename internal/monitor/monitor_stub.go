//go:build !linux
// +build !linux

package monitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
)

// MprisHost stub for non-Linux platforms. It accepts subscriptions but never
// reports playback.
type MprisHost struct {
	logger   *zap.Logger
	registry *registry
}

// NewMprisHost creates a stub host that fails to start on non-Linux platforms
func NewMprisHost(logger *zap.Logger, cfg domain.Config) *MprisHost {
	return &MprisHost{logger: logger, registry: newRegistry()}
}

// Start returns an error indicating MPRIS is not supported on this platform
func (h *MprisHost) Start(ctx context.Context) error {
	return fmt.Errorf("MPRIS monitoring is only supported on Linux systems")
}

// Stop is a no-op on non-Linux platforms
func (h *MprisHost) Stop(ctx context.Context) error {
	return nil
}

func (h *MprisHost) Subscribe(kind domain.EventKind, handler domain.Handler) (domain.SubscriptionID, error) {
	return h.registry.add(kind, handler)
}

func (h *MprisHost) Unsubscribe(id domain.SubscriptionID) error {
	return h.registry.remove(id)
}

func (h *MprisHost) IsPlaying() (bool, error) {
	return false, nil
}

func (h *MprisHost) PlayingTrack() (domain.TrackRef, error) {
	return "", nil
}

func (h *MprisHost) EntryGet(track domain.TrackRef, key domain.PropertyKey) (any, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnknownTrack, track)
}
