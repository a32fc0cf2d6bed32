//go:build linux
// +build linux

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = "/org/mpris/MediaPlayer2"
	playerInterface = "org.mpris.MediaPlayer2.Player"
	propMetadata    = playerInterface + ".Metadata"
	propStatus      = playerInterface + ".PlaybackStatus"

	signalPropertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
	signalNameOwnerChanged  = "org.freedesktop.DBus.NameOwnerChanged"

	statusPlaying = "Playing"
	statusStopped = "Stopped"
)

// MprisHost observes one MPRIS player on the session bus and exposes it as
// a domain.Host. Notifications are delivered from a single goroutine.
type MprisHost struct {
	logger   *zap.Logger
	player   string // well-known bus name of the observed player
	dial     func() (DBusClient, error)
	registry *registry

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	conn        DBusClient
	wg          sync.WaitGroup
	playerNames map[string]string // unique bus name (:1.45) -> well-known name

	status string
	track  domain.TrackRef
	meta   map[string]dbus.Variant // metadata of track
}

// NewMprisHost creates a host bound to the player named in cfg
func NewMprisHost(logger *zap.Logger, cfg domain.Config) *MprisHost {
	return &MprisHost{
		logger:      logger,
		player:      cfg.GetPlayer(),
		dial:        dialSession,
		registry:    newRegistry(),
		playerNames: make(map[string]string),
		status:      statusStopped,
	}
}

// Start connects to the session bus, reads the player's current state and
// begins listening for changes. It returns once the initial state is loaded
// and delivered to the handlers already subscribed.
func (h *MprisHost) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	conn, err := h.dial()
	if err != nil {
		h.logger.Error("Failed to connect to session bus", zap.Error(err))
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	// Stopped while connecting
	if err := ctx.Err(); err != nil {
		h.closeConn(conn)
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return err
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(mprisPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		h.closeConn(conn)
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	// Non-fatal: without it the player restarting goes unnoticed
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		h.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	}

	// the loop outlives ctx, which only covers startup
	loopCtx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	h.conn = conn
	h.cancel = cancel
	h.mu.Unlock()

	// signals arriving while the initial state loads wait for the loop
	signals := make(chan *dbus.Signal, 10)
	conn.Signal(signals)

	// initial notifications are delivered here, before the loop starts
	if err := h.detectExistingPlayers(); err != nil {
		h.logger.Warn("Failed to detect existing players", zap.Error(err))
	}

	h.wg.Add(1)
	go h.monitorSignals(loopCtx, signals)

	h.logger.Info("MPRIS host started", zap.String("player", h.player))
	return nil
}

// Stop ends signal processing and closes the bus connection.
// Registered handlers are kept but receive no further notifications.
func (h *MprisHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	h.running = false
	h.mu.Unlock()

	h.logger.Debug("Waiting for signal goroutine to finish")
	h.wg.Wait()

	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()

	if conn != nil {
		h.closeConn(conn)
	}

	h.logger.Info("MPRIS host stopped")
	return nil
}

func (h *MprisHost) closeConn(conn DBusClient) {
	if err := conn.Close(); err != nil {
		h.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
	}
}

// Subscribe registers handler for notifications of kind
func (h *MprisHost) Subscribe(kind domain.EventKind, handler domain.Handler) (domain.SubscriptionID, error) {
	id, err := h.registry.add(kind, handler)
	if err != nil {
		return 0, err
	}
	h.logger.Debug("Handler subscribed",
		zap.String("event", kind.String()),
		zap.Uint64("id", uint64(id)))
	return id, nil
}

// Unsubscribe removes a handler registered with Subscribe
func (h *MprisHost) Unsubscribe(id domain.SubscriptionID) error {
	if err := h.registry.remove(id); err != nil {
		return fmt.Errorf("unsubscribe %d: %w", id, err)
	}
	h.logger.Debug("Handler unsubscribed", zap.Uint64("id", uint64(id)))
	return nil
}

// IsPlaying reports whether the observed player is playing
func (h *MprisHost) IsPlaying() (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status == statusPlaying, nil
}

// PlayingTrack returns the track loaded in the observed player
func (h *MprisHost) PlayingTrack() (domain.TrackRef, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.track, nil
}

// EntryGet returns property key of track from the player's latest metadata
func (h *MprisHost) EntryGet(track domain.TrackRef, key domain.PropertyKey) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if track.IsZero() || track != h.track {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrack, track)
	}
	return lookupProperty(h.meta, key)
}

// detectExistingPlayers maps the MPRIS players already on the bus and loads
// the state of the observed one
func (h *MprisHost) detectExistingPlayers() error {
	names, err := h.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	found := false
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		h.logger.Debug("Detected MPRIS player", zap.String("name", name))

		uniqueName, err := h.conn.GetNameOwner(name)
		if err == nil {
			h.mu.Lock()
			h.playerNames[uniqueName] = name
			h.mu.Unlock()
		}

		if name == h.player {
			found = true
		}
	}

	if !found {
		h.logger.Info("Player not running yet", zap.String("player", h.player))
		return nil
	}

	h.dispatch(h.fetchPlayerState())
	return nil
}

// fetchPlayerState reads metadata and playback status of the observed player
// and returns the notifications the change implies
func (h *MprisHost) fetchPlayerState() []domain.Event {
	var events []domain.Event

	variant, err := h.conn.GetProperty(h.player, mprisPath, propMetadata)
	if err != nil {
		h.logger.Warn("Failed to get metadata", zap.String("player", h.player), zap.Error(err))
	} else if meta, ok := variant.Value().(map[string]dbus.Variant); ok {
		events = append(events, h.applyMetadata(meta)...)
	} else {
		h.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", h.player))
	}

	statusVariant, err := h.conn.GetProperty(h.player, mprisPath, propStatus)
	if err != nil {
		h.logger.Warn("Failed to get playback status", zap.String("player", h.player), zap.Error(err))
	} else if status, ok := statusVariant.Value().(string); ok {
		events = append(events, h.applyStatus(status)...)
	} else {
		h.logger.Warn("Invalid playback status format", zap.String("player", h.player))
	}

	return events
}

// monitorSignals is the single goroutine delivering notifications
func (h *MprisHost) monitorSignals(ctx context.Context, signals <-chan *dbus.Signal) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Signal goroutine stopped")
			return
		case sig, ok := <-signals:
			if !ok {
				h.logger.Info("D-Bus signal channel closed")
				return
			}
			if sig == nil {
				continue
			}
			if sig.Name == signalNameOwnerChanged {
				h.dispatch(h.handleNameOwnerChanged(sig))
			} else {
				h.dispatch(h.handleSignal(sig))
			}
		}
	}
}

// handleNameOwnerChanged tracks players joining and leaving the bus
func (h *MprisHost) handleNameOwnerChanged(sig *dbus.Signal) []domain.Event {
	if len(sig.Body) < 3 {
		return nil
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, mprisPrefix) {
		return nil
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	h.mu.Lock()
	if oldOwner != "" {
		delete(h.playerNames, oldOwner)
	}
	if newOwner != "" {
		h.playerNames[newOwner] = name
	}
	h.mu.Unlock()

	if name != h.player {
		return nil
	}

	switch {
	case newOwner != "" && oldOwner == "":
		h.logger.Info("Player appeared", zap.String("player", name), zap.String("unique", newOwner))
		return h.fetchPlayerState()
	case newOwner == "" && oldOwner != "":
		h.logger.Info("Player disappeared", zap.String("player", name), zap.String("unique", oldOwner))
		events := h.applyStatus(statusStopped)
		h.mu.Lock()
		h.track = ""
		h.meta = nil
		h.mu.Unlock()
		return events
	}
	return nil
}

// handleSignal turns a PropertiesChanged signal from the observed player into notifications
func (h *MprisHost) handleSignal(sig *dbus.Signal) []domain.Event {
	// Body: interface name, changed properties, invalidated properties
	if sig.Name != signalPropertiesChanged || len(sig.Body) < 2 {
		return nil
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerInterface {
		return nil
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil
	}

	if playerName := h.getPlayerName(sig.Sender); playerName != h.player {
		h.logger.Debug("Ignoring signal from other player",
			zap.String("sender", sig.Sender),
			zap.String("player", playerName))
		return nil
	}

	var events []domain.Event

	if v, ok := changedProps["Metadata"]; ok {
		meta, ok := v.Value().(map[string]dbus.Variant)
		if !ok {
			h.logger.Warn("Invalid metadata format in signal, ignoring")
			return nil
		}
		events = append(events, h.applyMetadata(meta)...)
	}

	if v, ok := changedProps["PlaybackStatus"]; ok {
		status, ok := v.Value().(string)
		if !ok {
			h.logger.Warn("Invalid playback status format in signal, ignoring")
			return events
		}
		events = append(events, h.applyStatus(status)...)
	}

	return events
}

// applyMetadata stores new metadata. A different track id yields a track change;
// the same id yields one property change per differing key.
func (h *MprisHost) applyMetadata(meta map[string]dbus.Variant) []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := trackID(meta)
	old := h.meta
	h.meta = meta

	if id != h.track {
		h.track = id
		h.logger.Info("Track changed",
			zap.String("track", string(id)),
			zap.Any("title", variantValue(meta, "xesam:title")))
		return []domain.Event{{Kind: domain.EventTrackChanged, Track: id}}
	}

	if id.IsZero() {
		return nil
	}

	uri := trackURL(meta)
	var events []domain.Event
	for _, key := range changedKeys(old, meta) {
		events = append(events, domain.Event{
			Kind:     domain.EventTrackPropertyChanged,
			URI:      uri,
			Property: key,
			OldValue: variantValue(old, key),
			NewValue: variantValue(meta, key),
		})
	}
	return events
}

// applyStatus stores the playback status and reports crossing the playing boundary
func (h *MprisHost) applyStatus(status string) []domain.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	wasPlaying := h.status == statusPlaying
	h.status = status
	playing := status == statusPlaying

	if wasPlaying == playing {
		return nil
	}

	h.logger.Info("Playback state changed",
		zap.String("player", h.player),
		zap.String("status", status))
	return []domain.Event{{Kind: domain.EventPlaybackStateChanged, Playing: playing}}
}

// dispatch delivers events to subscribed handlers. No lock is held while handlers run.
func (h *MprisHost) dispatch(events []domain.Event) {
	for _, ev := range events {
		for _, handler := range h.registry.handlers(ev.Kind) {
			handler(ev)
		}
	}
}

// getPlayerName returns the well-known player name for a unique bus name
// Falls back to the unique name if no mapping exists
func (h *MprisHost) getPlayerName(uniqueName string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if wellKnown, ok := h.playerNames[uniqueName]; ok {
		return wellKnown
	}
	return uniqueName
}
