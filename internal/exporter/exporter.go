// Package exporter keeps the now-playing document in sync with the track
// the host player is playing.
package exporter

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
	"github.com/genricoloni/nowplaying-xml/internal/nowplaying"
)

// ErrAlreadyActive is returned when Activate is called twice without Deactivate
var ErrAlreadyActive = errors.New("exporter already active")

// Exporter writes the metadata of the playing track to a Sink whenever the
// player reports a relevant change.
type Exporter struct {
	logger *zap.Logger
	sink   domain.Sink

	mu      sync.Mutex
	active  bool
	player  domain.Player
	db      domain.Database
	current domain.TrackRef
	subs    []domain.SubscriptionID
}

// NewExporter creates an inactive exporter writing to sink
func NewExporter(logger *zap.Logger, sink domain.Sink) *Exporter {
	return &Exporter{
		logger: logger,
		sink:   sink,
	}
}

// Activate subscribes to player notifications and, if the player is already
// playing, exports the playing track right away.
func (e *Exporter) Activate(player domain.Player, db domain.Database) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return ErrAlreadyActive
	}

	handlers := []struct {
		kind domain.EventKind
		fn   domain.Handler
	}{
		{domain.EventPlaybackStateChanged, e.onPlaybackStateChanged},
		{domain.EventTrackChanged, e.onTrackChanged},
		{domain.EventTrackPropertyChanged, e.onTrackPropertyChanged},
	}

	subs := make([]domain.SubscriptionID, 0, len(handlers))
	for _, h := range handlers {
		id, err := player.Subscribe(h.kind, h.fn)
		if err != nil {
			err = fmt.Errorf("failed to subscribe to %s: %w", h.kind, err)
			for _, s := range subs {
				err = multierr.Append(err, player.Unsubscribe(s))
			}
			return err
		}
		subs = append(subs, id)
	}

	e.player = player
	e.db = db
	e.subs = subs
	e.current = ""
	e.active = true

	e.logger.Info("Exporter activated")

	playing, err := player.IsPlaying()
	if err != nil {
		return fmt.Errorf("failed to query playback state: %w", err)
	}
	if !playing {
		return nil
	}

	track, err := player.PlayingTrack()
	if err != nil {
		return fmt.Errorf("failed to query playing track: %w", err)
	}
	return e.setTrack(track)
}

// Deactivate unsubscribes from the player, removes the output file and drops
// every held reference. It is a no-op on an inactive exporter.
func (e *Exporter) Deactivate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return nil
	}

	var err error
	for _, id := range e.subs {
		if uerr := e.player.Unsubscribe(id); uerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to unsubscribe %d: %w", id, uerr))
		}
	}

	err = multierr.Append(err, e.sink.Remove())

	e.active = false
	e.player = nil
	e.db = nil
	e.subs = nil
	e.current = ""

	e.logger.Info("Exporter deactivated")
	return err
}

// Current returns the track the exporter considers playing
func (e *Exporter) Current() domain.TrackRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Exporter) onPlaybackStateChanged(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}

	if !ev.Playing {
		// stale file is left in place until the next track
		e.logger.Debug("Playback stopped, clearing current track",
			zap.String("track", string(e.current)))
		e.current = ""
		return
	}

	track, err := e.player.PlayingTrack()
	if err != nil {
		e.logger.Error("Failed to query playing track", zap.Error(err))
		return
	}
	if err := e.setTrack(track); err != nil {
		e.logger.Error("Failed to export playing track", zap.Error(err))
	}
}

func (e *Exporter) onTrackChanged(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active || !e.isPlaying() {
		return
	}
	if err := e.setTrack(ev.Track); err != nil {
		e.logger.Error("Failed to export new track", zap.Error(err))
	}
}

func (e *Exporter) onTrackPropertyChanged(ev domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active || !e.isPlaying() {
		return
	}

	e.logger.Debug("Track property changed",
		zap.String("uri", ev.URI),
		zap.String("property", ev.Property))

	if err := e.refresh(); err != nil {
		e.logger.Error("Failed to refresh track metadata", zap.Error(err))
	}
}

// isPlaying asks the player for its state. A failed query counts as not playing.
func (e *Exporter) isPlaying() bool {
	playing, err := e.player.IsPlaying()
	if err != nil {
		e.logger.Error("Failed to query playback state", zap.Error(err))
		return false
	}
	return playing
}

// setTrack makes track the current one and exports it.
// Re-setting the current track or an empty track does nothing.
func (e *Exporter) setTrack(track domain.TrackRef) error {
	if track.IsZero() || track == e.current {
		return nil
	}

	e.current = track
	return e.refresh()
}

// refresh reads all fields of the current track and rewrites the output
func (e *Exporter) refresh() error {
	if e.current.IsZero() {
		return nil
	}

	rec, err := fetchRecord(e.db, e.current)
	if err != nil {
		return err
	}

	data, err := nowplaying.Render(rec)
	if err != nil {
		return fmt.Errorf("failed to render now playing document: %w", err)
	}

	if err := e.sink.Write(data); err != nil {
		return err
	}

	e.logger.Info("Now playing updated",
		zap.String("track", string(e.current)),
		zap.String("title", rec.Get("title")),
		zap.String("artist", rec.Get("artist")))
	return nil
}
