package domain

import "context"

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces_mock.go -package=mocks

// Player exposes the host player's playback state and notifications
type Player interface {
	// Subscribe registers h for notifications of the given kind
	Subscribe(kind EventKind, h Handler) (SubscriptionID, error)

	// Unsubscribe removes a handler registered with Subscribe
	Unsubscribe(id SubscriptionID) error

	// IsPlaying reports whether the player is currently playing
	IsPlaying() (bool, error)

	// PlayingTrack returns the track currently loaded in the player
	PlayingTrack() (TrackRef, error)
}

// Database exposes per-track metadata stored by the host
type Database interface {
	// EntryGet returns the value of property key for track.
	// A property the track does not carry yields a nil value and no error.
	EntryGet(track TrackRef, key PropertyKey) (any, error)
}

// Host is a running player integration providing both the player and its database
type Host interface {
	Player
	Database

	// Start connects to the player. It returns once the initial state is known.
	Start(ctx context.Context) error

	// Stop disconnects from the player
	Stop(ctx context.Context) error
}

// Sink stores the rendered now-playing document
type Sink interface {
	// Write replaces the stored document with data
	Write(data []byte) error

	// Remove deletes the stored document. Removing a missing document is not an error.
	Remove() error
}

// Config defines the interface for application configuration
type Config interface {
	// GetOutputPath returns the path of the now-playing XML file
	GetOutputPath() string

	// GetPlayer returns the MPRIS bus name of the observed player
	GetPlayer() string
}
