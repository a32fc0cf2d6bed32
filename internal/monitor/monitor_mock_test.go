//go:build linux
// +build linux

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/afero"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/genricoloni/nowplaying-xml/internal/domain"
	"github.com/genricoloni/nowplaying-xml/internal/exporter"
	"github.com/genricoloni/nowplaying-xml/internal/monitor/mocks"
	"github.com/genricoloni/nowplaying-xml/internal/output"
)

// TestFetchPlayerState covers reading the observed player's properties:
// 1. Success (Happy Path)
// 2. DBus Errors
// 3. Invalid Data types (Robustness)
func TestFetchPlayerState(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(*mocks.MockDBusClient)
		wantKinds   []domain.EventKind
		wantPlaying bool
		wantTrack   domain.TrackRef
	}{
		{
			name: "Success - Playing Track",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testPlayer, mprisPath, propMetadata).
					Return(dbus.MakeVariant(metadata("/org/rhythmbox/7", "Stairway to Heaven", nil)), nil)
				m.EXPECT().GetProperty(testPlayer, mprisPath, propStatus).
					Return(dbus.MakeVariant("Playing"), nil)
			},
			wantKinds:   []domain.EventKind{domain.EventTrackChanged, domain.EventPlaybackStateChanged},
			wantPlaying: true,
			wantTrack:   "/org/rhythmbox/7",
		},
		{
			name: "DBus Error - Connection Fail",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testPlayer, mprisPath, propMetadata).
					Return(dbus.MakeVariant(""), fmt.Errorf("connection timeout"))
				m.EXPECT().GetProperty(testPlayer, mprisPath, propStatus).
					Return(dbus.MakeVariant(""), fmt.Errorf("connection timeout"))
			},
		},
		{
			name: "Invalid Data - Metadata is Int not Map",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(testPlayer, mprisPath, propMetadata).
					Return(dbus.MakeVariant(12345), nil)
				m.EXPECT().GetProperty(testPlayer, mprisPath, propStatus).
					Return(dbus.MakeVariant("Paused"), nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(mockClient)

			h := newTestHost(mockClient)
			events := h.fetchPlayerState()

			if fmt.Sprint(kinds(events)) != fmt.Sprint(tt.wantKinds) {
				t.Errorf("Events: expected %v, got %v", tt.wantKinds, kinds(events))
			}
			if playing, _ := h.IsPlaying(); playing != tt.wantPlaying {
				t.Errorf("IsPlaying: expected %v, got %v", tt.wantPlaying, playing)
			}
			if track, _ := h.PlayingTrack(); track != tt.wantTrack {
				t.Errorf("PlayingTrack: expected %q, got %q", tt.wantTrack, track)
			}
		})
	}
}

// TestDetectExistingPlayers verifies the initial scan of DBus names.
func TestDetectExistingPlayers(t *testing.T) {
	tests := []struct {
		name             string
		setupMock        func(*mocks.MockDBusClient)
		expectError      bool
		expectPlaying    bool
		expectedMappings map[string]string
	}{
		{
			name: "Success - Observed Player Running",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return([]string{
					"org.freedesktop.DBus",
					testPlayer,
					"org.mpris.MediaPlayer2.vlc",
					"com.example.OtherApp",
				}, nil)

				m.EXPECT().GetNameOwner(testPlayer).Return(":1.100", nil)
				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.vlc").Return(":1.200", nil)

				// only the observed player is queried
				m.EXPECT().GetProperty(testPlayer, mprisPath, propMetadata).
					Return(dbus.MakeVariant(metadata("/org/rhythmbox/1", "Song A", nil)), nil)
				m.EXPECT().GetProperty(testPlayer, mprisPath, propStatus).
					Return(dbus.MakeVariant("Playing"), nil)
			},
			expectPlaying: true,
			expectedMappings: map[string]string{
				":1.100": testPlayer,
				":1.200": "org.mpris.MediaPlayer2.vlc",
			},
		},
		{
			name: "Success - Observed Player Absent",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return([]string{"org.mpris.MediaPlayer2.vlc"}, nil)
				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.vlc").Return(":1.200", nil)
			},
			expectedMappings: map[string]string{
				":1.200": "org.mpris.MediaPlayer2.vlc",
			},
		},
		{
			name: "Failure - ListNames fails",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return(nil, fmt.Errorf("bus error"))
			},
			expectError:      true,
			expectedMappings: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(mockClient)

			h := NewMprisHost(zap.NewNop(), testConfig{player: testPlayer})
			h.conn = mockClient
			h.running = true

			err := h.detectExistingPlayers()

			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			if len(h.playerNames) != len(tt.expectedMappings) {
				t.Errorf("Mapping count mismatch: want %d, got %d", len(tt.expectedMappings), len(h.playerNames))
			}
			for k, v := range tt.expectedMappings {
				if h.playerNames[k] != v {
					t.Errorf("Mapping mismatch for %s: want %s, got %s", k, v, h.playerNames[k])
				}
			}

			if playing, _ := h.IsPlaying(); playing != tt.expectPlaying {
				t.Errorf("IsPlaying: expected %v, got %v", tt.expectPlaying, playing)
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mocks.NewMockDBusClient(ctrl)

	var signals chan<- *dbus.Signal
	mockClient.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().ListNames().Return([]string{testPlayer}, nil)
	mockClient.EXPECT().GetNameOwner(testPlayer).Return(testSender, nil)
	mockClient.EXPECT().GetProperty(testPlayer, mprisPath, propMetadata).
		Return(dbus.MakeVariant(metadata("/org/rhythmbox/3", "Intro", nil)), nil)
	mockClient.EXPECT().GetProperty(testPlayer, mprisPath, propStatus).
		Return(dbus.MakeVariant("Playing"), nil)
	mockClient.EXPECT().Signal(gomock.Any()).Do(func(ch chan<- *dbus.Signal) { signals = ch })
	mockClient.EXPECT().Close().Return(nil)

	h := NewMprisHost(zap.NewNop(), testConfig{player: testPlayer})
	h.dial = func() (DBusClient, error) { return mockClient, nil }

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if playing, _ := h.IsPlaying(); !playing {
		t.Error("Initial state should be playing")
	}
	if track, _ := h.PlayingTrack(); track != "/org/rhythmbox/3" {
		t.Errorf("Initial track: got %q", track)
	}

	received := make(chan domain.Event, 1)
	if _, err := h.Subscribe(domain.EventPlaybackStateChanged, func(ev domain.Event) { received <- ev }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	signals <- propertiesChanged(testSender, map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant("Paused"),
	})

	select {
	case ev := <-received:
		if ev.Playing {
			t.Error("Expected Playing=false after pause")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout: Event was not delivered")
	}

	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// second stop is a no-op
	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

func TestStart_DialFailure(t *testing.T) {
	h := NewMprisHost(zap.NewNop(), testConfig{player: testPlayer})
	h.dial = func() (DBusClient, error) { return nil, fmt.Errorf("no session bus") }

	if err := h.Start(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}
	if h.running {
		t.Error("Host should not be marked running after a failed start")
	}
}

func TestStart_MatchSignalFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mocks.NewMockDBusClient(ctrl)
	mockClient.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any(), gomock.Any()).Return(fmt.Errorf("access denied"))
	mockClient.EXPECT().Close().Return(nil)

	h := NewMprisHost(zap.NewNop(), testConfig{player: testPlayer})
	h.dial = func() (DBusClient, error) { return mockClient, nil }

	if err := h.Start(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestStart_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mocks.NewMockDBusClient(ctrl)
	mockClient.EXPECT().Close().Return(nil)

	h := NewMprisHost(zap.NewNop(), testConfig{player: testPlayer})
	h.dial = func() (DBusClient, error) { return mockClient, nil }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Start(ctx); err == nil {
		t.Fatal("Expected context error, got nil")
	}
}

// hookedDatabase runs hook once, before the first property lookup
type hookedDatabase struct {
	domain.Database
	once sync.Once
	hook func()
}

func (d *hookedDatabase) EntryGet(track domain.TrackRef, key domain.PropertyKey) (any, error) {
	d.once.Do(d.hook)
	return d.Database.EntryGet(track, key)
}

// TestStart_SkipDuringInitialExport activates the exporter before Start, as
// the engine does, and changes track while the first export reads its fields.
func TestStart_SkipDuringInitialExport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mocks.NewMockDBusClient(ctrl)

	var signals chan<- *dbus.Signal
	mockClient.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().Signal(gomock.Any()).Do(func(ch chan<- *dbus.Signal) { signals = ch })
	mockClient.EXPECT().ListNames().Return([]string{testPlayer}, nil)
	mockClient.EXPECT().GetNameOwner(testPlayer).Return(testSender, nil)
	mockClient.EXPECT().GetProperty(testPlayer, mprisPath, propMetadata).
		Return(dbus.MakeVariant(metadata("/t/1", "First", nil)), nil)
	mockClient.EXPECT().GetProperty(testPlayer, mprisPath, propStatus).
		Return(dbus.MakeVariant("Playing"), nil)
	mockClient.EXPECT().Close().Return(nil)

	h := NewMprisHost(zap.NewNop(), testConfig{player: testPlayer})
	h.dial = func() (DBusClient, error) { return mockClient, nil }

	db := &hookedDatabase{Database: h, hook: func() {
		signals <- propertiesChanged(testSender, map[string]dbus.Variant{
			"Metadata": dbus.MakeVariant(metadata("/t/2", "Second", nil)),
		})
	}}

	const path = "/tmp/nowplaying.xml"
	fs := afero.NewMemMapFs()
	exp := exporter.NewExporter(zap.NewNop(), output.NewFileSinkFs(zap.NewNop(), fs, path))

	if err := exp.Activate(h, db); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(1 * time.Second)
	for exp.Current() != "/t/2" {
		if time.Now().After(deadline) {
			t.Fatalf("Timeout: current track is %q, expected /t/2", exp.Current())
		}
		time.Sleep(5 * time.Millisecond)
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("Output file not written: %v", err)
	}
	if !strings.Contains(string(data), "<title>Second</title>") {
		t.Errorf("Expected the skipped-to track in the output, got:\n%s", data)
	}

	if err := h.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := exp.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if exists, _ := afero.Exists(fs, path); exists {
		t.Error("Output file should be removed on deactivation")
	}
}
