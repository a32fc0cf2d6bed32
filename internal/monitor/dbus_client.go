package monitor

import (
	"github.com/godbus/dbus/v5"
)

// DBusClient is the subset of a session bus connection the MPRIS host needs.
//
//go:generate mockgen -destination=mocks/dbus_client_mock.go -package=mocks github.com/genricoloni/nowplaying-xml/internal/monitor DBusClient
type DBusClient interface {
	Close() error

	// AddMatchSignal subscribes the connection to signals matching options
	AddMatchSignal(options ...dbus.MatchOption) error

	// Signal routes received signals to ch
	Signal(ch chan<- *dbus.Signal)

	// ListNames lists every name currently owned on the bus
	ListNames() ([]string, error)

	// GetNameOwner resolves a well-known name such as
	// org.mpris.MediaPlayer2.rhythmbox to its unique name (":1.42")
	GetNameOwner(name string) (string, error)

	// GetProperty reads prop ("<interface>.<name>") from the object at path owned by dest
	GetProperty(dest, path, prop string) (dbus.Variant, error)
}

// sessionClient talks to the real session bus through godbus
type sessionClient struct {
	conn *dbus.Conn
}

// dialSession connects to the user's session bus
func dialSession() (DBusClient, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &sessionClient{conn: conn}, nil
}

func (c *sessionClient) Close() error {
	return c.conn.Close()
}

func (c *sessionClient) AddMatchSignal(options ...dbus.MatchOption) error {
	return c.conn.AddMatchSignal(options...)
}

func (c *sessionClient) Signal(ch chan<- *dbus.Signal) {
	c.conn.Signal(ch)
}

func (c *sessionClient) ListNames() ([]string, error) {
	var names []string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names)
	return names, err
}

func (c *sessionClient) GetNameOwner(name string) (string, error) {
	var owner string
	err := c.conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, name).Store(&owner)
	return owner, err
}

func (c *sessionClient) GetProperty(dest, path, prop string) (dbus.Variant, error) {
	return c.conn.Object(dest, dbus.ObjectPath(path)).GetProperty(prop)
}
