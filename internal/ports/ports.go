package ports

import "context"

// Record is one key/value response block from the daemon, e.g. a status or
// a song.
type Record = map[string]string

// Transport is the daemon client library surface the player facade drives.
// Implementations are not safe for concurrent use.
type Transport interface {
	Close() error
	Ping() error

	Status() (Record, error)
	CurrentSong() (Record, error)
	Queue() ([]Record, error)
	Stats() (Record, error)
	Find(args ...string) ([]Record, error)
	Search(args ...string) ([]Record, error)
	ListAll() ([]Record, error)

	Play() error
	Stop() error
	TogglePause() error
	Next() error
	Previous() error
	SetVolume(volume int) error
	SetRandom(on bool) error
	SetRepeat(on bool) error
	SetSingle(on bool) error
	SetConsume(on bool) error
}

// Endpoint addresses a daemon.
type Endpoint struct {
	Network  string
	Address  string
	Password string
}

// Dialer opens a Transport.
type Dialer func(ctx context.Context, ep Endpoint) (Transport, error)

// Watcher delivers daemon idle events, one subsystem name per event.
type Watcher interface {
	Events() <-chan string
	Errors() <-chan error
	Close() error
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}

// IDGen returns unique opaque identifiers.
type IDGen interface {
	NewID() string
}
