package relay

// DefaultMaxClients applies when the configured limit is not positive.
const DefaultMaxClients = 10

// ChunkSize is the read buffer size. One byte is kept as headroom, so at most
// ChunkSize-1 bytes are relayed per read event.
const ChunkSize = 1024

// Config holds the startup parameters of the relay.
type Config struct {
	// Host - bind address, empty for every IPv4 interface
	Host string
	// Port - listening port
	Port int
	// MaxClients - registry capacity and listen backlog
	MaxClients int
	// Backend - readiness multiplexer: poll, select or epoll
	Backend string
}

func (c Config) withDefaults() Config {
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.Backend == "" {
		c.Backend = BackendPoll
	}
	return c
}
