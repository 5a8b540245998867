package cache

// Config sizes the node pools. Capacities are fixed for the life of a Cache.
type Config struct {
	BlockCapacity int
	InodeCapacity int
}

// DefaultConfig matches the stock NFFS sizing.
var DefaultConfig = Config{
	BlockCapacity: 64,
	InodeCapacity: 4,
}

type Option func(*Config)

func WithBlockCapacity(n int) Option {
	return func(c *Config) {
		c.BlockCapacity = n
	}
}

func WithInodeCapacity(n int) Option {
	return func(c *Config) {
		c.InodeCapacity = n
	}
}
