package smtp

import "time"

type Config struct {
	Host             string
	Port             int
	HeloName         string
	ImplicitTls      bool
	AllowInsecureTls bool
	DialTimeout      time.Duration
	CommandTimeout   time.Duration
}

const (
	defaultHeloName       = "localhost"
	defaultDialTimeout    = 10 * time.Second
	defaultCommandTimeout = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HeloName == "" {
		c.HeloName = defaultHeloName
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	return c
}
