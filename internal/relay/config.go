package relay

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config for a relay instance. Every field can be set from the environment
// with the SEALBOX_ prefix (e.g. SEALBOX_RETENTION=72h).
type Config struct {
	ListenAddr    string        `split_words:"true" default:":6131"`
	StatusAddr    string        `split_words:"true" default:":8631"` // empty disables the status endpoint
	Retention     time.Duration `default:"168h"`                     // how long queued messages survive
	SweepInterval time.Duration `split_words:"true" default:"1h"`
	MaxQueueLen   int           `split_words:"true" default:"0"` // per-account cap, 0 = unbounded
	Advertise     bool          `default:"false"`                // announce via mDNS on the local network
	Name          string        `default:"sealbox"`              // mDNS instance name
}

// LoadConfig reads configuration from the environment
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process("sealbox", &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects values the relay cannot run with
func (c Config) Validate() error {
	if c.Retention <= 0 {
		return fmt.Errorf("config: retention must be positive, got %s", c.Retention)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("config: sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.MaxQueueLen < 0 {
		return fmt.Errorf("config: max queue len must not be negative, got %d", c.MaxQueueLen)
	}
	return nil
}
