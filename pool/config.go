package pool

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML structure a pool's tunables can be loaded from,
// as an alternative to wiring Options by hand. Durations accept Go's
// usual suffixed form ("30s", "5m").
type FileConfig struct {
	URL               string        `yaml:"url"`
	Initial           int           `yaml:"initial"`
	Max               int           `yaml:"max"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	ReaperEnabled     bool          `yaml:"reaper_enabled"`
	SlowOpThreshold   time.Duration `yaml:"slow_op_threshold"`
	CircuitBreaker    struct {
		ConsecutiveFailures int           `yaml:"consecutive_failures"`
		Cooldown            time.Duration `yaml:"cooldown"`
	} `yaml:"circuit_breaker"`
}

// LoadConfigFile reads and parses a pool FileConfig from path.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pool config %s: %w", path, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing pool config %s: %w", path, err)
	}
	return &cfg, nil
}

// Options turns a FileConfig into the Option slice New expects. Zero
// values are treated as "not set" and fall back to New's defaults,
// except for Initial which is only meaningful once a URL exists, so an
// explicit zero is always wired through.
func (c *FileConfig) Options() []Option {
	var opts []Option
	opts = append(opts, WithInitial(c.Initial))
	if c.Max > 0 {
		opts = append(opts, WithMax(c.Max))
	}
	if c.ConnectionTimeout > 0 {
		opts = append(opts, WithConnectionTimeout(c.ConnectionTimeout))
	}
	if c.SweepInterval > 0 {
		opts = append(opts, WithSweepInterval(c.SweepInterval))
	}
	if c.ReaperEnabled {
		opts = append(opts, WithReaperEnabled(true))
	}
	if c.SlowOpThreshold > 0 {
		opts = append(opts, WithSlowOpThreshold(c.SlowOpThreshold))
	}
	if c.CircuitBreaker.ConsecutiveFailures > 0 {
		opts = append(opts, WithCircuitBreaker(c.CircuitBreaker.ConsecutiveFailures, c.CircuitBreaker.Cooldown))
	}
	return opts
}

// NewFromConfigFile loads path and builds a pool for the URL it names.
func NewFromConfigFile(path string) (*ConnectionPool, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return New(cfg.URL, cfg.Options()...)
}
