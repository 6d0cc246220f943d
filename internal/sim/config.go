package sim

import (
	"fmt"

	"github.com/san-kum/smctune/internal/dynamo"
	"github.com/san-kum/smctune/internal/integrators"
)

// Config is shared by the reference and batch simulators.
type Config struct {
	dynamo.Config `yaml:",inline" mapstructure:",squash"`

	Scheme integrators.Scheme `yaml:"scheme" mapstructure:"scheme"`
	Bounds Bounds             `yaml:"bounds" mapstructure:"bounds"`

	// Workers caps the goroutines of the batch simulator; <= 0 means
	// one per CPU.
	Workers  int `yaml:"workers" mapstructure:"workers"`
	MinChunk int `yaml:"min_chunk" mapstructure:"min_chunk"`
}

func DefaultConfig() Config {
	return Config{
		Config:   dynamo.DefaultConfig(),
		Scheme:   integrators.SchemeRK4,
		Bounds:   DefaultBounds(),
		MinChunk: 4,
	}
}

func (c Config) Validate() error {
	if !(c.Dt > 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInvalidConfig, c.Dt)
	}
	if !(c.Duration > 0) {
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrInvalidConfig, c.Duration)
	}
	if c.Steps() < 1 {
		return fmt.Errorf("%w: duration %g is shorter than one step", dynamo.ErrInvalidConfig, c.Duration)
	}
	if _, err := integrators.NewBatch(c.Scheme); err != nil {
		return fmt.Errorf("%w: %v", dynamo.ErrInvalidConfig, err)
	}
	return nil
}
