package control

// Config is a validated, immutable controller configuration. Obtain one
// from Registry.Build; the zero value is not usable.
type Config struct {
	variant Variant
	gains   []float64
	opts    Options

	// hybrid only
	classical *Config
	adaptive  *Config
}

func (c Config) Variant() Variant {
	return c.variant
}

// Gains returns a copy of the validated gain vector.
func (c Config) Gains() []float64 {
	return append([]float64(nil), c.gains...)
}

// Options returns a copy of the options the config was built with.
func (c Config) Options() Options {
	return c.opts.clone()
}

// Surface returns the sliding surface encoded in the gain vector.
func (c Config) Surface() Surface {
	g := c.gains
	if c.variant == VariantSuperTwisting {
		return Surface{K1: g[2], K2: g[3], Lambda1: g[4], Lambda2: g[5]}
	}
	return Surface{K1: g[0], K2: g[1], Lambda1: g[2], Lambda2: g[3]}
}

// SubConfigs returns the embedded classical and adaptive configs of a
// hybrid config. ok is false for any other variant.
func (c Config) SubConfigs() (classical, adaptive Config, ok bool) {
	if c.classical == nil || c.adaptive == nil {
		return Config{}, Config{}, false
	}
	return *c.classical, *c.adaptive, true
}

func (c Config) gain(i int) float64 {
	return c.gains[i]
}
