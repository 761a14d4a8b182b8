package swarm

// Config is a flat, serializable form of the swarm options suitable for
// config files, environment variables and flags.
type Config struct {
	Particles      int     `mapstructure:"particles"`
	MaxIter        int     `mapstructure:"maxiter"`
	Cognition      float64 `mapstructure:"cognition"`
	Social         float64 `mapstructure:"social"`
	InertiaHigh    float64 `mapstructure:"inertia_high"`
	InertiaLow     float64 `mapstructure:"inertia_low"`
	MutationDecay  float64 `mapstructure:"mutation_decay"`
	MutationAccept float64 `mapstructure:"mutation_accept"`
	Seed           uint64  `mapstructure:"seed"`
	Workers        int     `mapstructure:"workers"`
	SingleBounce   bool    `mapstructure:"single_bounce"`
	// Vmax limits particle speed in every dimension.  Zero means no limit.
	Vmax float64 `mapstructure:"vmax"`
}

func DefaultConfig() Config {
	return Config{
		Particles:      DefaultParticles,
		MaxIter:        DefaultMaxIter,
		Cognition:      DefaultCognition,
		Social:         DefaultSocial,
		InertiaHigh:    DefaultInertiaHigh,
		InertiaLow:     DefaultInertiaLow,
		MutationDecay:  DefaultMutationDecay,
		MutationAccept: DefaultAccept,
		Seed:           DefaultSeed,
	}
}

// Options converts c into swarm options.
func (c Config) Options() []Option {
	opts := []Option{
		Particles(c.Particles),
		MaxIter(c.MaxIter),
		LearnFactors(c.Cognition, c.Social),
		Inertia(c.InertiaHigh, c.InertiaLow),
		MutationDecay(c.MutationDecay),
		MutationAccept(c.MutationAccept),
		Seed(c.Seed),
		Parallel(c.Workers),
	}
	if c.SingleBounce {
		opts = append(opts, Bounce(SingleBounce))
	}
	if c.Vmax > 0 {
		opts = append(opts, VmaxAll(c.Vmax))
	}
	return opts
}
