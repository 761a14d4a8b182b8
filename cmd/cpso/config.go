package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/cpso/swarm"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "CPSO"

// flagKeys maps command line flags to swarm.Config keys.
var flagKeys = map[string]string{
	"particles":       "particles",
	"maxiter":         "maxiter",
	"cognition":       "cognition",
	"social":          "social",
	"inertia-high":    "inertia_high",
	"inertia-low":     "inertia_low",
	"mutation-decay":  "mutation_decay",
	"mutation-accept": "mutation_accept",
	"seed":            "seed",
	"workers":         "workers",
	"single-bounce":   "single_bounce",
	"vmax":            "vmax",
}

func addConfigFlags(fs *pflag.FlagSet) {
	d := swarm.DefaultConfig()
	fs.Int("particles", d.Particles, "swarm size")
	fs.Int("maxiter", d.MaxIter, "number of iterations")
	fs.Float64("cognition", d.Cognition, "cognitive learning factor")
	fs.Float64("social", d.Social, "social learning factor")
	fs.Float64("inertia-high", d.InertiaHigh, "upper inertia schedule bound")
	fs.Float64("inertia-low", d.InertiaLow, "lower inertia schedule bound")
	fs.Float64("mutation-decay", d.MutationDecay, "mutation probability decay exponent")
	fs.Float64("mutation-accept", d.MutationAccept, "probability of keeping a non-improving mutation")
	fs.Uint64("seed", d.Seed, "random seed")
	fs.Int("workers", d.Workers, "goroutines used to update particles (<2 is sequential)")
	fs.Bool("single-bounce", d.SingleBounce, "reflect particles off the bounds only once")
	fs.Float64("vmax", d.Vmax, "speed limit in every dimension (0 is unlimited)")
}

// loadConfig merges, from lowest to highest precedence, defaults, the
// config file (if path is not empty), CPSO_* environment variables and
// flags that were set explicitly.
func loadConfig(path string, fs *pflag.FlagSet) (swarm.Config, error) {
	v := viper.New()

	d := swarm.DefaultConfig()
	v.SetDefault("particles", d.Particles)
	v.SetDefault("maxiter", d.MaxIter)
	v.SetDefault("cognition", d.Cognition)
	v.SetDefault("social", d.Social)
	v.SetDefault("inertia_high", d.InertiaHigh)
	v.SetDefault("inertia_low", d.InertiaLow)
	v.SetDefault("mutation_decay", d.MutationDecay)
	v.SetDefault("mutation_accept", d.MutationAccept)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("single_bounce", d.SingleBounce)
	v.SetDefault("vmax", d.Vmax)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return swarm.Config{}, errors.Wrapf(err, "reading config %v", path)
		}
	}

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return swarm.Config{}, err
				}
			}
		}
	}

	var cfg swarm.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return swarm.Config{}, errors.Wrap(err, "decoding config")
	}
	return cfg, nil
}
