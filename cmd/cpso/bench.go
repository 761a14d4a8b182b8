package main

import (
	"context"
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/cpso"
	"github.com/rwcarlsen/cpso/bench"
	"github.com/rwcarlsen/cpso/swarm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type trial struct {
	best  cpso.Point
	neval int
	ok    bool
}

func newBenchCmd() *cobra.Command {
	var (
		trials  int
		jobs    int
		tol     float64
		maxeval int
	)
	cmd := &cobra.Command{
		Use:   "bench [function...]",
		Short: "Run repeated independent trials and report success rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			fns := bench.AllFuncs
			if len(args) > 0 {
				fns = nil
				for _, name := range args {
					fn, err := bench.ByName(name)
					if err != nil {
						return err
					}
					fns = append(fns, fn)
				}
			}

			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path, cmd.Flags())
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			log, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer log.Sync()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSUCCESS\tMEAN EVALS\tBEST COST\tOPTIMUM")
			for _, fn := range fns {
				results, err := runTrials(cmd.Context(), fn, cfg, trials, jobs, tol, maxeval, log)
				if err != nil {
					return err
				}
				nsuccess, neval := 0, 0
				best := results[0].best
				for _, r := range results {
					if r.ok {
						nsuccess++
					}
					neval += r.neval
					if r.best.Dominates(best) {
						best = r.best
					}
				}
				fmt.Fprintf(w, "%v\t%v/%v\t%v\t%v\t%v\n", fn.Name(), nsuccess, trials,
					neval/trials, best.Cost, fn.Optima()[0].Cost)
			}
			return w.Flush()
		},
	}

	addConfigFlags(cmd.Flags())
	cmd.Flags().IntVar(&trials, "trials", 20, "independent runs per function")
	cmd.Flags().IntVar(&jobs, "jobs", runtime.NumCPU(), "runs executed at the same time")
	cmd.Flags().Float64Var(&tol, "tol", 0.01, "relative distance to the optimum counted as success")
	cmd.Flags().IntVar(&maxeval, "maxeval", 50000, "objective evaluation budget per run")
	return cmd
}

// runTrials runs independent swarms over fn, at most jobs at a time, trial
// i seeded with cfg.Seed+i.  Within a trial particles are updated on
// cfg.Workers goroutines.
func runTrials(ctx context.Context, fn bench.Func, cfg swarm.Config, trials, jobs int, tol float64, maxeval int, log *zap.Logger) ([]trial, error) {
	if trials < 1 {
		return nil, errors.Errorf("need at least one trial, got %v", trials)
	}
	low, up := fn.Bounds()
	results := make([]trial, trials)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for i := range results {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c := cfg
			c.Seed = cfg.Seed + uint64(i)
			points, err := bench.Seed(fn, c.Particles, 100*c.Particles, cpso.NewRand(c.Seed).Split())
			if err != nil {
				return err
			}

			it, err := swarm.New(bench.Objective(fn), low, up, append(c.Options(), swarm.InitPoints(points...))...)
			if err != nil {
				return err
			}
			best, _, neval, err := bench.Benchmark(it, fn, tol, maxeval)
			if err != nil {
				return err
			}

			optimum := fn.Optima()[0].Cost
			ok := best.Feasible() && abs(optimum-best.Cost) < max(tol*abs(optimum), 0.001)
			results[i] = trial{best: best, neval: neval, ok: ok}
			log.Debug("trial complete", zap.String("func", fn.Name()), zap.Int("trial", i),
				zap.Bool("success", ok), zap.Int("neval", neval), zap.Float64("cost", best.Cost))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
