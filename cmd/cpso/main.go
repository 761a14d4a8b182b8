// Command cpso runs the constrained particle swarm optimizer against the
// benchmark functions.
package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rwcarlsen/cpso"
	"github.com/rwcarlsen/cpso/bench"
	"github.com/rwcarlsen/cpso/mesh"
	"github.com/rwcarlsen/cpso/swarm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "cpso",
		Short:        "Constrained particle swarm optimization",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().String("config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().BoolP("verbose", "v", false, "log every iteration")

	root.AddCommand(newRunCmd(), newListCmd(), newBenchCmd())
	return root
}

type runFlags struct {
	db          string
	csv         string
	cache       bool
	logEvals    bool
	seedPop     bool
	meshStep    float64
	integer     bool
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <function>",
		Short: "Minimize a benchmark function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := bench.ByName(args[0])
			if err != nil {
				return err
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

			return run(cmd.OutOrStdout(), fn, cfg, f, log)
		},
	}

	addConfigFlags(cmd.Flags())
	cmd.Flags().StringVar(&f.db, "db", "", "record the swarm trace into this sqlite database")
	cmd.Flags().StringVar(&f.csv, "csv", "", "write the final swarm to this csv file")
	cmd.Flags().BoolVar(&f.cache, "cache", false, "memoize objective evaluations")
	cmd.Flags().BoolVar(&f.logEvals, "log-evals", false, "log every objective evaluation (debug level)")
	cmd.Flags().BoolVar(&f.seedPop, "seed-pop", true, "start constrained functions from feasible points")
	cmd.Flags().Float64Var(&f.meshStep, "mesh-step", 0, "evaluate the objective on a grid with this step")
	cmd.Flags().BoolVar(&f.integer, "integer", false, "evaluate the objective at integer positions")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(out io.Writer, fn bench.Func, cfg swarm.Config, f runFlags, log *zap.Logger) error {
	low, up := fn.Bounds()
	b, err := cpso.NewBounds(low, up)
	if err != nil {
		return err
	}

	var obj cpso.Objectiver = bench.Objective(fn)
	var cache *cpso.Cache
	if f.cache {
		cache = cpso.NewCache(obj)
		obj = cache
	}
	if f.logEvals {
		obj = cpso.NewObjectiveLogger(obj, log)
	}

	opts := append(cfg.Options(), swarm.Logger(log))

	if f.seedPop {
		points, err := bench.Seed(fn, cfg.Particles, 100*cfg.Particles, cpso.NewRand(cfg.Seed).Split())
		if err != nil {
			return err
		}
		opts = append(opts, swarm.InitPoints(points...))
	}

	if m := newMesh(f, b); m != nil {
		opts = append(opts, swarm.Mesh(m))
	}

	if f.db != "" {
		db, err := sql.Open("sqlite", f.db)
		if err != nil {
			return errors.Wrap(err, "opening trace database")
		}
		defer db.Close()
		opts = append(opts, swarm.DB(db))
	}

	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, swarm.Observe(swarm.NewMetrics(reg)))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: f.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	it, err := swarm.New(obj, low, up, opts...)
	if err != nil {
		return err
	}
	best, err := it.Run()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%v: %v iterations, %v evaluations\n", fn.Name(), it.Niter(), it.Neval())
	if cache != nil {
		fmt.Fprintf(out, "%v cache hits\n", cache.Hits())
	}
	fmt.Fprintf(out, "optimum: %v\n", fn.Optima()[0])
	if err := best.Info(out); err != nil {
		return err
	}

	if f.csv != "" {
		file, err := os.Create(f.csv)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := swarm.WriteCSV(file, it.Pop...); err != nil {
			return errors.Wrapf(err, "writing %v", f.csv)
		}
		return file.Close()
	}
	return nil
}

// newMesh returns the mesh selected by --mesh-step and --integer, or nil.
// Mesh points never leave b.
func newMesh(f runFlags, b *cpso.Bounds) mesh.Mesh {
	var m mesh.Mesh
	if f.meshStep > 0 {
		m = mesh.NewBounded(&mesh.Infinite{Origin: b.Lower, Step: f.meshStep}, b)
	}
	if f.integer {
		// rounding can step over non-integer bounds
		m = mesh.NewBounded(mesh.Integer{Mesh: m}, b)
	}
	return m
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the benchmark functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDIMS\tLINEAR CONSTRAINTS\tOPTIMUM")
			for _, fn := range bench.AllFuncs {
				low, _ := fn.Bounds()
				_, constr := fn.(bench.Constrained)
				fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", fn.Name(), len(low), constr, fn.Optima()[0].Cost)
			}
			return w.Flush()
		},
	}
}
