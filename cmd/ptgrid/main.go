package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"

	lss "github.com/TjarkHarder/fisher-lss-sub001"
	"github.com/TjarkHarder/fisher-lss-sub001/genz"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	scenario   string
	numCPUs    int
	ultraDebug bool
	metrics    string
)

var rootCmd = &cobra.Command{
	Use:   "ptgrid",
	Short: "Integrate a test kernel over a (z, k, μ) grid",
	Long: `ptgrid reads a TOML scenario, integrates the configured test kernel at every
grid point with the selected routine and streams the results to CSV.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&scenario, "scenario", "", "scenario TOML file (defaults to $"+lss.ConfigEnv+"/conf.toml)")
	rootCmd.Flags().IntVar(&numCPUs, "cpus", -1, "number of CPUs to use (set to 0 for max CPUs)")
	rootCmd.Flags().BoolVar(&ultraDebug, "debug", false, "debug everything (really verbose)")
	rootCmd.Flags().StringVar(&metrics, "metrics", "", "serve prometheus metrics on this address, e.g. :9100")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := lss.NewLogger("ptgrid", ultraDebug)
	if scenario == "" {
		path, err := lss.DefaultScenarioPath()
		if err != nil {
			return err
		}
		scenario = path
	}
	sc, err := lss.LoadScenario(scenario)
	if err != nil {
		return err
	}

	availableCPUs := runtime.NumCPU()
	if numCPUs <= 0 || numCPUs > availableCPUs {
		numCPUs = availableCPUs
	}
	runtime.GOMAXPROCS(numCPUs)
	workers := sc.Workers
	if workers <= 0 || workers > numCPUs {
		workers = numCPUs
	}

	family, err := genz.ParseFamily(sc.Integrand)
	if err != nil {
		return err
	}
	template, err := sc.Integrator()
	if err != nil {
		return err
	}
	template.SetLogger(logger)
	points, err := sc.Grid()
	if err != nil {
		return err
	}
	level.Info(logger).Log("scenario", scenario, "routine", template.Routine(), "integrand", family, "points", len(points), "workers", workers)

	if metrics != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metrics, mux); err != nil {
				level.Warn(logger).Log("subsys", "metrics", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results := make(chan lss.GridResult, 100)
	streamed := make(chan error, 1)
	go func() {
		streamed <- StreamAndSummarize(sc.Export(), results, logger)
	}()
	runErr := lss.RunGrid(ctx, template, points, workers, kernelTask(family, sc), results)
	if err := <-streamed; err != nil {
		return err
	}
	return runErr
}

// kernelTask integrates a Genz function over the scenario box at each point. The sharpness of the
// function follows k, its offset follows μ and a 1/(1+z)² growth factor scales the amplitude.
func kernelTask(family genz.Family, sc *lss.Scenario) lss.GridTask {
	return func(ig *lss.Integrator, bins *lss.Bins, p lss.GridPoint) error {
		dim := ig.Dimension()
		u := (p.Mu + 1) / 2
		if u < 0 || u > 1 {
			return fmt.Errorf("μ=%g outside [-1, 1]", p.Mu)
		}
		fn, err := genz.New(family, genz.Fill(dim, 10*p.K), genz.Fill(dim, u))
		if err != nil {
			return err
		}
		lower, upper := ig.LowerBounds(), ig.UpperBounds()
		volume := 1.0
		for i := range lower {
			volume *= upper[i] - lower[i]
		}
		unit := make([]float64, dim)
		ig.SetParams(p)
		kernel := func(x []float64, params interface{}) float64 {
			pt := params.(lss.GridPoint)
			for i := range x {
				unit[i] = (x[i] - lower[i]) / (upper[i] - lower[i])
			}
			g := 1 / (1 + pt.Z)
			return g * g * fn.Eval(unit) / volume
		}
		if _, err := bins.Memo(family.String(), func() (lss.Result, error) {
			return lss.Integrate(kernel, ig)
		}); err != nil {
			return err
		}
		_, err = bins.Memo("exact", func() (lss.Result, error) {
			g := 1 / (1 + p.Z)
			return lss.Result{Value: g * g * fn.Exact(), Routine: ig.Routine(), Converged: true}, nil
		})
		return err
	}
}

// StreamAndSummarize streams the results to CSV and logs how many points converged.
func StreamAndSummarize(conf lss.ExportConfig, results <-chan lss.GridResult, logger kitlog.Logger) error {
	tee := make(chan lss.GridResult, cap(results))
	done := make(chan error, 1)
	go func() {
		done <- lss.StreamResults(conf, tee)
	}()
	var total, converged, failed int
	for r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Label != "exact":
			total++
			if r.Result.Converged {
				converged++
			}
		}
		tee <- r
	}
	close(tee)
	err := <-done
	level.Info(logger).Log("subsys", "export", "integrals", total, "converged", converged, "failed", failed)
	return err
}
