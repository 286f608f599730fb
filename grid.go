package lss

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// StatusEvery is the period of the progress line logged by RunGrid.
var StatusEvery = 10 * time.Second

// GridPoint is one (z, k, μ) point of the output grid.
type GridPoint struct {
	Index int
	Z     float64
	K     float64
	Mu    float64
}

func (p GridPoint) String() string {
	return fmt.Sprintf("#%d z=%g k=%g μ=%g", p.Index, p.Z, p.K, p.Mu)
}

// NewGrid returns the cartesian product of the axes, z outermost and μ innermost.
func NewGrid(zs, ks, mus []float64) []GridPoint {
	points := make([]GridPoint, 0, len(zs)*len(ks)*len(mus))
	for _, z := range zs {
		for _, k := range ks {
			for _, mu := range mus {
				points = append(points, GridPoint{Index: len(points), Z: z, K: k, Mu: mu})
			}
		}
	}
	return points
}

// LogSpace returns n logarithmically spaced values from lo to hi, both included.
func LogSpace(lo, hi float64, n int) []float64 {
	return span(lo, hi, n, floats.LogSpan)
}

// LinSpace returns n evenly spaced values from lo to hi, both included.
func LinSpace(lo, hi float64, n int) []float64 {
	return span(lo, hi, n, floats.Span)
}

func span(lo, hi float64, n int, fill func([]float64, float64, float64) []float64) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	}
	return fill(make([]float64, n), lo, hi)
}

// GridTask computes everything needed at one grid point. It stores its results in bins under
// their labels; ig is the worker's own Integrator and may be reconfigured freely.
type GridTask func(ig *Integrator, bins *Bins, p GridPoint) error

// GridResult is one labelled result of a grid point, or the error of that point.
type GridResult struct {
	Point  GridPoint
	Label  string
	Result Result
	Err    error
}

// RunGrid runs task on every point with the given number of workers (all CPUs when workers < 1).
// Each worker owns a Copy of template and a Bins reset before every point. The results of a point
// are sent on out sorted by label; a failing point sends a single GridResult carrying the error
// and the run goes on. RunGrid closes out when it returns and only fails when ctx is done.
func RunGrid(ctx context.Context, template *Integrator, points []GridPoint, workers int, task GridTask, out chan<- GridResult) error {
	defer close(out)
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	logger := kitlog.NewNopLogger()
	if template.logger != nil {
		logger = template.logger
	}
	logger = kitlog.With(logger, "subsys", "grid")

	var done, failed int64
	total := len(points)
	status := func() {
		level.Info(logger).Log("done", atomic.LoadInt64(&done), "total", total, "failed", atomic.LoadInt64(&failed))
	}
	status()
	ticker := time.NewTicker(StatusEvery)
	defer ticker.Stop()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-ticker.C:
				status()
			case <-stop:
				return
			}
		}
	}()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan GridPoint)
	g.Go(func() error {
		defer close(jobs)
		for _, p := range points {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ig := template.Copy()
			bins := NewBins()
			for p := range jobs {
				bins.Reset()
				var results []GridResult
				if err := task(ig, bins, p); err != nil {
					atomic.AddInt64(&failed, 1)
					level.Warn(logger).Log("point", p, "err", err)
					results = []GridResult{{Point: p, Err: err}}
				} else {
					for _, label := range bins.Labels() {
						r, _ := bins.Lookup(label)
						results = append(results, GridResult{Point: p, Label: label, Result: r})
					}
				}
				for _, r := range results {
					select {
					case out <- r:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				atomic.AddInt64(&done, 1)
			}
			return nil
		})
	}
	err := g.Wait()
	status()
	level.Info(logger).Log("status", "finished", "duration", time.Since(start), "workers", workers)
	return err
}
