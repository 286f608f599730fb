package lss_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	lss "github.com/TjarkHarder/fisher-lss-sub001"
)

// GridSuite runs quadratures of k·x^μ over [0, 1] on a small grid.
type GridSuite struct {
	suite.Suite
	ctx      context.Context
	template *lss.Integrator
}

func (s *GridSuite) SetupTest() {
	s.ctx = context.Background()
	s.template = lss.NewIntegrator()
	require.NoError(s.T(), s.template.SetBounds(1, []float64{1}, []float64{0}))
	require.NoError(s.T(), s.template.SetRoutine("cquad"))
	cfg := lss.DefaultQuadratureConfig()
	s.template.SetQuadratureConfig(&cfg)
}

func powerTask(ig *lss.Integrator, bins *lss.Bins, p lss.GridPoint) error {
	if p.Mu < 0 {
		return fmt.Errorf("negative power %g", p.Mu)
	}
	ig.SetParams(p)
	f := func(x []float64, params interface{}) float64 {
		pt := params.(lss.GridPoint)
		v := pt.K
		for i := 0; i < int(pt.Mu); i++ {
			v *= x[0]
		}
		return v
	}
	if _, err := bins.Memo("power", func() (lss.Result, error) { return lss.Integrate(f, ig) }); err != nil {
		return err
	}
	bins.Store("exact", lss.Result{Value: p.K / (p.Mu + 1), Converged: true})
	return nil
}

func collect(out <-chan lss.GridResult) <-chan []lss.GridResult {
	all := make(chan []lss.GridResult, 1)
	go func() {
		var rs []lss.GridResult
		for r := range out {
			rs = append(rs, r)
		}
		all <- rs
	}()
	return all
}

func (s *GridSuite) TestRunGrid() {
	points := lss.NewGrid([]float64{0}, []float64{1, 2, 3}, []float64{0, 1, 2, -1})
	require.Len(s.T(), points, 12)

	out := make(chan lss.GridResult)
	all := collect(out)
	require.NoError(s.T(), lss.RunGrid(s.ctx, s.template, points, 3, powerTask, out))
	results := <-all

	perPoint := map[int][]lss.GridResult{}
	for _, r := range results {
		perPoint[r.Point.Index] = append(perPoint[r.Point.Index], r)
	}
	require.Len(s.T(), perPoint, len(points))
	for _, p := range points {
		rs := perPoint[p.Index]
		if p.Mu < 0 {
			require.Len(s.T(), rs, 1)
			require.Error(s.T(), rs[0].Err, "a failing point reports its error")
			continue
		}
		require.Len(s.T(), rs, 2)
		require.Equal(s.T(), "exact", rs[0].Label, "labels are sorted")
		require.Equal(s.T(), "power", rs[1].Label)
		require.InDelta(s.T(), rs[0].Result.Value, rs[1].Result.Value, 1e-10, "point %s", p)
		require.True(s.T(), rs[1].Result.Converged)
	}
	// The template is never handed to a worker.
	_, ok := s.template.QuadratureConfig()
	require.True(s.T(), ok)
	require.Nil(s.T(), s.template.Params())
}

func (s *GridSuite) TestRunGridCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	points := lss.NewGrid([]float64{0}, lss.LinSpace(1, 2, 1000), []float64{1})
	task := func(ig *lss.Integrator, bins *lss.Bins, p lss.GridPoint) error {
		cancel()
		return powerTask(ig, bins, p)
	}
	out := make(chan lss.GridResult)
	all := collect(out)
	err := lss.RunGrid(ctx, s.template, points, 1, task, out)
	require.True(s.T(), errors.Is(err, context.Canceled), "got %v", err)
	require.Less(s.T(), len(<-all), 2*len(points))
}

func TestGridSuite(t *testing.T) {
	suite.Run(t, new(GridSuite))
}

func TestNewGridOrder(t *testing.T) {
	points := lss.NewGrid([]float64{0, 1}, []float64{0.1, 0.2}, []float64{-1, 1})
	require.Len(t, points, 8)
	for i, p := range points {
		require.Equal(t, i, p.Index)
	}
	require.Equal(t, lss.GridPoint{Index: 5, Z: 1, K: 0.1, Mu: 1}, points[5])
}

func TestSpaces(t *testing.T) {
	require.InDeltaSlice(t, []float64{1, 10, 100}, lss.LogSpace(1, 100, 3), 1e-12)
	require.InDeltaSlice(t, []float64{0, 0.5, 1}, lss.LinSpace(0, 1, 3), 1e-15)
	require.Equal(t, []float64{2}, lss.LinSpace(2, 3, 1))
	require.Nil(t, lss.LogSpace(1, 2, 0))
}
