package lss_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	lss "github.com/TjarkHarder/fisher-lss-sub001"
)

func TestBinsMemo(t *testing.T) {
	b := lss.NewBins()
	calls := 0
	compute := func() (lss.Result, error) {
		calls++
		return lss.Result{Value: 42}, nil
	}
	r, err := b.Memo("P_lin", compute)
	require.NoError(t, err)
	require.Equal(t, 42.0, r.Value)
	r, err = b.Memo("P_lin", compute)
	require.NoError(t, err)
	require.Equal(t, 42.0, r.Value)
	require.Equal(t, 1, calls, "second Memo must hit the cache")
	require.Equal(t, 1, b.Hits())
	require.Equal(t, 1, b.Len())

	b.Reset()
	require.Zero(t, b.Len())
	require.Zero(t, b.Hits())
	_, ok := b.Lookup("P_lin")
	require.False(t, ok, "Reset must empty the cache")
}

func TestBinsErrorsAreNotStored(t *testing.T) {
	b := lss.NewBins()
	boom := errors.New("boom")
	_, err := b.Memo("B_tree", func() (lss.Result, error) { return lss.Result{}, boom })
	require.ErrorIs(t, err, boom)
	require.Zero(t, b.Len())
}

func TestBinsLabels(t *testing.T) {
	b := lss.NewBins()
	b.Store("p22", lss.Result{Value: 2})
	b.Store("p13", lss.Result{Value: 1})
	b.Store("p22", lss.Result{Value: 3})
	require.Equal(t, []string{"p13", "p22"}, b.Labels())
	r, ok := b.Lookup("p22")
	require.True(t, ok)
	require.Equal(t, 3.0, r.Value, "Store replaces")
}
