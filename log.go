package lss

import (
	"io"
	"os"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// NewLogger returns a logfmt logger on stdout tagged with the given name. Debug lines are only
// kept when debug is set.
func NewLogger(name string, debug bool) kitlog.Logger {
	return newLogger(os.Stdout, name, debug)
}

func newLogger(w io.Writer, name string, debug bool) kitlog.Logger {
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	if debug {
		klog = level.NewFilter(klog, level.AllowDebug())
	} else {
		klog = level.NewFilter(klog, level.AllowInfo())
	}
	return kitlog.With(klog, "lss", name)
}
