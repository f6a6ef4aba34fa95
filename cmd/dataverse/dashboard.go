package main

import (
	"log/slog"

	"github.com/vango-dev/dataverse/internal/config"
	"github.com/vango-dev/dataverse/pkg/dataverse"
	"github.com/vango-dev/dataverse/pkg/frame"
	"github.com/vango-dev/dataverse/pkg/inspect"
)

// sampleWindow is the number of samples kept by the dashboard.
const sampleWindow = 10

// dashboard is the graph hosted by the serve command. The process
// configuration is an atom; frame rate and log level are derived from it
// and applied through taps.
type dashboard struct {
	config  *dataverse.Box[config.Config]
	uptime  *dataverse.Box[int]
	samples *dataverse.Array[int]

	fps   *dataverse.Derived[int]
	level *dataverse.Derived[slog.Level]
	sum   *dataverse.Derived[int]
	mean  *dataverse.Derived[float64]
	peak  *dataverse.Derived[int]
}

func newDashboard(cfg config.Config) *dashboard {
	d := &dashboard{
		config:  dataverse.NewBox(cfg).Named("config"),
		uptime:  dataverse.NewBox(0).Named("uptime"),
		samples: dataverse.NewArray[int](nil),
	}

	d.fps = dataverse.Map[config.Config](d.config, func(c config.Config) (int, error) {
		return c.Loop.FPS, nil
	}).Named("config.fps")
	d.level = dataverse.Map[config.Config](d.config, func(c config.Config) (slog.Level, error) {
		return c.SlogLevel(), nil
	}).Named("config.level")

	window := d.samples.Derived()
	d.sum = dataverse.Reduce(window, func(acc, cur int) (int, error) {
		return acc + cur, nil
	}, dataverse.Constant(0)).Named("samples.sum")
	d.peak = dataverse.Reduce(window, func(acc, cur int) (int, error) {
		return max(acc, cur), nil
	}, dataverse.Constant(0)).Named("samples.peak")
	d.mean = dataverse.AutoDerive(func(s *dataverse.Scope) (float64, error) {
		n, err := dataverse.Read[int](s, window.Len())
		if err != nil || n == 0 {
			return 0, err
		}
		sum, err := dataverse.Read[int](s, d.sum)
		if err != nil {
			return 0, err
		}
		return float64(sum) / float64(n), nil
	}).Named("samples.mean")

	return d
}

// bind applies derived configuration to the host. It must run on the loop.
func (d *dashboard) bind(c *dataverse.Context, loop *frame.Loop, level *slog.LevelVar, logger *slog.Logger) []dataverse.Untap {
	return []dataverse.Untap{
		d.fps.Changes(c).Tap(func(fps int) {
			if err := loop.SetFPS(fps); err != nil {
				logger.Warn("ignoring frame rate", "fps", fps, "error", err)
				return
			}
			logger.Info("frame rate changed", "fps", fps)
		}),
		d.level.Changes(c).Tap(func(l slog.Level) {
			level.Set(l)
			logger.Info("log level changed", "level", l)
		}),
	}
}

// watch registers the dashboard values with the inspector.
func (d *dashboard) watch(s *inspect.Server) error {
	if err := inspect.Watch[config.Config](s, "config", d.config); err != nil {
		return err
	}
	if err := inspect.Watch[int](s, "uptime", d.uptime); err != nil {
		return err
	}
	if err := inspect.Watch[[]int](s, "samples", d.samples.Derivation()); err != nil {
		return err
	}
	if err := inspect.Watch[int](s, "samples.sum", d.sum); err != nil {
		return err
	}
	if err := inspect.Watch[int](s, "samples.peak", d.peak); err != nil {
		return err
	}
	return inspect.Watch[float64](s, "samples.mean", d.mean)
}

// sample records one second of uptime and a new sample, keeping the last
// sampleWindow samples. It must run on the loop.
func (d *dashboard) sample(v int) {
	d.uptime.Update(func(n int) int { return n + 1 })
	d.samples.Push(v)
	if over := d.samples.Len() - sampleWindow; over > 0 {
		// Cannot fail: the range is inside the array.
		_, _ = d.samples.Splice(0, over)
	}
}
