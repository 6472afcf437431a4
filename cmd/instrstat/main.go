// Command instrstat prints the number of instructions retired on each CPU at a
// fixed interval and can expose the counters as Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ygrebnov/cpuinstr"
)

type config struct {
	pid      int
	cpus     []int
	interval time.Duration
	rounds   int
	listen   string
	logLevel string
}

func main() {
	var cfg config
	app := kingpin.New("instrstat", "Print retired instructions per CPU.")
	app.Flag("pid", "Count only this process or thread (-1 counts every process).").Default("-1").IntVar(&cfg.pid)
	app.Flag("cpu", "CPU index to track; repeat for several. Defaults to every physical CPU.").IntsVar(&cfg.cpus)
	app.Flag("interval", "Time between two samples.").Default("1s").DurationVar(&cfg.interval)
	app.Flag("rounds", "Stop after this many intervals (0 runs until interrupted).").Default("0").IntVar(&cfg.rounds)
	app.Flag("web.listen-address", "Serve Prometheus metrics on this address, e.g. :9464.").StringVar(&cfg.listen)
	app.Flag("log.level", "Log level.").Default("info").EnumVar(&cfg.logLevel, "debug", "info", "warn", "error")
	kingpin.MustParse(app.Parse(os.Args[1:]))
	if err := cfg.validate(); err != nil {
		app.Fatalf("%v", err)
	}

	logger := newLogger(cfg.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		level.Error(logger).Log("msg", "instrstat failed", "err", err)
		os.Exit(1)
	}
}

func (cfg config) validate() error {
	if cfg.interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", cfg.interval)
	}
	if cfg.rounds < 0 {
		return fmt.Errorf("--rounds must not be negative, got %d", cfg.rounds)
	}
	return nil
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	return level.NewFilter(logger, opt)
}

func run(ctx context.Context, cfg config, logger log.Logger) error {
	opts := []cpuinstr.ReaderOption{cpuinstr.WithPID(cfg.pid), cpuinstr.WithLogger(logger)}
	if len(cfg.cpus) > 0 {
		opts = append(opts, cpuinstr.WithCPUs(cfg.cpus...))
	}
	r, err := cpuinstr.NewReader(opts...)
	if err != nil {
		return err
	}
	src := cpuinstr.NewLockedReader(r)
	defer func() {
		if err := src.Close(); err != nil {
			level.Warn(logger).Log("msg", "failed to release counters", "err", err)
		}
	}()

	if cfg.listen != "" {
		srv := serveMetrics(cfg.listen, src, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var tracker *cpuinstr.Tracker
	prev := make(map[int]int64)
	tracker = cpuinstr.NewTracker(src,
		cpuinstr.WithInterval(cfg.interval),
		cpuinstr.WithTrackerLogger(logger),
		cpuinstr.WithRoundFunc(func(round int) {
			printRound(round, tracker.List(), prev, cfg.interval)
			if cfg.rounds > 0 && round >= cfg.rounds {
				stop()
			}
		}),
	)
	level.Info(logger).Log("msg", "tracking instructions", "cpus", len(src.CPUs()), "pid", cfg.pid, "interval", cfg.interval)
	return tracker.Run(runCtx)
}

func serveMetrics(addr string, src cpuinstr.Source, logger log.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(cpuinstr.NewCollector(src))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			level.Error(logger).Log("msg", "metrics server stopped", "err", err)
		}
	}()
	level.Info(logger).Log("msg", "serving metrics", "addr", addr)
	return srv
}

// printRound prints the delta of the latest interval for every CPU. prev holds
// the observation count each CPU had at the previous round, so CPUs whose read
// failed this round are marked stale.
func printRound(round int, stats []cpuinstr.DeltaStats, prev map[int]int64, interval time.Duration) {
	color.New(color.Bold).Printf("round %d\n", round)
	for _, s := range stats {
		stale := ""
		if s.Observations == prev[s.CPU] {
			stale = " (stale)"
		}
		prev[s.CPU] = s.Observations
		fmt.Printf("\tcpu %-3d %20s instr  %14s  avg %s%s\n",
			s.CPU,
			humanize.Comma(s.Last.Raw()),
			humanize.SIWithDigits(float64(s.Last.DivFloat64(interval.Seconds())), 2, "instr/s"),
			humanize.SIWithDigits(float64(s.PerSecond()), 2, "instr/s"),
			stale,
		)
	}
}
