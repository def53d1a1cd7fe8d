package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/bottle/internal/config"
	"github.com/danmuck/bottle/internal/logging"
	"github.com/danmuck/bottle/internal/observability"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgPath     string
	metricsAddr string
	logLevel    string
	output      string

	cfg     config.Config
	metrics *observability.MetricsServer

	stdin  io.Reader
	stdout io.Writer
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := root.ExecuteContext(ctx)
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if serr := a.metrics.Shutdown(ctx); serr != nil {
			log.Warn().Err(serr).Msg("metrics server shutdown")
		}
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bottlectl",
		Short: "Build, inspect and unwrap bottle streams",
		Long: `bottlectl works with bottles: self-delimiting binary containers of framed
raw streams and nested bottles. Commands read from a file argument or stdin
and write to --output or stdout.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "path to bottlectl.toml (defaults apply when unset)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.StringVar(&a.logLevel, "log-level", "", "override log.level")
	flags.StringVarP(&a.output, "output", "o", "", "write output here instead of stdout")

	root.AddCommand(
		a.frameCmd(),
		a.unframeCmd(),
		a.packCmd(),
		a.extractCmd(),
		a.inspectCmd(),
		a.signCmd(),
		a.verifyCmd(),
		a.compressCmd(),
		a.decompressCmd(),
		a.encryptCmd(),
		a.decryptCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg := config.Default()
	if a.cfgPath != "" {
		loaded, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.logLevel != "" {
		if _, ok := logging.ParseLevel(a.logLevel); !ok {
			return fmt.Errorf("unknown log level %q", a.logLevel)
		}
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	a.cfg = cfg
	logging.Apply(cfg.Log.Logging())

	if cfg.Metrics.Addr != "" {
		srv, err := observability.StartMetrics(cfg.Metrics.Addr, log.Logger.With().Str("app", "bottlectl").Logger())
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		a.metrics = srv
	}
	log.Debug().Str("command", cmd.Name()).Str("config", a.cfgPath).Msg("bottlectl starting")
	return nil
}

// input opens the single optional file argument, or stdin for none or "-".
func (a *app) input(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(a.stdin), nil
	}
	return os.Open(args[0])
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (a *app) out() (io.WriteCloser, error) {
	if a.output == "" || a.output == "-" {
		return nopWriteCloser{a.stdout}, nil
	}
	return os.Create(a.output)
}

// emit opens the output around fn and closes it.
func (a *app) emit(fn func(out io.Writer) error) error {
	out, err := a.out()
	if err != nil {
		return err
	}
	if err := fn(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// pipe opens input and output around fn, closing both.
func (a *app) pipe(args []string, fn func(in io.Reader, out io.Writer) error) error {
	in, err := a.input(args)
	if err != nil {
		return err
	}
	defer in.Close()
	return a.emit(func(out io.Writer) error {
		return fn(in, out)
	})
}
