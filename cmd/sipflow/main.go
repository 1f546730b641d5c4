// sipflow shows SIP call flows captured by ngrep in the terminal.
//
// It spawns the capture tool, groups the captured messages into calls and
// draws the extended flow of a call and its correlated call (X-Call-ID),
// e.g. both legs of a call relayed by a proxy.
//
// With --input the capture text is read from a file saved with
// "ngrep -q -p -t -W byline" instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/ghettovoice/sipflow/calls"
	"github.com/ghettovoice/sipflow/capture"
	"github.com/ghettovoice/sipflow/dns"
	"github.com/ghettovoice/sipflow/internal/config"
	"github.com/ghettovoice/sipflow/internal/log"
	"github.com/ghettovoice/sipflow/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		input      string
		dumpConfig bool
	)

	flagSet := pflag.NewFlagSet("sipflow", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default: ./sipflow.yaml)")
	flagSet.StringVarP(&input, "input", "I", "", "read capture text from this file instead of running the capture tool, - for stdin")
	flagSet.BoolVar(&dumpConfig, "dump-config", false, "print the effective configuration and exit")
	flagSet.StringP("filter", "f", "", "capture filter expression (default: port 5060)")
	flagSet.StringP("device", "d", "", "capture network interface (default: any)")
	flagSet.String("log-file", "", "write logs to this file, logs are discarded otherwise")
	flagSet.String("log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	v := config.New()
	for key, flag := range map[string]string{
		"capture.filter": "filter",
		"capture.device": "device",
		"log.file":       "log-file",
		"log.level":      "log-level",
	} {
		if err := v.BindPFlag(key, flagSet.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return err
	}
	if dumpConfig {
		return cfg.WriteYAML(os.Stdout)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	log.SetDefault(logger)

	for _, w := range cfg.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	return runViewer(cfg, logger, input)
}

func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.Log.File == "" {
		return log.Noop, func() {}, nil
	}
	lvl, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, &log.Options{Level: lvl, Dev: cfg.Log.Dev}), func() { f.Close() }, nil
}

func runViewer(cfg *config.Config, logger *slog.Logger, input string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := calls.NewRegistry(&calls.RegistryOptions{Log: logger})

	topts := &tui.Options{
		Session: cfg.SessionOptions(),
		Title:   cfg.Capture.Filter,
		Log:     logger,
	}
	if cfg.Flow.ResolveHosts {
		topts.Resolver = &dns.Resolver{
			NameServer: cfg.DNS.NameServer,
			Timeout:    cfg.DNS.Timeout,
			Log:        logger,
		}
	}

	var src io.Reader
	progOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	switch input {
	case "":
	case "-":
		// keys come from the terminal while the capture comes from stdin
		src = os.Stdin
		progOpts = append(progOpts, tea.WithInputTTY())
	default:
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("open capture input: %w", err)
		}
		defer f.Close()
		src = f
		topts.Title = input
	}

	model, err := tui.New(reg, topts)
	if err != nil {
		return err
	}
	program := tea.NewProgram(model, progOpts...)

	fwd := tui.NewForwarder(program)
	defer fwd.Close()

	popts := cfg.PipelineOptions()
	popts.Notifier = fwd
	popts.Log = logger
	pipeline, err := capture.NewPipeline(reg, popts)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var err error
		if src != nil {
			err = pipeline.RunReader(ctx, src)
		} else {
			err = pipeline.Run(ctx)
		}
		program.Send(tui.CaptureEndedMsg{Err: err})
	}()

	_, err = program.Run()
	pipeline.Stop()
	<-done
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `sipflow - SIP call flow viewer over ngrep.

Captures SIP traffic with ngrep, groups messages into calls and shows
the flow of a call together with its correlated call (X-Call-ID header).

Configuration is read from sipflow.yaml and SIPFLOW_* environment
variables, flags take precedence.

Usage:
  sipflow [flags]

Examples:
  # Capture on all interfaces, default filter "port 5060"
  sipflow

  # Capture on eth0 with a custom filter
  sipflow -d eth0 -f "port 5060 or port 5080"

  # Replay a saved capture
  sipflow --input capture.txt

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
