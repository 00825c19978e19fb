// Package main is the entry point for the interpose command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"github.com/dshills/interpose/internal/app"
	"github.com/dshills/interpose/internal/config"
	"github.com/dshills/interpose/internal/inspect"
	"github.com/dshills/interpose/internal/intercept"
	"github.com/dshills/interpose/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "run":
		return runScript(args[1:])
	case "version", "-v", "-version", "--version":
		fmt.Printf("interpose %s (intercept %s)\n", version, intercept.Version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	case "help", "-h", "-help", "--help":
		usage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		usage(os.Stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "interpose - method interception for Lua scripts\n\n")
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  interpose run [options] script.lua\n")
	fmt.Fprintf(w, "  interpose version\n\n")
	fmt.Fprintf(w, "Run 'interpose run -h' for run options.\n")
}

type runOptions struct {
	configPath string
	logLevel   string
	watch      bool
	dump       bool
	inspect    bool
	script     string
}

func parseRunFlags(args []string) (runOptions, error) {
	var opts runOptions

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "interpose.toml", "Path to configuration file")
	fs.StringVar(&opts.configPath, "c", "interpose.toml", "Path to configuration file (shorthand)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.watch, "watch", false, "Rerun the script when it or a prelude file changes")
	fs.BoolVar(&opts.watch, "w", false, "Rerun on change (shorthand)")
	fs.BoolVar(&opts.dump, "dump", false, "Print the bindings as JSON after the script runs")
	fs.BoolVar(&opts.inspect, "inspect", false, "Browse the bindings after the script runs")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: interpose run [options] script.lua\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, errors.New("expected exactly one script")
	}
	opts.script = fs.Arg(0)

	if opts.logLevel != "" && !logging.ValidLevel(opts.logLevel) {
		return opts, fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", opts.logLevel)
	}
	if opts.inspect && !term.IsTerminal(int(os.Stdout.Fd())) {
		return opts, errors.New("-inspect needs a terminal")
	}
	return opts, nil
}

func runScript(args []string) int {
	opts, err := parseRunFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg.ApplyEnv()
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	log := logging.New(cfg.LoggingConfig())
	logging.SetDefault(log)

	application, err := app.New(cfg, app.Options{
		Logger:      log,
		AfterScript: afterScript(opts),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	if err := application.Startup(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.watch {
		err = application.Watch(ctx, opts.script, func(err error) {
			if err != nil {
				log.Error("%v", err)
			}
		})
	} else {
		err = application.RunScript(ctx, opts.script)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// afterScript builds the hook that runs inside each unit once the script is
// done, while its bindings are still registered.
func afterScript(opts runOptions) app.UnitHook {
	if !opts.dump && !opts.inspect {
		return nil
	}
	return func(ctx context.Context, ext *intercept.Extension) error {
		if opts.dump {
			data, err := ext.DumpJSON()
			if err != nil {
				return err
			}
			os.Stdout.Write(pretty.Pretty(data))
		}
		if opts.inspect {
			v, err := inspect.NewTerminal(ext)
			if err != nil {
				return err
			}
			return v.Run(ctx)
		}
		return nil
	}
}
