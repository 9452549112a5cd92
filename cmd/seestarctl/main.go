// seestarctl submits one command to a Seestar telescope and waits for it.
//
// It builds the same core as the daemon in-process, waits for the first
// state snapshot, submits the command, blocks until the command resolves
// and prints the result as JSON on stdout. Logs go to stderr.
//
// Exit codes:
//   - 0: the command succeeded (or, for status, the device is connected)
//   - 1: the command failed, timed out or was cancelled, or startup failed
//   - 2: invalid arguments
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/seestar-core/internal/infrastructure/config"
	"github.com/nerrad567/seestar-core/internal/infrastructure/logging"
	"github.com/nerrad567/seestar-core/internal/telescope"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
)

// Version information - set at build time via ldflags
var version = "dev"

// SourceCLI tags intents submitted from the command line.
const SourceCLI = "cli"

const defaultConfigPath = "configs/seestar.yaml"

var (
	// errNotSucceeded is returned when the command resolved without success.
	errNotSucceeded = errors.New("command did not succeed")

	// errDisconnected is returned by status when the device is unreachable.
	errDisconnected = errors.New("device disconnected")
)

// options are the parsed global flags.
type options struct {
	configPath string
	simulate   bool
	verbose    bool
	wait       time.Duration
	epsilon    float64
	deadline   time.Duration
	target     string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	case errors.Is(err, errNotSucceeded), errors.Is(err, errDisconnected):
		// The result on stdout says why.
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, runs one subcommand and writes its JSON result to stdout.
//
// Returns:
//   - error: nil on success; wraps errUsage, errNotSucceeded or
//     errDisconnected for the corresponding exit codes
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("seestarctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)

	var opts options
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file (default $SEESTAR_CONFIG or "+defaultConfigPath+")")
	flags.BoolVar(&opts.simulate, "simulate", false, "use the in-process simulated device")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flags.DurationVar(&opts.wait, "wait", 0, "give up waiting after this long (default: the command's own deadline)")
	flags.Float64Var(&opts.epsilon, "epsilon", 0, "goto/sync positional tolerance (RA hours, Dec degrees)")
	flags.DurationVar(&opts.deadline, "deadline", 0, "override the command's reconciliation deadline")
	flags.StringVar(&opts.target, "target", "", "target name to record with a goto")
	flags.Usage = func() { usage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := flags.Args()
	if len(rest) == 0 {
		usage(stderr, flags)
		return fmt.Errorf("%w: no command given", errUsage)
	}
	verb, verbArgs := rest[0], rest[1:]

	// Arguments are checked before anything touches the network.
	var req command.Request
	if verb != "status" {
		var err error
		if req, err = buildRequest(verb, verbArgs); err != nil {
			return err
		}
		req.Epsilon = opts.epsilon
		req.Timeout = opts.deadline.Seconds()
		req.Target = opts.target
	} else if len(verbArgs) > 0 {
		return fmt.Errorf("%w: status takes no arguments", errUsage)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.simulate {
		cfg.Device.Simulate = true
	}

	logCfg := cfg.Logging
	logCfg.Level = "warn"
	if opts.verbose {
		logCfg.Level = "debug"
	}
	log := logging.NewWithWriter(logCfg, version, stderr)

	core, err := telescope.New(telescope.Options{Config: cfg, Logger: log})
	if err != nil {
		return fmt.Errorf("building telescope core: %w", err)
	}
	defer core.Close()

	if err := core.Start(ctx); err != nil {
		return err
	}

	snapCtx, cancel := context.WithTimeout(ctx, startupTimeout(cfg))
	defer cancel()
	snap, err := core.AwaitSnapshot(snapCtx)
	if err != nil {
		return fmt.Errorf("waiting for device state: %w", err)
	}

	if verb == "status" {
		if err := printJSON(stdout, snap); err != nil {
			return err
		}
		if !snap.Connected {
			return errDisconnected
		}
		return nil
	}

	if !snap.Connected {
		log.Warn("device is not responding; submitting anyway")
	}

	in, err := req.Intent(command.WithSource(SourceCLI))
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	res, err := submit(ctx, core.Coordinator, in, opts.wait)
	if err != nil {
		return err
	}
	if err := printJSON(stdout, res); err != nil {
		return err
	}
	if res.Status != command.StatusSucceeded {
		return fmt.Errorf("%w: %s", errNotSucceeded, res.Status)
	}
	return nil
}

// submit sends in and blocks until it resolves. With a positive wait the
// intent is cancelled if it has not resolved in time.
func submit(ctx context.Context, coord *command.Coordinator, in command.Intent, wait time.Duration) (command.Result, error) {
	h, err := coord.Submit(ctx, in)
	if err != nil {
		return command.Result{}, fmt.Errorf("submitting %s: %w", in.Kind, err)
	}

	waitCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if _, err := h.Wait(waitCtx); err != nil {
		// Interrupted or out of patience: cancel and report the final state.
		h.Cancel()
		<-h.Done()
	}
	return h.Result(), nil
}

// startupTimeout bounds the wait for the first snapshot: enough for the
// first cycle to exhaust its retries.
func startupTimeout(cfg *config.Config) time.Duration {
	return cfg.Poller.CycleTimeout + cfg.Poller.Interval
}

func loadConfig(flagValue string) (*config.Config, error) {
	if flagValue != "" {
		return config.Load(flagValue)
	}
	if path := os.Getenv("SEESTAR_CONFIG"); path != "" {
		return config.Load(path)
	}
	return config.LoadOrDefault(defaultConfigPath)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return nil
}

func usage(w io.Writer, flags *pflag.FlagSet) {
	var b strings.Builder
	b.WriteString("Usage: seestarctl [flags] COMMAND [ARGS]\n\nCommands:\n")
	for _, verb := range subcommandOrder {
		synopsis := ""
		if sc, ok := subcommands[verb]; ok {
			synopsis = sc.args
		}
		fmt.Fprintf(&b, "  %-10s %s\n", verb, synopsis)
	}
	b.WriteString("\nFlags:\n")
	b.WriteString(flags.FlagUsages())
	fmt.Fprint(w, b.String())
}
