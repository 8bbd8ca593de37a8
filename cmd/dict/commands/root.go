package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"dictsync/internal/components/telemetry"
	"dictsync/internal/config"
	"dictsync/lib/restyutil"

	"github.com/spf13/cobra"
)

const serviceName = "dict"

type globalFlags struct {
	verbose    bool
	configPath string
	dumpHttp   string
}

// app is what every subcommand runs with, it is built once the global flags are parsed.
type app struct {
	cfg    config.Config
	tel    telemetry.API
	output restyutil.InstrumentOutput
	otel   telemetry.Telemetry
	stdin  *os.File
}

type appKeyType int

var appKey appKeyType

func getApp(ctx context.Context) *app {
	return ctx.Value(appKey).(*app)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "dict",
		Short:         "dict exports youdao wordbooks and syncs maimemo notepads.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			telemetry.InitSlogTo(cmd.ErrOrStderr(), flags.verbose)

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			a := &app{
				cfg:   cfg,
				tel:   telemetry.SlogAPI{},
				stdin: os.Stdin,
			}
			if flags.dumpHttp != "" {
				output, err := restyutil.NewFilesystemOutput(flags.dumpHttp)
				if err != nil {
					return fmt.Errorf("create http dump directory: %w", err)
				}
				a.output = output
			}
			if cfg.Telemetry.Enabled() {
				a.otel, err = telemetry.Setup(cmd.Context(), serviceName, cfg.Telemetry)
				if err != nil {
					a.tel.ReportWarning("telemetry.setup", err)
				}
				onExit(cmd.Context(), func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					err := a.otel.Shutdown(ctx)
					if err != nil {
						a.tel.ReportWarning("telemetry.shutdown", err)
					}
				})
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Print debug logs.")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath(), "The configuration file (.yml, .yaml, .json or .json5).")
	rootCmd.PersistentFlags().StringVar(&flags.dumpHttp, "dump-http", "", "Write every HTTP request and response into this directory.")

	rootCmd.AddCommand(newYoudaoCmd())
	rootCmd.AddCommand(newMaimemoCmd())
	return rootCmd
}

// ExecuteContext runs the CLI with os.Args and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	return run(ctx, newRootCmd(), os.Args[1:], os.Stdout, os.Stderr)
}

// exitHooks run once the command returned, whether it failed or not.
type exitHooks struct {
	hooks []func()
}

type exitKeyType int

var exitKey exitKeyType

// onExit registers fn to run when the command returns, it is a no-op outside of run.
func onExit(ctx context.Context, fn func()) {
	h, ok := ctx.Value(exitKey).(*exitHooks)
	if ok {
		h.hooks = append(h.hooks, fn)
	}
}

func (h *exitHooks) run() {
	for i := len(h.hooks) - 1; i >= 0; i-- {
		h.hooks[i]()
	}
}

func run(ctx context.Context, rootCmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	hooks := &exitHooks{}
	defer hooks.run()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(context.WithValue(ctx, exitKey, hooks))
	if err != nil {
		fmt.Fprintln(stderr, describe(err))
		return 1
	}
	return 0
}
