package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	// Automatically set GOMEMLIMIT based on cgroup memory limits (container
	// or systemd MemoryMax=). If no cgroup limit is detected, GOMEMLIMIT is
	// left at the Go default.
	"github.com/KimMachineGun/automemlimit/memlimit"

	"github.com/philsphicas/ftclient/internal/config"
	"github.com/philsphicas/ftclient/internal/metrics"
	"github.com/philsphicas/ftclient/internal/prompt"
	"github.com/philsphicas/ftclient/internal/protocol"
	"github.com/philsphicas/ftclient/internal/transfer"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var version = "dev"

const usage = "ftclient <host> <command-port> -l <data-port>\n" +
	"       ftclient <host> <command-port> -g <filename> <data-port>"

func init() {
	_, _ = memlimit.SetGoMemLimitWithOpts(memlimit.WithLogger(nil))
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit status. Session
// failures have already been reported by the transfer package; only
// argument and setup errors are printed here.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	kind := protocol.KindOf(err)
	switch kind {
	case 0:
		fmt.Fprintln(stderr, "ERROR:", err)
		kind = protocol.KindArgument
	case protocol.KindArgument:
		fmt.Fprintln(stderr, "ERROR:", err)
		fmt.Fprintln(stderr, "USAGE:", usage)
	}
	return kind.ExitCode()
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ftclient <host> <command-port> (-l | -g <filename>) <data-port>",
		Short: "File transfer client",
		Long: `Connect to a file transfer server on <command-port>, request a directory
listing (-l) or a file (-g), and receive the result on <data-port>, which
the server connects back to.`,
		Example:       "  ftclient flip1 30020 -l 30021\n  ftclient flip1 30020 -g notes.txt 30021",
		Args:          positionalArgs,
		RunE:          runTransfer,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolP("list", "l", false, "list the server's directory")
	cmd.Flags().StringP("get", "g", "", "download `filename` from the server")
	cmd.Flags().String("config", "", "path to YAML config file (default $FTCLIENT_CONFIG)")
	cmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file on exit; disabled if empty")
	cmd.Flags().String("output-dir", "", "directory to store downloaded files (default current directory)")
	cmd.Flags().String("bind", "", "address to bind the data listener to (default all interfaces)")
	cmd.Flags().Bool("overwrite", false, "replace existing local files without asking")
	cmd.Flags().Duration("timeout", 0, "abort the session after this long (0 = wait indefinitely)")

	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func positionalArgs(_ *cobra.Command, args []string) error {
	if len(args) != 3 {
		return protocol.Errorf(protocol.KindArgument, "parse arguments",
			fmt.Errorf("expected <host> <command-port> <data-port>, got %d arguments", len(args)))
	}
	return nil
}

func runTransfer(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	fileCfg, err := config.Discover(afero.NewOsFs(), cfgPath)
	if err != nil {
		return err
	}

	logger := newLogger(resolveString(cmd, "log-level", "FTCLIENT_LOG_LEVEL", fileCfg.LogLevel))

	command, err := resolveCommand(cmd, args, fileCfg)
	if err != nil {
		return err
	}
	overwrite, err := resolveOverwrite(cmd, fileCfg)
	if err != nil {
		return err
	}
	timeout, err := resolveTimeout(cmd, fileCfg)
	if err != nil {
		return err
	}

	metricsFile := resolveString(cmd, "metrics-file", "FTCLIENT_METRICS_FILE", fileCfg.MetricsFile)
	var m *metrics.Metrics
	if metricsFile != "" {
		m = metrics.New()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("starting session",
		"host", command.Host, "command_port", command.CommandPort,
		"data_port", command.DataPort, "op", command.Op.String())

	err = transfer.Run(ctx, transfer.Config{
		Command:   command,
		FS:        transfer.NewOsFS(),
		Confirmer: newConfirmer(cmd, overwrite, logger),
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
		BindHost:  resolveString(cmd, "bind", "FTCLIENT_BIND", fileCfg.Bind),
		OutputDir: resolveString(cmd, "output-dir", "FTCLIENT_OUTPUT_DIR", fileCfg.OutputDir),
		Overwrite: overwrite,
		Logger:    logger,
		Metrics:   m,
	})

	if werr := m.WriteTextfile(metricsFile); werr != nil {
		logger.Warn("failed to write metrics file", "path", metricsFile, "error", werr)
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted")
	}
	return err
}

// newConfirmer asks on the terminal unless overwriting was requested up
// front.
func newConfirmer(cmd *cobra.Command, overwrite bool, logger *slog.Logger) transfer.Confirmer {
	if overwrite {
		return prompt.Always(true)
	}
	return prompt.New(cmd.InOrStdin(), cmd.OutOrStdout(), logger)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
