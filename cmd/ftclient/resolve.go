package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/philsphicas/ftclient/internal/config"
	"github.com/philsphicas/ftclient/internal/protocol"
	"github.com/spf13/cobra"
)

// resolveString returns a setting from, in order: the flag if it was set on
// the command line, the environment variable, the config file, and finally
// the flag's default.
func resolveString(cmd *cobra.Command, flag, env, fromFile string) string {
	v, _ := cmd.Flags().GetString(flag)
	if cmd.Flags().Changed(flag) {
		return v
	}
	if e := os.Getenv(env); e != "" {
		return e
	}
	if fromFile != "" {
		return fromFile
	}
	return v
}

func resolveOverwrite(cmd *cobra.Command, cfg *config.Config) (bool, error) {
	if cmd.Flags().Changed("overwrite") {
		v, _ := cmd.Flags().GetBool("overwrite")
		return v, nil
	}
	if e := os.Getenv("FTCLIENT_OVERWRITE"); e != "" {
		v, err := strconv.ParseBool(e)
		if err != nil {
			return false, fmt.Errorf("invalid FTCLIENT_OVERWRITE %q: %w", e, err)
		}
		return v, nil
	}
	if cfg.Overwrite != nil {
		return *cfg.Overwrite, nil
	}
	return false, nil
}

func resolveTimeout(cmd *cobra.Command, cfg *config.Config) (time.Duration, error) {
	v, _ := cmd.Flags().GetDuration("timeout")
	if cmd.Flags().Changed("timeout") {
		if v < 0 {
			return 0, fmt.Errorf("--timeout must be >= 0, got %s", v)
		}
		return v, nil
	}
	if e := os.Getenv("FTCLIENT_TIMEOUT"); e != "" {
		d, err := time.ParseDuration(e)
		if err != nil {
			return 0, fmt.Errorf("invalid FTCLIENT_TIMEOUT %q: %w", e, err)
		}
		return d, nil
	}
	return cfg.Timeout.Std(), nil
}

// resolveCommand builds the session command from the positional arguments
// (host, command port, data port) and the -l/-g flags. Host aliases from
// the config file are expanded first.
func resolveCommand(cmd *cobra.Command, args []string, cfg *config.Config) (protocol.Command, error) {
	list, _ := cmd.Flags().GetBool("list")
	filename, _ := cmd.Flags().GetString("get")
	get := cmd.Flags().Changed("get")

	var op protocol.Operation
	switch {
	case list && get:
		return protocol.Command{}, argError(fmt.Errorf("-l and -g are mutually exclusive"))
	case list:
		op = protocol.ListDirectory
	case get:
		op = protocol.GetFile
	default:
		return protocol.Command{}, argError(fmt.Errorf("one of -l or -g is required"))
	}

	cmdPort, err := parsePort("server port", args[1])
	if err != nil {
		return protocol.Command{}, err
	}
	dataPort, err := parsePort("data port", args[2])
	if err != nil {
		return protocol.Command{}, err
	}

	return protocol.NewCommand(op, cfg.ResolveHost(args[0]), cmdPort, dataPort, filename)
}

func parsePort(name, s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, argError(fmt.Errorf("%s %q is not a number", name, s))
	}
	return p, nil
}

func argError(err error) error {
	return protocol.Errorf(protocol.KindArgument, "parse arguments", err)
}
