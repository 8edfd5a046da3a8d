package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/internal/forwarder"
	"github.com/funnyzak/reqtape/internal/replay"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Process exit codes
const (
	exitOK       = 0
	exitMismatch = 1
	exitFatal    = 2
)

// exitError carries the process exit code of a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "reqtape",
	Short: "Record HTTP traffic through a proxy and replay it as regression tests",
	Long: `ReqTape sits between a client and an HTTP service, records every exchange
into a JSON report and later replays the report against the service, diffing
each response with the recorded one.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   showVersion,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().Bool("log-file-enable", false, "Enable file logging")
	rootCmd.PersistentFlags().String("log-file-path", "", "Log file path")
	rootCmd.PersistentFlags().StringP("output", "O", "", "Output mode (console, json, yaml)")
	rootCmd.PersistentFlags().Bool("silence", false, "Only print failures and summaries")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print full requests while recording")
	rootCmd.PersistentFlags().Int("timeout", 0, "Upstream request timeout in seconds (0 = none)")
	rootCmd.PersistentFlags().Bool("insecure", false, "Skip TLS certificate verification for upstream calls")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.file_logging.enable", rootCmd.PersistentFlags().Lookup("log-file-enable"))
	viper.BindPFlag("log.file_logging.path", rootCmd.PersistentFlags().Lookup("log-file-path"))
	viper.BindPFlag("output.mode", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("output.silence", rootCmd.PersistentFlags().Lookup("silence"))
	viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("forward.timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("forward.tls_insecure_skip_verify", rootCmd.PersistentFlags().Lookup("insecure"))

	rootCmd.AddCommand(recordCmd, replayCmd, historyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func showVersion(cmd *cobra.Command, args []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "ReqTape version %s\n", version)
	fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", commit)
	fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", buildDate)
}

// loadConfig reads the file given by --config, the environment and the
// bound flags into one Config
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath, viper.GetViper())
	if err != nil {
		return nil, fatal(fmt.Errorf("failed to load config: %w", err))
	}
	return cfg, nil
}

func forwarderOptions(cfg *config.ForwardConfig) forwarder.Options {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return forwarder.Options{
		Timeout:               seconds(cfg.Timeout),
		MaxConcurrent:         cfg.MaxConcurrent,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       seconds(cfg.IdleConnTimeout),
		ResponseHeaderTimeout: seconds(cfg.ResponseHeaderTimeout),
		TLSHandshakeTimeout:   seconds(cfg.TLSHandshakeTimeout),
		ExpectContinueTimeout: seconds(cfg.ExpectContinueTimeout),
		TLSInsecureSkipVerify: cfg.TLSInsecureSkipVerify,
	}
}

func fatal(err error) error {
	return &exitError{code: exitFatal, err: err}
}

// exitCode maps an error to the process exit code. Mismatches and rejected
// overrides exit with 1; everything else that fails exits with 2.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var assertion *replay.AssertionError
	if errors.Is(err, replay.ErrOverrideRejected) || errors.As(err, &assertion) {
		return exitMismatch
	}
	return exitFatal
}
