package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/internal/filter"
	"github.com/funnyzak/reqtape/internal/forwarder"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/internal/printer"
	"github.com/funnyzak/reqtape/internal/report"
	"github.com/funnyzak/reqtape/internal/server"
)

var recordCmd = &cobra.Command{
	Use:   "record [upstream]",
	Short: "Run the recording proxy in front of an upstream service",
	Example: `  reqtape record http://localhost:3000 --name "checkout flow"
  reqtape record --port 9000 --include-methods GET,POST --exclude-paths "/**/health" http://api.local`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecord,
}

func init() {
	flags := recordCmd.Flags()
	flags.StringP("upstream", "u", "", "Upstream base URL")
	flags.IntP("port", "p", 0, "Listen port")
	flags.StringP("name", "n", "", "Report name")
	flags.StringP("output-dir", "o", "", "Directory the report is written to")
	flags.Int64("max-body-bytes", 0, "Reject request bodies larger than this (0 = unlimited)")
	flags.Bool("rewrite-host", false, "Send the upstream host instead of the client's Host header")
	flags.StringSlice("include-methods", nil, "Only record these methods")
	flags.StringSlice("exclude-methods", nil, "Never record these methods")
	flags.StringSlice("include-paths", nil, "Only record paths matching these globs")
	flags.StringSlice("exclude-paths", nil, "Never record paths matching these globs")

	viper.BindPFlag("record.upstream", flags.Lookup("upstream"))
	viper.BindPFlag("record.port", flags.Lookup("port"))
	viper.BindPFlag("record.name", flags.Lookup("name"))
	viper.BindPFlag("record.output_dir", flags.Lookup("output-dir"))
	viper.BindPFlag("record.max_body_bytes", flags.Lookup("max-body-bytes"))
	viper.BindPFlag("record.rewrite_host", flags.Lookup("rewrite-host"))
	viper.BindPFlag("filter.include_methods", flags.Lookup("include-methods"))
	viper.BindPFlag("filter.exclude_methods", flags.Lookup("exclude-methods"))
	viper.BindPFlag("filter.include_paths", flags.Lookup("include-paths"))
	viper.BindPFlag("filter.exclude_paths", flags.Lookup("exclude-paths"))
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Record.Upstream = args[0]
	}
	if cfg.Record.Name == "" {
		cfg.Record.Name = fmt.Sprintf("reqtape-%d", time.Now().UnixMilli())
	}
	if err := cfg.ValidateRecord(); err != nil {
		return fatal(fmt.Errorf("invalid config: %w", err))
	}
	if err := probeWritable(cfg.Record.OutputDir); err != nil {
		return fatal(err)
	}

	log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)

	paths, err := filter.NewPathPredicate(cfg.Filter.IncludePaths, cfg.Filter.ExcludePaths)
	if err != nil {
		return fatal(fmt.Errorf("invalid path filter: %w", err))
	}
	methods := filter.NewMethodPredicate(cfg.Filter.IncludeMethods, cfg.Filter.ExcludeMethods)

	writer, err := report.NewWriter(report.WriterOptions{
		Name:      cfg.Record.Name,
		OutputDir: cfg.Record.OutputDir,
		BaseURL:   cfg.Record.Upstream,
	})
	if err != nil {
		return fatal(fmt.Errorf("create report: %w", err))
	}

	srv, err := server.New(server.Options{
		Port:         cfg.Record.Port,
		Upstream:     cfg.Record.Upstream,
		MaxBodyBytes: cfg.Record.MaxBodyBytes,
		RewriteHost:  cfg.Record.RewriteHost,
	}, server.Deps{
		Client:   forwarder.NewForwarder(log, forwarderOptions(&cfg.Forward)),
		Recorder: writer,
		Methods:  methods,
		Paths:    paths,
		Printer:  printer.New(cfg.Output.Mode, log, &cfg.Output),
		Logger:   log,
	})
	if err != nil {
		return fatal(err)
	}

	if cfg.Output.Mode == "console" {
		printRecordBanner(cmd.OutOrStdout(), cfg, writer.FinalPath())
	}
	log.Info("ReqTape recording",
		"version", version,
		"port", cfg.Record.Port,
		"upstream", cfg.Record.Upstream,
		"report", writer.FinalPath(),
		"include_methods", cfg.Filter.IncludeMethods,
		"exclude_methods", cfg.Filter.ExcludeMethods,
		"include_paths", cfg.Filter.IncludePaths,
		"exclude_paths", cfg.Filter.ExcludePaths,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fatal(err)
	}
	log.Info("Report saved", "path", writer.FinalPath(), "requests", writer.Count())
	if cfg.Output.Mode == "console" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n📼 %d requests saved to %s\n", writer.Count(), writer.FinalPath())
	}
	return nil
}

// probeWritable makes sure reports can be created in dir
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".reqtape-probe-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("output directory %s: %w", filepath.Clean(dir), err)
	}
	return nil
}

// recordSummary lists the settings shown in the banner
func recordSummary(cfg *config.Config, reportPath string) []string {
	lines := []string{
		fmt.Sprintf("🚀 Listening on:   http://0.0.0.0:%d", cfg.Record.Port),
		fmt.Sprintf("🎯 Upstream:       %s", cfg.Record.Upstream),
		fmt.Sprintf("📼 Report:         %s", reportPath),
		fmt.Sprintf("📊 Log Level:      %s", cfg.Log.Level),
		"",
	}
	lines = append(lines, filterLine("Methods", cfg.Filter.IncludeMethods, cfg.Filter.ExcludeMethods))
	lines = append(lines, filterLine("Paths", cfg.Filter.IncludePaths, cfg.Filter.ExcludePaths))

	lines = append(lines, "")
	if cfg.Log.FileLogging.Enable {
		lines = append(lines, "💾 File Logging:   Enabled")
		lines = append(lines, fmt.Sprintf("   └─ %s (%dMB, %d backups, %d days)",
			cfg.Log.FileLogging.Path,
			cfg.Log.FileLogging.MaxSizeMB,
			cfg.Log.FileLogging.MaxBackups,
			cfg.Log.FileLogging.MaxAgeDays))
	} else {
		lines = append(lines, "💾 File Logging:   Disabled")
	}
	return append(lines, "", "(Press Ctrl+C to stop and save the report)")
}

func filterLine(label string, include, exclude []string) string {
	switch {
	case len(include) == 0 && len(exclude) == 0:
		return fmt.Sprintf("🔎 %-15s all", label+":")
	case len(exclude) == 0:
		return fmt.Sprintf("🔎 %-15s only %v", label+":", include)
	case len(include) == 0:
		return fmt.Sprintf("🔎 %-15s all except %v", label+":", exclude)
	default:
		return fmt.Sprintf("🔎 %-15s %v except %v", label+":", include, exclude)
	}
}
