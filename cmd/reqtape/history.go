package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past replay runs, or the results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fatal(fmt.Errorf("invalid config: %w", err))
	}

	log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)
	store, err := storage.New(&cfg.Storage, log)
	if err != nil {
		return fatal(fmt.Errorf("open history: %w", err))
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		results, err := store.Results(args[0])
		if err != nil {
			return fatal(err)
		}
		if len(results) == 0 {
			return fatal(fmt.Errorf("no results for run %s", args[0]))
		}
		return writeHistory(out, cfg.Output.Mode, results, printResults)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.ListRuns(limit)
	if err != nil {
		return fatal(err)
	}
	return writeHistory(out, cfg.Output.Mode, runs, printRuns)
}

func writeHistory[T any](out io.Writer, mode string, v T, console func(io.Writer, T)) error {
	switch mode {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		console(out, v)
		return nil
	}
}

func printRuns(out io.Writer, runs []*storage.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No replay runs recorded yet.")
		return
	}
	now := time.Now()
	for _, run := range runs {
		fmt.Fprintf(out, "%s  %-8s  %-16s  %3d passed  %3d failed  %3d overridden  %-8s  %s\n",
			run.ID,
			statusColor(run.Status).Sprint(run.Status),
			humanize.RelTime(run.StartedAt, now, "ago", "from now"),
			run.Passed,
			run.Failed,
			run.Overrides,
			run.Duration().Round(time.Millisecond),
			run.File,
		)
	}
}

func printResults(out io.Writer, results []*storage.Result) {
	pass := color.New(color.FgGreen)
	fail := color.New(color.FgRed, color.Bold)
	for _, res := range results {
		mark := pass.Sprint("✓")
		if !res.Passed {
			mark = fail.Sprint("×")
		}
		fmt.Fprintf(out, "%s #%-3d %-6s %s  %d -> %d\n",
			mark, res.Index, res.Method, res.URL, res.ExpectedStatus, res.ActualStatus)
		if res.Diff != "" {
			for _, line := range strings.Split(strings.TrimRight(res.Diff, "\n"), "\n") {
				fmt.Fprintf(out, "      %s\n", line)
			}
		}
	}
}

func statusColor(status string) *color.Color {
	switch status {
	case storage.StatusPassed:
		return color.New(color.FgGreen)
	case storage.StatusFailed, storage.StatusRejected:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
