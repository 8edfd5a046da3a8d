package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/funnyzak/reqtape/internal/forwarder"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/internal/printer"
	"github.com/funnyzak/reqtape/internal/prompt"
	"github.com/funnyzak/reqtape/internal/replay"
	"github.com/funnyzak/reqtape/internal/storage"
)

var replayCmd = &cobra.Command{
	Use:   "replay <report.json>...",
	Short: "Replay recorded reports and compare the responses",
	Example: `  reqtape replay checkout-flow.json
  reqtape replay --base-url http://staging.local --ignore id,updatedAt *.json
  reqtape replay -i checkout-flow.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	flags := replayCmd.Flags()
	flags.String("base-url", "", "Replay against this base URL instead of the recorded one")
	flags.StringSlice("ignore", nil, "Property names ignored at any depth when comparing bodies")
	flags.BoolP("interactive", "i", false, "Ask whether to accept each mismatching response")
	flags.Bool("debug", false, "Write expected.json and actual.json on each failure")
	flags.String("debug-dir", "", "Directory the debug files are written to")

	viper.BindPFlag("replay.base_url", flags.Lookup("base-url"))
	viper.BindPFlag("replay.ignored_properties", flags.Lookup("ignore"))
	viper.BindPFlag("replay.interactive", flags.Lookup("interactive"))
	viper.BindPFlag("replay.debug", flags.Lookup("debug"))
	viper.BindPFlag("replay.debug_dir", flags.Lookup("debug-dir"))
}

func runReplay(cmd *cobra.Command, files []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fatal(fmt.Errorf("invalid config: %w", err))
	}

	log := logger.NewLogger(&cfg.Log, cfg.Output.Mode)

	var store storage.Store
	if cfg.Storage.Enable {
		store, err = storage.New(&cfg.Storage, log)
		if err != nil {
			return fatal(fmt.Errorf("open history: %w", err))
		}
		defer store.Close()
	}

	var confirmer prompt.Confirmer = prompt.Static(prompt.AnswerNo)
	if cfg.Replay.Interactive {
		if !prompt.IsInteractive(os.Stdin) {
			log.Warn("Interactive replay without a terminal, answers are read line by line")
		}
		confirmer = prompt.NewTerminal()
	}

	client := forwarder.NewForwarder(log, forwarderOptions(&cfg.Forward))
	defer client.Close()

	runner := replay.NewRunner(client, replay.Options{
		BaseURL:           cfg.Replay.BaseURL,
		IgnoredProperties: cfg.Replay.IgnoredProperties,
		Interactive:       cfg.Replay.Interactive,
		Debug:             cfg.Replay.Debug,
		DebugDir:          cfg.Replay.DebugDir,
	}, replay.Deps{
		Confirmer: confirmer,
		Printer:   printer.New(cfg.Output.Mode, log, &cfg.Output),
		Store:     store,
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return replayFiles(ctx, runner, files, log)
}

// replayFiles runs each report in turn and returns the error of the worst
// failure. A rejected override or an interrupt stops the remaining files.
func replayFiles(ctx context.Context, runner *replay.Runner, files []string, log logger.Logger) error {
	var (
		worst    int
		worstErr error
		failed   int
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return fatal(err)
		}
		_, err := runner.RunFile(ctx, file)
		if err == nil {
			continue
		}
		failed++
		log.Debug("Report failed", "file", file, "error", err)

		code := exitCode(err)
		if code > worst {
			worst, worstErr = code, err
		}
		if errors.Is(err, replay.ErrOverrideRejected) || ctx.Err() != nil {
			break
		}
	}
	if worstErr == nil {
		return nil
	}
	if failed > 1 {
		worstErr = fmt.Errorf("%d of %d reports failed: %w", failed, len(files), worstErr)
	}
	return &exitError{code: worst, err: worstErr}
}
