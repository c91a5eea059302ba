package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"slidewright/internal/api"
	"slidewright/internal/config"
	"slidewright/internal/daemon"
	"slidewright/internal/fileutil"
	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/store"
	"slidewright/internal/textutil"
	"slidewright/internal/workflow"
)

const runPollInterval = 250 * time.Millisecond

type runOptions struct {
	title     string
	output    string
	cleanup   bool
	verbose   bool
	analyze   map[string]any
	render    map[string]any
	pollEvery time.Duration
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{pollEvery: runPollInterval}
	var (
		model        string
		summaryStyle string
		language     string
		template     string
		style        string
		format       string
	)

	cmd := &cobra.Command{
		Use:   "run <file.pdf>",
		Short: "Turn one PDF into a deck without a running daemon",
		Long: `Run extract, analyze and render for a single PDF in this process, then copy
the deck to --output. Refuses to start while a daemon holds the data
directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts.analyze = changedOptions(cmd, map[string]any{
				"model":         model,
				"summary-style": summaryStyle,
				"language":      language,
			}, map[string]string{"model": "model", "summary-style": "summary_style", "language": "language"})
			opts.render = changedOptions(cmd, map[string]any{
				"template": template,
				"style":    style,
				"format":   format,
			}, map[string]string{"template": "template", "style": "style", "format": "format"})

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPipeline(runCtx, cfg, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (defaults to the file name)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Deck destination (defaults to ./<title>.<format>)")
	cmd.Flags().BoolVar(&opts.cleanup, "cleanup", false, "Delete the document and its artifacts after copying the deck")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Show pipeline logs")
	cmd.Flags().StringVar(&model, "model", "", "LLM model override")
	cmd.Flags().StringVar(&summaryStyle, "summary-style", "", "Summary style: academic, simple or bullet_points")
	cmd.Flags().StringVar(&language, "language", "", "Output language code")
	cmd.Flags().StringVar(&template, "template", "", "Template name")
	cmd.Flags().StringVar(&style, "style", "", "Heading style: plain, title_case or uppercase")
	cmd.Flags().StringVar(&format, "format", "", "Deck format: pptx or pdf")
	return cmd
}

// changedOptions keeps the values whose flags were set, keyed by stage
// option name.
func changedOptions(cmd *cobra.Command, values map[string]any, keys map[string]string) map[string]any {
	out := map[string]any{}
	for flag, value := range values {
		if cmd.Flags().Changed(flag) {
			out[keys[flag]] = value
		}
	}
	return out
}

func runPipeline(ctx context.Context, cfg *config.Config, pdfPath string, opts runOptions, out, errOut io.Writer) error {
	lock := flock.New(daemon.LockPath(cfg))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("a slidewright daemon is using this data directory; use `slidewright add` and the stage commands instead")
	}
	defer lock.Unlock() //nolint:errcheck

	logger, err := runLogger(cfg, opts.verbose)
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer rt.scheduler.Stop()

	src, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", pdfPath, err)
	}
	doc, err := rt.store.CreateDocument(ctx, filepath.Base(pdfPath), opts.title, src)
	_ = src.Close()
	if err != nil {
		return err
	}
	fmt.Fprintf(errOut, "document %s: %s\n", doc.ID, doc.Title)

	query := api.NewQueryService(rt.store, rt.ledger)
	configs := map[ledger.Type]map[string]any{
		ledger.TypeAnalyze: opts.analyze,
		ledger.TypeRender:  opts.render,
	}
	for _, taskType := range ledger.Types {
		stageConfig, err := json.Marshal(nonNil(configs[taskType]))
		if err != nil {
			return fmt.Errorf("encode %s options: %w", taskType, err)
		}
		task, err := requestWhenFree(ctx, rt.scheduler, doc.ID, taskType, stageConfig, opts.pollEvery)
		if err != nil {
			return fmt.Errorf("request %s: %w", taskType, err)
		}
		final, err := pollTask(ctx, query, task.ID, opts.pollEvery, errOut)
		if err != nil {
			return err
		}
		if final.Status == string(ledger.StatusFailed) {
			return fmt.Errorf("%s failed (%s): %s", taskType, final.ErrorKind, final.ErrorMessage)
		}
		if err := waitForDocumentIdle(ctx, query, doc.ID, opts.pollEvery); err != nil {
			return err
		}
	}

	result, err := query.GetResult(ctx, doc.ID, store.ArtifactSlides)
	if err != nil {
		return err
	}
	target := opts.output
	if target == "" {
		target = textutil.Slug(doc.Title) + "." + result.Slides.Format
	}
	target = resolveDownloadTarget(target, filepath.Base(result.Slides.Path), doc.ID)
	if err := fileutil.CopyFileVerified(result.Slides.Path, target); err != nil {
		return fmt.Errorf("copy deck: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s (%d slides, %s)\n", target, result.Slides.SlideCount, formatBytes(result.Slides.SizeBytes))

	if opts.cleanup {
		if err := rt.scheduler.DeleteDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}
	return nil
}

// requestWhenFree retries admission while the scheduler is at capacity; the
// slot held by the previous stage is released just after its task settles.
func requestWhenFree(ctx context.Context, sched *workflow.Scheduler, documentID string, taskType ledger.Type, stageConfig json.RawMessage, interval time.Duration) (*ledger.Task, error) {
	for {
		task, err := sched.RequestStage(ctx, documentID, taskType, stageConfig)
		if !errors.Is(err, workflow.ErrCapacityExceeded) {
			return task, err
		}
		if err := sleepContext(ctx, interval); err != nil {
			return nil, err
		}
	}
}

func runLogger(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	if !verbose {
		return logging.NewNop(), nil
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func pollTask(ctx context.Context, query *api.QueryService, taskID string, interval time.Duration, progress io.Writer) (*api.Task, error) {
	lastLine := ""
	for {
		task, err := query.GetTaskStatus(ctx, taskID)
		if err != nil {
			return nil, err
		}
		line := fmt.Sprintf("%s %s %s", task.Type, task.Status, formatProgress(task.Progress))
		if line != lastLine {
			fmt.Fprintln(progress, line)
			lastLine = line
		}
		if task.Status == string(ledger.StatusCompleted) || task.Status == string(ledger.StatusFailed) {
			return task, nil
		}
		if err := sleepContext(ctx, interval); err != nil {
			return nil, err
		}
	}
}

// waitForDocumentIdle waits until the document leaves its in-progress
// status, which the scheduler updates just after the task settles.
func waitForDocumentIdle(ctx context.Context, query *api.QueryService, documentID string, interval time.Duration) error {
	for {
		doc, err := query.GetDocumentStatus(ctx, documentID)
		if err != nil {
			return err
		}
		if !store.DocumentStatus(doc.ProcessingStatus).IsInProgress() {
			return nil
		}
		if err := sleepContext(ctx, interval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
