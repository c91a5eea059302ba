package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"slidewright/internal/config"
	"slidewright/internal/fileutil"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/stage"
	"slidewright/internal/store"
)

const stageName = "render"

// Executor turns an analysis into a slide deck file.
type Executor struct {
	outputDir     string
	templatesPath string
	defaults      Options
	logger        *slog.Logger
	now           func() time.Time
}

// New constructs the render executor.
func New(cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{
		outputDir:     cfg.Paths.OutputDir,
		templatesPath: cfg.TemplatesPath(),
		defaults:      DefaultOptions(cfg.Render),
		logger:        logging.NewComponentLogger(logger, stageName),
		now:           time.Now,
	}
}

// Catalog loads the current template catalog.
func (e *Executor) Catalog() (*Catalog, error) {
	return LoadCatalog(e.templatesPath)
}

// HealthCheck verifies the template catalog parses and the output directory
// can be created.
func (e *Executor) HealthCheck(context.Context) stage.Health {
	if _, err := e.Catalog(); err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return stage.Unhealthy(stageName, fmt.Sprintf("output directory: %v", err))
	}
	return stage.Healthy(stageName)
}

// Execute renders the deck and records where it was written.
func (e *Executor) Execute(ctx context.Context, req stage.Request, progress stage.ProgressFunc) (*store.Artifact, error) {
	if req.Document == nil || req.Analysis == nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "load input", "analysis is required", nil)
	}
	logger := logging.WithContext(ctx, e.logger)

	opts := e.defaults
	if err := stage.DecodeConfig(stageName, req.Config, &opts); err != nil {
		return nil, err
	}
	opts.normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	catalog, err := e.Catalog()
	if err != nil {
		return nil, services.Wrap(services.ErrInvalidConfig, stageName, "load templates", "template catalog is invalid", err)
	}
	tpl, err := catalog.Lookup(opts.Template)
	if err != nil {
		return nil, err
	}
	progress.Report(10)

	deck := BuildDeck(req.Analysis, req.Extraction, tpl, opts)
	if deck.Title == "" {
		deck.Title = req.Document.Title
	}
	progress.Report(30)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(e.outputDir, req.Document.ID, req.ArtifactID+"."+opts.Format)
	size, err := e.write(path, deck, opts.Format)
	if err != nil {
		return nil, services.Wrap(services.ErrRender, stageName, "write deck", "could not write "+opts.Format+" output", err)
	}
	progress.Report(95)

	logger.Info("deck rendered",
		logging.String(logging.FieldEventType, "render_complete"),
		logging.String("template", tpl.Name),
		logging.String("format", opts.Format),
		logging.Int("slides", len(deck.Slides)),
		logging.String("size", humanize.Bytes(uint64(size))),
		logging.String("path", path),
	)
	return &store.Artifact{
		ID:         req.ArtifactID,
		DocumentID: req.Document.ID,
		TaskID:     req.TaskID,
		Kind:       store.ArtifactSlides,
		Slides: &store.Slides{
			Template:   tpl.Name,
			Style:      opts.Style,
			Format:     opts.Format,
			Path:       path,
			SlideCount: len(deck.Slides),
			SizeBytes:  size,
		},
	}, nil
}

// write renders the deck through an atomic file write, so a partially
// written deck is never visible at path.
func (e *Executor) write(path string, deck Deck, format string) (int64, error) {
	size, err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		if format == FormatPDF {
			return WritePDF(w, deck)
		}
		return WritePPTX(w, deck, e.now())
	})
	if err != nil {
		return 0, fmt.Errorf("write deck: %w", err)
	}
	return size, nil
}
