package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/stage"
	"slidewright/internal/store"
)

const (
	stageName      = "extract"
	pageParseLimit = 4
	headerWindow   = 1024
	pageSeparator  = "\f"
)

// Executor turns an uploaded PDF into an extraction artifact.
type Executor struct {
	logger *slog.Logger
}

// New constructs the extract executor.
func New(logger *slog.Logger) *Executor {
	api.DisableConfigDir()
	return &Executor{logger: logging.NewComponentLogger(logger, stageName)}
}

// HealthCheck reports readiness. Extraction has no external dependencies.
func (e *Executor) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(stageName)
}

// Execute reads the document source, validates it as a PDF and produces the
// text, sections, figures and metadata.
func (e *Executor) Execute(ctx context.Context, req stage.Request, progress stage.ProgressFunc) (*store.Artifact, error) {
	doc := req.Document
	if doc == nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "load document", "document is required", nil)
	}
	logger := logging.WithContext(ctx, e.logger)

	data, err := os.ReadFile(doc.SourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptInput, stageName, "read source", "source file unreadable", err)
	}
	if !looksLikePDF(data) {
		return nil, services.Wrap(services.ErrUnsupportedFormat, stageName, "detect format", "file is not a PDF", nil)
	}
	progress.Report(5)

	pdfCtx, err := openPDF(data)
	if err != nil {
		return nil, err
	}
	progress.Report(20)

	pageCount := pdfCtx.PageCount
	streams := make([][]byte, pageCount)
	var images []store.Figure
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		streams[page-1] = pageContent(pdfCtx, page, logger)
		images = append(images, pageImages(pdfCtx, page, logger)...)
	}
	progress.Report(40)

	pages, err := parsePages(ctx, streams)
	if err != nil {
		return nil, err
	}
	progress.Report(70)

	extraction := buildExtraction(pages, images, metadataFrom(pdfCtx), doc.Title)
	logger.Info("extraction complete",
		logging.String(logging.FieldEventType, "extract_complete"),
		logging.Int("pages", pageCount),
		logging.Int("sections", len(extraction.Sections)),
		logging.Int("figures", len(extraction.Figures)),
	)
	progress.Report(95)

	return &store.Artifact{
		ID:         req.ArtifactID,
		DocumentID: doc.ID,
		TaskID:     req.TaskID,
		Kind:       store.ArtifactExtraction,
		Extraction: extraction,
	}, nil
}

func looksLikePDF(data []byte) bool {
	head := data
	if len(head) > headerWindow {
		head = head[:headerWindow]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

func openPDF(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptInput, stageName, "parse pdf", "pdf structure unreadable", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, services.Wrap(services.ErrCorruptInput, stageName, "validate pdf", "pdf failed validation", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, services.Wrap(services.ErrCorruptInput, stageName, "count pages", "page tree unreadable", err)
	}
	if pdfCtx.PageCount == 0 {
		return nil, services.Wrap(services.ErrCorruptInput, stageName, "count pages", "pdf has no pages", nil)
	}
	return pdfCtx, nil
}

func pageContent(pdfCtx *model.Context, page int, logger *slog.Logger) []byte {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
	if err != nil {
		logging.WarnWithContext(logger, "page content unreadable; skipping", "page_skipped",
			logging.Int("page", page),
			logging.Error(err),
			logging.String(logging.FieldImpact, "text on this page will be missing from the analysis"),
		)
		return nil
	}
	if r == nil {
		return nil
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil
	}
	return content
}

func pageImages(pdfCtx *model.Context, page int, logger *slog.Logger) []store.Figure {
	found, err := pdfcpu.ExtractPageImages(pdfCtx, page, true)
	if err != nil {
		logger.Debug("page images unreadable", logging.Int("page", page), logging.Error(err))
		return nil
	}
	objNrs := make([]int, 0, len(found))
	for nr := range found {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)
	figures := make([]store.Figure, 0, len(objNrs))
	for i, nr := range objNrs {
		img := found[nr]
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("page%d_img%d", page, i+1)
		}
		figures = append(figures, store.Figure{
			Name:   name,
			Page:   page,
			Width:  img.Width,
			Height: img.Height,
			Format: img.FileType,
		})
	}
	return figures
}

// parsePages decodes content streams concurrently and returns page texts in
// page order.
func parsePages(ctx context.Context, streams [][]byte) ([]string, error) {
	pages := make([]string, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageParseLimit)
	for i, stream := range streams {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pages[i] = TextFromContent(stream)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func metadataFrom(pdfCtx *model.Context) store.Metadata {
	return store.Metadata{
		Title:     strings.TrimSpace(pdfCtx.Title),
		Author:    strings.TrimSpace(pdfCtx.Author),
		Subject:   strings.TrimSpace(pdfCtx.Subject),
		Keywords:  strings.TrimSpace(pdfCtx.Keywords),
		PageCount: pdfCtx.PageCount,
	}
}

// buildExtraction assembles the artifact payload from page texts. The title
// comes from document metadata, then the first line of page one, then the
// fallback.
func buildExtraction(pages []string, images []store.Figure, meta store.Metadata, fallbackTitle string) *store.Extraction {
	sections := DetectSections(pages)
	title := meta.Title
	if title == "" {
		title = firstLine(pages)
	}
	if title == "" {
		title = fallbackTitle
	}
	if meta.PageCount == 0 {
		meta.PageCount = len(pages)
	}
	return &store.Extraction{
		Title:      title,
		Text:       strings.Join(pages, pageSeparator),
		Sections:   sections,
		Figures:    mergeFigures(images, DetectCaptions(pages)),
		References: DetectReferences(sections),
		Metadata:   meta,
	}
}

func firstLine(pages []string) string {
	if len(pages) == 0 {
		return ""
	}
	for _, line := range strings.Split(pages[0], "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
