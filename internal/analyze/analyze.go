package analyze

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"slidewright/internal/cache"
	"slidewright/internal/config"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/services/llm"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/textutil"
)

const (
	stageName          = "analyze"
	duplicateThreshold = 0.9
	defaultCategory    = "general"
	defaultImportance  = 5
)

// Slide layouts understood by the renderer.
const (
	LayoutTitle   = "title"
	LayoutContent = "content"
	LayoutSection = "section"
)

// Completer is the LLM surface the analyze stage uses.
type Completer interface {
	CompleteJSON(ctx context.Context, req llm.Request) (llm.Completion, error)
	HealthCheck() error
}

// Executor produces the analysis artifact from an extraction.
type Executor struct {
	llm      Completer
	cache    cache.Client
	cacheTTL time.Duration
	defaults Options
	maxInput int
	logger   *slog.Logger
}

// New constructs the analyze executor. cacheClient may be nil.
func New(cfg *config.Config, completer Completer, cacheClient cache.Client, logger *slog.Logger) *Executor {
	return &Executor{
		llm:      completer,
		cache:    cacheClient,
		cacheTTL: cfg.CacheTTL(),
		defaults: DefaultOptions(cfg.Analysis),
		maxInput: cfg.Analysis.MaxInputChars,
		logger:   logging.NewComponentLogger(logger, stageName),
	}
}

// NewCompleter builds the LLM client for the analyze stage. Each
// CompleteJSON call sends exactly one request: the scheduler owns retries,
// so attempts and backoff stay as configured under [pipeline].
func NewCompleter(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Referer:        cfg.LLM.Referer,
		Title:          cfg.LLM.Title,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))
}

// HealthCheck reports whether the LLM client is configured.
func (e *Executor) HealthCheck(context.Context) stage.Health {
	if e.llm == nil {
		return stage.Unhealthy(stageName, "llm client not configured")
	}
	if err := e.llm.HealthCheck(); err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	return stage.Healthy(stageName)
}

// Execute runs the summary, key point and outline prompts.
func (e *Executor) Execute(ctx context.Context, req stage.Request, progress stage.ProgressFunc) (*store.Artifact, error) {
	if req.Document == nil || req.Extraction == nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "load input", "extraction is required", nil)
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

	text := paperText(req.Extraction, e.maxInput)
	key := cacheKey(text, opts)

	analysis, hit := e.lookup(ctx, key, logger)
	if !hit {
		var err error
		analysis, err = e.generate(ctx, req.Extraction, text, opts, progress)
		if err != nil {
			return nil, err
		}
		e.remember(ctx, key, analysis, logger)
	}
	progress.Report(95)

	logger.Info("analysis complete",
		logging.String(logging.FieldEventType, "analyze_complete"),
		logging.String("model", analysis.Model),
		logging.Bool("cached", analysis.Cached),
		logging.Int("key_points", len(analysis.KeyPoints)),
		logging.Int("slides", len(analysis.Outline)),
	)
	return &store.Artifact{
		ID:         req.ArtifactID,
		DocumentID: req.Document.ID,
		TaskID:     req.TaskID,
		Kind:       store.ArtifactAnalysis,
		Analysis:   analysis,
	}, nil
}

func (e *Executor) generate(ctx context.Context, ext *store.Extraction, text string, opts Options, progress stage.ProgressFunc) (*store.Analysis, error) {
	if e.llm == nil {
		return nil, services.Wrap(services.ErrInvalidConfig, stageName, "llm", "llm client not configured", nil)
	}
	progress.Report(10)

	var summary struct {
		Summary string `json:"summary"`
	}
	model, err := e.complete(ctx, "summary", summarySystemPrompt(opts.SummaryStyle), summaryPrompt(text, opts), opts, &summary)
	if err != nil {
		return nil, err
	}
	summary.Summary = strings.TrimSpace(summary.Summary)
	if summary.Summary == "" {
		return nil, services.Wrap(services.ErrExternalService, stageName, "summary", "llm returned an empty summary", nil)
	}
	progress.Report(40)

	var points keyPointsPayload
	if _, err := e.complete(ctx, "key points", baseSystemPrompt, keyPointsPrompt(text, opts), opts, &points); err != nil {
		return nil, err
	}
	keyPoints := normalizeKeyPoints(points.KeyPoints, opts.NumKeyPoints)
	progress.Report(70)

	var outline outlinePayload
	if _, err := e.complete(ctx, "outline", baseSystemPrompt, outlinePrompt(text, summary.Summary, keyPoints, opts), opts, &outline); err != nil {
		return nil, err
	}

	return &store.Analysis{
		Summary:      summary.Summary,
		SummaryStyle: opts.SummaryStyle,
		Language:     opts.Language,
		KeyPoints:    keyPoints,
		Outline:      normalizeOutline(outline.Slides, ext, opts.MaxSlides),
		Model:        model,
	}, nil
}

// complete issues one JSON completion and decodes it into target.
func (e *Executor) complete(ctx context.Context, op, system, user string, opts Options, target any) (string, error) {
	completion, err := e.llm.CompleteJSON(ctx, llm.Request{
		System:      system,
		User:        user,
		Model:       opts.Model,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", err
	}
	if err := llm.DecodeLLMJSON(completion.Content, target); err != nil {
		return "", llm.ParseError(op, completion.Content, err)
	}
	return completion.Model, nil
}

// keyPointsPayload accepts {"key_points": [...]} or a bare array.
type keyPointsPayload struct {
	KeyPoints []store.KeyPoint
}

func (p *keyPointsPayload) UnmarshalJSON(data []byte) error {
	if isArray(data) {
		return json.Unmarshal(data, &p.KeyPoints)
	}
	var wrapper struct {
		KeyPoints []store.KeyPoint `json:"key_points"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	p.KeyPoints = wrapper.KeyPoints
	return nil
}

// outlinePayload accepts {"slides": [...]} or a bare array.
type outlinePayload struct {
	Slides []store.SlideOutline
}

func (p *outlinePayload) UnmarshalJSON(data []byte) error {
	if isArray(data) {
		return json.Unmarshal(data, &p.Slides)
	}
	var wrapper struct {
		Slides []store.SlideOutline `json:"slides"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	p.Slides = wrapper.Slides
	return nil
}

func isArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func normalizeKeyPoints(points []store.KeyPoint, limit int) []store.KeyPoint {
	cleaned := make([]store.KeyPoint, 0, len(points))
	for _, p := range points {
		p.Content = strings.TrimSpace(p.Content)
		if p.Content == "" {
			continue
		}
		p.Category = strings.ToLower(strings.TrimSpace(p.Category))
		if p.Category == "" {
			p.Category = defaultCategory
		}
		switch {
		case p.Importance == 0:
			p.Importance = defaultImportance
		case p.Importance < 1:
			p.Importance = 1
		case p.Importance > 10:
			p.Importance = 10
		}
		p.SourceSection = strings.TrimSpace(p.SourceSection)
		cleaned = append(cleaned, p)
	}

	texts := make([]string, len(cleaned))
	for i, p := range cleaned {
		texts[i] = p.Content
	}
	distinct := make([]store.KeyPoint, 0, len(cleaned))
	for _, idx := range textutil.DistinctIndexes(texts, duplicateThreshold) {
		distinct = append(distinct, cleaned[idx])
	}
	if limit > 0 && len(distinct) > limit {
		distinct = distinct[:limit]
	}
	return distinct
}

// normalizeOutline cleans slide proposals, guarantees a leading title slide,
// and caps the outline at maxSlides.
func normalizeOutline(slides []store.SlideOutline, ext *store.Extraction, maxSlides int) []store.SlideOutline {
	cleaned := make([]store.SlideOutline, 0, len(slides)+1)
	for _, s := range slides {
		s.Title = strings.TrimSpace(s.Title)
		bullets := make([]string, 0, len(s.Bullets))
		for _, bullet := range s.Bullets {
			if bullet = strings.TrimSpace(bullet); bullet != "" {
				bullets = append(bullets, bullet)
			}
		}
		s.Bullets = bullets
		s.Notes = strings.TrimSpace(s.Notes)
		if s.Title == "" && len(s.Bullets) == 0 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(s.Layout)) {
		case LayoutTitle:
			s.Layout = LayoutTitle
		case LayoutSection:
			s.Layout = LayoutSection
		default:
			s.Layout = LayoutContent
		}
		cleaned = append(cleaned, s)
	}

	titleAt := -1
	for i, s := range cleaned {
		if s.Layout == LayoutTitle {
			titleAt = i
			break
		}
	}
	switch {
	case titleAt < 0:
		cleaned = append([]store.SlideOutline{titleSlide(ext)}, cleaned...)
	case titleAt > 0:
		title := cleaned[titleAt]
		cleaned = append(cleaned[:titleAt], cleaned[titleAt+1:]...)
		cleaned = append([]store.SlideOutline{title}, cleaned...)
	}
	if maxSlides > 0 && len(cleaned) > maxSlides {
		cleaned = cleaned[:maxSlides]
	}
	return cleaned
}

func titleSlide(ext *store.Extraction) store.SlideOutline {
	title := strings.TrimSpace(ext.Title)
	if title == "" {
		title = "Untitled Paper"
	}
	subtitle := "Academic Paper Presentation"
	if author := strings.TrimSpace(ext.Metadata.Author); author != "" {
		subtitle = author
	}
	return store.SlideOutline{
		Title:   title,
		Bullets: []string{subtitle},
		Notes:   "Introduction to the paper and its key contributions",
		Layout:  LayoutTitle,
	}
}

func cacheKey(text string, opts Options) string {
	encoded, _ := json.Marshal(opts)
	sum := sha256.New()
	sum.Write([]byte(text))
	sum.Write([]byte{0})
	sum.Write(encoded)
	return cache.Key("analysis", hex.EncodeToString(sum.Sum(nil)))
}

func (e *Executor) lookup(ctx context.Context, key string, logger *slog.Logger) (*store.Analysis, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, err := e.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("analysis cache read failed", logging.Error(err), logging.String(logging.FieldEventType, "cache_error"))
		}
		return nil, false
	}
	var analysis store.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		logger.Warn("analysis cache entry unreadable", logging.Error(err), logging.String(logging.FieldEventType, "cache_error"))
		return nil, false
	}
	analysis.Cached = true
	return &analysis, true
}

func (e *Executor) remember(ctx context.Context, key string, analysis *store.Analysis, logger *slog.Logger) {
	if e.cache == nil {
		return
	}
	data, err := json.Marshal(analysis)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cacheTTL); err != nil {
		logger.Warn("analysis cache write failed", logging.Error(err), logging.String(logging.FieldEventType, "cache_error"))
	}
}
