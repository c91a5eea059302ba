package analyze

import (
	"fmt"
	"strings"

	"slidewright/internal/config"
	"slidewright/internal/services"
)

// Summary styles accepted by the analyze stage.
const (
	StyleAcademic     = "academic"
	StyleSimple       = "simple"
	StyleBulletPoints = "bullet_points"
)

// Options are the per-request analyze settings. Zero values are filled from
// the [analysis] config section before request options are applied.
type Options struct {
	Model         string   `json:"model,omitempty"`
	Temperature   float64  `json:"temperature"`
	SummaryLength int      `json:"summary_length"`
	SummaryStyle  string   `json:"summary_style"`
	Language      string   `json:"language"`
	FocusAreas    []string `json:"focus_areas,omitempty"`
	NumKeyPoints  int      `json:"num_key_points"`
	MaxSlides     int      `json:"max_slides"`
}

// DefaultOptions returns the configured defaults. An empty model means the
// LLM client's configured model.
func DefaultOptions(cfg config.Analysis) Options {
	return Options{
		Temperature:   cfg.Temperature,
		SummaryLength: cfg.SummaryLength,
		SummaryStyle:  cfg.SummaryStyle,
		Language:      cfg.Language,
		NumKeyPoints:  cfg.KeyPoints,
		MaxSlides:     cfg.MaxSlides,
	}
}

func (o *Options) normalize() {
	o.Model = strings.TrimSpace(o.Model)
	o.SummaryStyle = strings.ToLower(strings.TrimSpace(o.SummaryStyle))
	o.Language = strings.TrimSpace(o.Language)
	focus := o.FocusAreas[:0]
	for _, area := range o.FocusAreas {
		if area = strings.TrimSpace(area); area != "" {
			focus = append(focus, area)
		}
	}
	o.FocusAreas = focus
}

// Validate reports out-of-range options as InvalidConfig.
func (o Options) Validate() error {
	var problem string
	switch {
	case o.Temperature < 0 || o.Temperature > 2:
		problem = fmt.Sprintf("temperature must be between 0 and 2 (got %v)", o.Temperature)
	case o.SummaryLength < 100 || o.SummaryLength > 2000:
		problem = fmt.Sprintf("summary_length must be between 100 and 2000 words (got %d)", o.SummaryLength)
	case o.SummaryStyle != StyleAcademic && o.SummaryStyle != StyleSimple && o.SummaryStyle != StyleBulletPoints:
		problem = fmt.Sprintf("summary_style must be academic, simple or bullet_points (got %q)", o.SummaryStyle)
	case o.Language == "":
		problem = "language is required"
	case o.NumKeyPoints < 1 || o.NumKeyPoints > 20:
		problem = fmt.Sprintf("num_key_points must be between 1 and 20 (got %d)", o.NumKeyPoints)
	case o.MaxSlides < 1 || o.MaxSlides > 50:
		problem = fmt.Sprintf("max_slides must be between 1 and 50 (got %d)", o.MaxSlides)
	default:
		return nil
	}
	return services.Wrap(services.ErrInvalidConfig, stageName, "validate options", problem, nil)
}
