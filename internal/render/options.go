package render

import (
	"fmt"
	"strings"

	"slidewright/internal/config"
	"slidewright/internal/services"
)

// Output formats.
const (
	FormatPPTX = "pptx"
	FormatPDF  = "pdf"
)

// Heading styles applied to slide titles.
const (
	StylePlain     = "plain"
	StyleTitleCase = "title_case"
	StyleUppercase = "uppercase"
)

const maxSlidesLimit = 50

// Options controls one render. Zero values fall back to the configured defaults.
type Options struct {
	Template       string `json:"template"`
	Style          string `json:"style"`
	Format         string `json:"format"`
	IncludeFigures bool   `json:"include_figures"`
	IncludeNotes   bool   `json:"include_notes"`
	MaxSlides      int    `json:"max_slides"`
}

// DefaultOptions derives render options from configuration.
func DefaultOptions(cfg config.Render) Options {
	return Options{
		Template:       cfg.Template,
		Style:          StylePlain,
		Format:         cfg.Format,
		IncludeFigures: cfg.IncludeFigures,
		IncludeNotes:   cfg.IncludeNotes,
	}
}

func (o *Options) normalize() {
	o.Template = strings.ToLower(strings.TrimSpace(o.Template))
	o.Style = strings.ToLower(strings.TrimSpace(o.Style))
	o.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(o.Format), "."))
	if o.Style == "" {
		o.Style = StylePlain
	}
	if o.Format == "" {
		o.Format = FormatPPTX
	}
}

// Validate reports option values the renderer cannot honor. Unknown template
// names are reported by the catalog lookup, not here.
func (o Options) Validate() error {
	var problem string
	switch {
	case o.Template == "":
		problem = "template is required"
	case o.Format != FormatPPTX && o.Format != FormatPDF:
		problem = fmt.Sprintf("format %q is not supported (pptx or pdf)", o.Format)
	case o.Style != StylePlain && o.Style != StyleTitleCase && o.Style != StyleUppercase:
		problem = fmt.Sprintf("style %q is not supported (plain, title_case or uppercase)", o.Style)
	case o.MaxSlides < 0 || o.MaxSlides > maxSlidesLimit:
		problem = fmt.Sprintf("max_slides must be between 0 and %d", maxSlidesLimit)
	default:
		return nil
	}
	return services.Wrap(services.ErrInvalidConfig, stageName, "validate options", problem, nil)
}
