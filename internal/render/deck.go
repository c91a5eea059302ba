package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"slidewright/internal/store"
)

const (
	figuresSlideTitle = "Figures from the Paper"
	maxFiguresOnSlide = 4
	defaultSubtitle   = "Academic Paper Presentation"
)

const (
	layoutTitle   = "title"
	layoutContent = "content"
	layoutSection = "section"
	layoutFigures = "figures"
)

// Slide is one page of a deck, independent of the output format.
type Slide struct {
	Title   string
	Bullets []string
	Notes   string
	Layout  string
	Figures []store.Figure
}

// Deck is the format-neutral presentation handed to a writer.
type Deck struct {
	Title    string
	Author   string
	Template Template
	Notes    bool
	Slides   []Slide
}

// BuildDeck turns an analysis outline into slides, applying the heading
// style and appending a figures slide when requested and available.
func BuildDeck(analysis *store.Analysis, extraction *store.Extraction, tpl Template, opts Options) Deck {
	deck := Deck{Template: tpl, Notes: opts.IncludeNotes}
	if extraction != nil {
		deck.Title = extraction.Title
		deck.Author = extraction.Metadata.Author
	}

	var figures []store.Figure
	if opts.IncludeFigures && extraction != nil {
		figures = extraction.Figures
		if len(figures) > maxFiguresOnSlide {
			figures = figures[:maxFiguresOnSlide]
		}
	}

	limit := opts.MaxSlides
	if limit > 0 && len(figures) > 0 {
		limit--
	}

	styler := headingStyler(opts.Style, analysis.Language)
	for _, outline := range analysis.Outline {
		if opts.MaxSlides > 0 && len(deck.Slides) >= limit {
			break
		}
		slide := Slide{
			Title:  styler(strings.TrimSpace(outline.Title)),
			Layout: normalizeLayout(outline.Layout),
			Notes:  strings.TrimSpace(outline.Notes),
		}
		for _, bullet := range outline.Bullets {
			if bullet = strings.TrimSpace(bullet); bullet != "" {
				slide.Bullets = append(slide.Bullets, bullet)
			}
		}
		if !opts.IncludeNotes {
			slide.Notes = ""
		}
		deck.Slides = append(deck.Slides, slide)
	}

	if len(deck.Slides) == 0 {
		deck.Slides = append(deck.Slides, Slide{Title: styler(fallbackTitle(deck.Title)), Layout: layoutTitle})
	}
	if deck.Title == "" {
		deck.Title = deck.Slides[0].Title
	}
	if first := &deck.Slides[0]; first.Layout == layoutTitle && len(first.Bullets) == 0 {
		subtitle := deck.Author
		if subtitle == "" {
			subtitle = defaultSubtitle
		}
		first.Bullets = []string{subtitle}
	}

	if len(figures) > 0 && (opts.MaxSlides == 0 || limit > 0) {
		deck.Slides = append(deck.Slides, Slide{
			Title:   styler(figuresSlideTitle),
			Layout:  layoutFigures,
			Figures: figures,
		})
	}
	return deck
}

// FigureLabel is the caption text shown for a figure placeholder.
func FigureLabel(fig store.Figure) string {
	label := fig.Name
	if fig.Page > 0 {
		label = fmt.Sprintf("%s (page %d)", label, fig.Page)
	}
	if caption := strings.TrimSpace(fig.Caption); caption != "" {
		label = label + ": " + caption
	}
	return strings.TrimSpace(label)
}

func normalizeLayout(layout string) string {
	switch strings.ToLower(strings.TrimSpace(layout)) {
	case layoutTitle:
		return layoutTitle
	case layoutSection:
		return layoutSection
	default:
		return layoutContent
	}
}

func fallbackTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled Paper"
	}
	return title
}

// headingStyler returns a function applying the style in the given language.
// Casers are not safe for concurrent use, so each deck gets its own.
func headingStyler(style, lang string) func(string) string {
	tag := language.Make(lang)
	switch style {
	case StyleTitleCase:
		caser := cases.Title(tag, cases.NoLower)
		return caser.String
	case StyleUppercase:
		caser := cases.Upper(tag)
		return caser.String
	default:
		return func(s string) string { return s }
	}
}
