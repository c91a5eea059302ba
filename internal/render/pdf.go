package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// A4 landscape in points; slides are letterboxed onto it.
const (
	pdfPageWidth  = 842.0
	pdfPageHeight = 595.0
	pointsPerInch = pdfPageWidth / slideWidthIn
	pdfTopMargin  = (pdfPageHeight - 7.5*pointsPerInch) / 2
)

type pdfDocument struct {
	Paper  string             `json:"paper"`
	Origin string             `json:"origin"`
	Pages  map[string]pdfPage `json:"pages"`
}

type pdfPage struct {
	Background string     `json:"bgCol,omitempty"`
	Content    pdfContent `json:"content"`
}

type pdfContent struct {
	Boxes []pdfBox  `json:"box,omitempty"`
	Text  []pdfText `json:"text,omitempty"`
}

type pdfBox struct {
	Position [2]float64 `json:"pos"`
	Width    float64    `json:"width"`
	Height   float64    `json:"height"`
	Fill     string     `json:"fillCol,omitempty"`
}

type pdfFont struct {
	Name  string `json:"name"`
	Size  int    `json:"size"`
	Color string `json:"col"`
}

type pdfText struct {
	Value    string     `json:"value"`
	Position [2]float64 `json:"pos"`
	Width    float64    `json:"width,omitempty"`
	Align    string     `json:"align,omitempty"`
	Font     pdfFont    `json:"font"`
}

// WritePDF renders deck through pdfcpu's JSON page description.
func WritePDF(w io.Writer, deck Deck) error {
	doc := pdfDocument{Paper: "A4L", Origin: "UpperLeft", Pages: make(map[string]pdfPage, len(deck.Slides))}
	for i, slide := range deck.Slides {
		doc.Pages[strconv.Itoa(i+1)] = pdfSlide(slide, deck.Template)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode pdf description: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	if err := api.Create(nil, bytes.NewReader(payload), w, conf); err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	return nil
}

func pdfSlide(slide Slide, tpl Template) pdfPage {
	c := tpl.Colors
	page := pdfPage{Background: "#" + c.Background.Hex()}
	scale := func(size int) int { return max(size*3/4, 8) }
	titleFont := pdfFont{Name: "Helvetica-Bold", Size: scale(tpl.TitleSize), Color: "#" + c.TitleText.Hex()}
	bodyFont := pdfFont{Name: "Helvetica", Size: scale(tpl.BodySize), Color: "#" + c.Text.Hex()}

	switch slide.Layout {
	case layoutTitle, layoutSection:
		page.Background = "#" + c.TitleBackground.Hex()
		page.Content.Text = append(page.Content.Text, pdfText{
			Value: slide.Title, Position: pdfPoint(0.75, 2.6), Width: pdfLen(slideWidthIn - 1.5), Align: "center", Font: titleFont,
		})
		if len(slide.Bullets) > 0 {
			subtitle := bodyFont
			subtitle.Color = titleFont.Color
			page.Content.Text = append(page.Content.Text, pdfText{
				Value: strings.Join(slide.Bullets, "\n"), Position: pdfPoint(0.75, 4.3), Width: pdfLen(slideWidthIn - 1.5), Align: "center", Font: subtitle,
			})
		}
	default:
		page.Content.Boxes = append(page.Content.Boxes,
			pdfBox{Position: pdfPoint(0, 0), Width: pdfPageWidth, Height: pdfLen(1.3), Fill: "#" + c.TitleBackground.Hex()},
			pdfBox{Position: pdfPoint(0, 1.3), Width: pdfPageWidth, Height: pdfLen(0.06), Fill: "#" + c.Accent2.Hex()},
		)
		page.Content.Text = append(page.Content.Text, pdfText{
			Value: slide.Title, Position: pdfPoint(0.5, 0.45), Width: pdfLen(slideWidthIn - 1), Font: titleFont,
		})
		if slide.Layout == layoutFigures {
			for i, at := range figureBoxes(len(slide.Figures)) {
				page.Content.Boxes = append(page.Content.Boxes, pdfBox{
					Position: pdfPoint(at.left, at.top), Width: pdfLen(at.width), Height: pdfLen(at.height), Fill: "#" + c.Accent1.Hex(),
				})
				label := bodyFont
				label.Color = "#" + c.Background.Hex()
				page.Content.Text = append(page.Content.Text, pdfText{
					Value: FigureLabel(slide.Figures[i]), Position: pdfPoint(at.left+0.2, at.top+at.height/2), Width: pdfLen(at.width - 0.4), Align: "center", Font: label,
				})
			}
			break
		}
		lines := make([]string, 0, len(slide.Bullets))
		for _, bullet := range slide.Bullets {
			lines = append(lines, "• "+bullet)
		}
		if len(lines) > 0 {
			page.Content.Text = append(page.Content.Text, pdfText{
				Value: strings.Join(lines, "\n"), Position: pdfPoint(0.75, 1.8), Width: pdfLen(slideWidthIn - 1.5), Font: bodyFont,
			})
		}
	}
	return page
}

func pdfPoint(left, top float64) [2]float64 {
	return [2]float64{left * pointsPerInch, pdfTopMargin + top*pointsPerInch}
}

func pdfLen(inches float64) float64 {
	return inches * pointsPerInch
}
