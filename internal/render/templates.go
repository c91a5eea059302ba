package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"slidewright/internal/services"
)

// Color is an sRGB color written as #RRGGBB in catalogs and API output.
type Color struct {
	R, G, B uint8
}

// RGB constructs a Color.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b} }

// Hex returns the color as RRGGBB without a leading hash.
func (c Color) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// ParseColor accepts "#RRGGBB" or "RRGGBB".
func ParseColor(value string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("color %q: want #RRGGBB", value)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", value, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal("#" + c.Hex())
}

func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseColor(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*c = parsed
	return nil
}

// Palette holds the colors a template applies.
type Palette struct {
	TitleBackground Color `yaml:"title_background" json:"title_background"`
	TitleText       Color `yaml:"title_text" json:"title_text"`
	Background      Color `yaml:"background" json:"background"`
	Text            Color `yaml:"text" json:"text"`
	Accent1         Color `yaml:"accent1" json:"accent1"`
	Accent2         Color `yaml:"accent2" json:"accent2"`
}

// Template describes the look of a deck.
type Template struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description" json:"description"`
	TitleFont   string  `yaml:"title_font" json:"title_font"`
	BodyFont    string  `yaml:"body_font" json:"body_font"`
	TitleSize   int     `yaml:"title_size" json:"title_size"`
	BodySize    int     `yaml:"body_size" json:"body_size"`
	Colors      Palette `yaml:"colors" json:"colors"`
	Builtin     bool    `yaml:"-" json:"builtin"`
}

var white, black = RGB(255, 255, 255), RGB(0, 0, 0)

var builtinTemplates = []Template{
	{
		Name:        "academic",
		Description: "Dark blue title band with Arial type",
		TitleFont:   "Arial",
		BodyFont:    "Arial",
		TitleSize:   36,
		BodySize:    24,
		Colors: Palette{
			TitleBackground: RGB(35, 75, 120),
			TitleText:       white,
			Background:      white,
			Text:            black,
			Accent1:         RGB(0, 112, 192),
			Accent2:         RGB(237, 125, 49),
		},
	},
	{
		Name:        "minimalist",
		Description: "White slides with grey accents and large Calibri type",
		TitleFont:   "Calibri",
		BodyFont:    "Calibri",
		TitleSize:   40,
		BodySize:    28,
		Colors: Palette{
			TitleBackground: white,
			TitleText:       black,
			Background:      white,
			Text:            black,
			Accent1:         RGB(180, 180, 180),
			Accent2:         RGB(100, 100, 100),
		},
	},
	{
		Name:        "corporate",
		Description: "Navy title band with gold accents",
		TitleFont:   "Calibri",
		BodyFont:    "Calibri",
		TitleSize:   36,
		BodySize:    24,
		Colors: Palette{
			TitleBackground: RGB(31, 73, 125),
			TitleText:       white,
			Background:      white,
			Text:            black,
			Accent1:         RGB(0, 112, 192),
			Accent2:         RGB(255, 192, 0),
		},
	},
}

// Catalog is the set of templates available to the render stage.
type Catalog struct {
	templates map[string]Template
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadCatalog returns the built-in templates plus any defined in the YAML
// file at path. A missing file is not an error; entries in the file replace
// built-ins of the same name.
func LoadCatalog(path string) (*Catalog, error) {
	cat := &Catalog{templates: make(map[string]Template, len(builtinTemplates))}
	for _, tpl := range builtinTemplates {
		tpl.Builtin = true
		cat.templates[tpl.Name] = tpl
	}
	if strings.TrimSpace(path) == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cat, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template catalog %s: %w", path, err)
	}
	for i, tpl := range file.Templates {
		tpl.Name = strings.ToLower(strings.TrimSpace(tpl.Name))
		if tpl.Name == "" {
			return nil, fmt.Errorf("template catalog %s: entry %d has no name", path, i+1)
		}
		base := cat.templates["academic"]
		if tpl.TitleFont == "" {
			tpl.TitleFont = base.TitleFont
		}
		if tpl.BodyFont == "" {
			tpl.BodyFont = tpl.TitleFont
		}
		if tpl.TitleSize <= 0 {
			tpl.TitleSize = base.TitleSize
		}
		if tpl.BodySize <= 0 {
			tpl.BodySize = base.BodySize
		}
		cat.templates[tpl.Name] = tpl
	}
	return cat, nil
}

// Lookup returns the named template or a TemplateNotFound error.
func (c *Catalog) Lookup(name string) (Template, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	tpl, ok := c.templates[key]
	if !ok {
		return Template{}, services.Wrap(services.ErrTemplateNotFound, stageName, "lookup template",
			fmt.Sprintf("template %q is not defined (available: %s)", name, strings.Join(c.Names(), ", ")), nil)
	}
	return tpl, nil
}

// Names lists template names alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Templates lists every template, alphabetically by name.
func (c *Catalog) Templates() []Template {
	out := make([]Template, 0, len(c.templates))
	for _, name := range c.Names() {
		out = append(out, c.templates[name])
	}
	return out
}
