package extract

import (
	"regexp"
	"strings"

	"slidewright/internal/store"
)

var captionPattern = regexp.MustCompile(`^\s*(?i:fig(?:ure)?\.?)\s*(\d+)\s*[:.]\s*(.+?)\s*$`)

// DetectCaptions finds "Figure N:" and "Fig. N." caption lines. Each figure
// number is reported once, at its first occurrence.
func DetectCaptions(pages []string) []store.Figure {
	var figures []store.Figure
	seen := map[string]struct{}{}
	for i, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			m := captionPattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := "Figure " + m[1]
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			figures = append(figures, store.Figure{Name: name, Page: i + 1, Caption: m[2]})
		}
	}
	return figures
}

// mergeFigures attaches captions to images on the same page in order and
// appends captions with no matching image.
func mergeFigures(images, captions []store.Figure) []store.Figure {
	byPage := map[int][]int{}
	for idx, img := range images {
		byPage[img.Page] = append(byPage[img.Page], idx)
	}
	merged := append([]store.Figure(nil), images...)
	for _, caption := range captions {
		slots := byPage[caption.Page]
		if len(slots) == 0 {
			merged = append(merged, caption)
			continue
		}
		idx := slots[0]
		byPage[caption.Page] = slots[1:]
		merged[idx].Caption = caption.Caption
		merged[idx].Name = caption.Name
	}
	return merged
}
