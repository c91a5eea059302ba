package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/testsupport"
)

func TestTextFromContent(t *testing.T) {
	content := []byte(`BT
/F1 12 Tf
72 700 Td
(1. Introduction) Tj
0 -14 Td
[(Deep) -250 (learning \(DL\)) 120 (is)] TJ
T*
<48656C6C6F> Tj
(ignored) Tz
ET`)
	got := TextFromContent(content)
	want := "1. Introduction\nDeep learning (DL)is\nHello"
	if got != want {
		t.Fatalf("unexpected text:\n%q\nwant\n%q", got, want)
	}
}

func TestTextFromContentEscapes(t *testing.T) {
	got := TextFromContent([]byte(`BT (caf\351 \\ done) Tj ET`))
	if got != "café \\ done" {
		t.Fatalf("unexpected text %q", got)
	}
	utf16 := TextFromContent([]byte(`BT <FEFF00480069> Tj ET`))
	if utf16 != "Hi" {
		t.Fatalf("unexpected utf16 text %q", utf16)
	}
}

func TestDetectSections(t *testing.T) {
	pages := []string{
		"A Study of Things\nJane Doe\nAbstract\nWe study things.\n1. Introduction\nThings matter.\n",
		"1.1. Motivation\nMore things.\n2. Method\nWe did stuff.\nReferences\n1. Smith, J. Things. 2020.\n2. Doe, J. Stuff. 2021.\n",
	}
	sections := DetectSections(pages)
	want := []struct {
		heading string
		level   int
		page    int
	}{
		{"Abstract", 1, 1},
		{"Introduction", 1, 1},
		{"Motivation", 2, 2},
		{"Method", 1, 2},
		{"References", 1, 2},
	}
	if len(sections) != len(want) {
		t.Fatalf("expected %d sections, got %d: %+v", len(want), len(sections), sections)
	}
	for i, w := range want {
		got := sections[i]
		if got.Heading != w.heading || got.Level != w.level || got.StartPage != w.page {
			t.Fatalf("section %d: got %+v want %+v", i, got, w)
		}
	}
	if sections[0].Content != "We study things." {
		t.Fatalf("unexpected abstract content %q", sections[0].Content)
	}

	refs := DetectReferences(sections)
	if len(refs) != 2 || !strings.HasPrefix(refs[1], "2. Doe") {
		t.Fatalf("unexpected references %v", refs)
	}
}

func TestDetectCaptionsAndMerge(t *testing.T) {
	pages := []string{
		"Figure 1: System overview.\nsome text\nFigure 1: System overview.",
		"Fig. 2. Accuracy over time",
	}
	captions := DetectCaptions(pages)
	if len(captions) != 2 {
		t.Fatalf("expected 2 captions, got %+v", captions)
	}
	if captions[1].Name != "Figure 2" || captions[1].Page != 2 || captions[1].Caption != "Accuracy over time" {
		t.Fatalf("unexpected caption %+v", captions[1])
	}

	images := []store.Figure{{Name: "Im1", Page: 1, Width: 640, Height: 480, Format: "png"}}
	merged := mergeFigures(images, captions)
	if len(merged) != 2 {
		t.Fatalf("expected 2 figures, got %+v", merged)
	}
	if merged[0].Caption != "System overview." || merged[0].Width != 640 {
		t.Fatalf("caption not attached to image: %+v", merged[0])
	}
	if merged[1].Name != "Figure 2" || merged[1].Width != 0 {
		t.Fatalf("unexpected caption-only figure %+v", merged[1])
	}
}

func TestBuildExtractionTitleFallback(t *testing.T) {
	pages := []string{"\n  Attention Is Useful  \nAbstract\nShort.", "Conclusion\nDone."}
	ext := buildExtraction(pages, nil, store.Metadata{}, "fallback")
	if ext.Title != "Attention Is Useful" {
		t.Fatalf("unexpected title %q", ext.Title)
	}
	if ext.Metadata.PageCount != 2 {
		t.Fatalf("unexpected page count %d", ext.Metadata.PageCount)
	}
	if !strings.Contains(ext.Text, "\f") {
		t.Fatal("expected page separator in text")
	}

	withMeta := buildExtraction(pages, nil, store.Metadata{Title: "From Info", PageCount: 2}, "fallback")
	if withMeta.Title != "From Info" {
		t.Fatalf("unexpected title %q", withMeta.Title)
	}
	empty := buildExtraction([]string{""}, nil, store.Metadata{}, "fallback")
	if empty.Title != "fallback" {
		t.Fatalf("unexpected title %q", empty.Title)
	}
}

func TestExecuteRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.pdf")
	testsupport.WriteFile(t, path, []byte("this is plain text, not a pdf"))

	exec := New(logging.NewNop())
	req := stage.Request{Document: &store.Document{ID: "doc", SourcePath: path}, TaskID: "task", ArtifactID: "art"}
	_, err := exec.Execute(context.Background(), req, nil)
	if !errors.Is(err, services.ErrUnsupportedFormat) {
		t.Fatalf("expected UnsupportedFormat, got %v", err)
	}
}

func TestExecuteRejectsTruncatedPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.pdf")
	testsupport.WriteFile(t, path, []byte("%PDF-1.4\n%garbage with no objects or trailer"))

	exec := New(logging.NewNop())
	req := stage.Request{Document: &store.Document{ID: "doc", SourcePath: path}, TaskID: "task", ArtifactID: "art"}
	_, err := exec.Execute(context.Background(), req, nil)
	if !errors.Is(err, services.ErrCorruptInput) {
		t.Fatalf("expected CorruptInput, got %v", err)
	}
}

func TestExecuteMissingSource(t *testing.T) {
	exec := New(logging.NewNop())
	req := stage.Request{Document: &store.Document{ID: "doc", SourcePath: filepath.Join(t.TempDir(), "missing.pdf")}}
	_, err := exec.Execute(context.Background(), req, nil)
	if !errors.Is(err, services.ErrCorruptInput) {
		t.Fatalf("expected CorruptInput, got %v", err)
	}
	if !exec.HealthCheck(context.Background()).Ready {
		t.Fatal("expected extract to be healthy")
	}
}
