// Package render implements the render stage. An analysis outline becomes a
// format-neutral Deck, which is written either as an Office Open XML
// presentation or, through pdfcpu, as a PDF.
//
// Templates come from a built-in set (academic, minimalist, corporate) plus
// an optional YAML catalog in the data directory. The catalog is re-read on
// every render so edits take effect without a restart.
package render
