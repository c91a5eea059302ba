// Package extract implements the extract stage: it validates an uploaded PDF
// with pdfcpu, decodes each page's content stream into text, and derives
// sections, figure captions, references and document metadata.
//
// Content streams are read from the pdfcpu context sequentially and parsed
// concurrently. Section detection recognises numbered headings ("2.1. Data")
// and a fixed set of unnumbered headings such as Abstract and References.
package extract
