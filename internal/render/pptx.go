package render

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	emuPerInch  = 914400
	slideWidth  = 12192000 // 13.333in
	slideHeight = 6858000  // 7.5in
	notesWidth  = 6858000
	notesHeight = 9144000
)

const (
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	relDoc          = nsR + "/officeDocument"
	relExtended     = nsR + "/extended-properties"
	relCore         = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relSlide        = nsR + "/slide"
	relSlideLayout  = nsR + "/slideLayout"
	relSlideMaster  = nsR + "/slideMaster"
	relTheme        = nsR + "/theme"
	relNotesSlide   = nsR + "/notesSlide"
	relNotesMaster  = nsR + "/notesMaster"
	ctPresentation  = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	ctSlide         = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"
	ctSlideLayout   = "application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"
	ctSlideMaster   = "application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"
	ctNotesSlide    = "application/vnd.openxmlformats-officedocument.presentationml.notesSlide+xml"
	ctNotesMaster   = "application/vnd.openxmlformats-officedocument.presentationml.notesMaster+xml"
	ctTheme         = "application/vnd.openxmlformats-officedocument.theme+xml"
	ctCore          = "application/vnd.openxmlformats-package.core-properties+xml"
	ctExtended      = "application/vnd.openxmlformats-officedocument.extended-properties+xml"
	xmlHeader       = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	presentationNSs = `xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"`
)

const colorMap = `bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"`

type relationship struct {
	id, kind, target string
}

// pptxWriter assembles an Office Open XML presentation package.
type pptxWriter struct {
	zw        *zip.Writer
	overrides []string
	err       error
}

// WritePPTX encodes deck as a .pptx package.
func WritePPTX(w io.Writer, deck Deck, created time.Time) error {
	pw := &pptxWriter{zw: zip.NewWriter(w)}
	pw.writeDeck(deck, created)
	if pw.err != nil {
		_ = pw.zw.Close()
		return pw.err
	}
	return pw.zw.Close()
}

func (pw *pptxWriter) writeDeck(deck Deck, created time.Time) {
	tpl := deck.Template
	count := len(deck.Slides)

	pw.part("_rels/.rels", "", rels([]relationship{
		{"rId1", relDoc, "ppt/presentation.xml"},
		{"rId2", relCore, "docProps/core.xml"},
		{"rId3", relExtended, "docProps/app.xml"},
	}))
	pw.part("docProps/core.xml", ctCore, coreProps(deck, created))
	pw.part("docProps/app.xml", ctExtended, appProps(count))

	presRels := []relationship{
		{"rId1", relSlideMaster, "slideMasters/slideMaster1.xml"},
		{"rId2", relTheme, "theme/theme1.xml"},
	}
	for i := range deck.Slides {
		presRels = append(presRels, relationship{fmt.Sprintf("rId%d", i+3), relSlide, fmt.Sprintf("slides/slide%d.xml", i+1)})
	}
	notesMasterRel := fmt.Sprintf("rId%d", count+3)
	if deck.Notes {
		presRels = append(presRels, relationship{notesMasterRel, relNotesMaster, "notesMasters/notesMaster1.xml"})
	}
	pw.part("ppt/_rels/presentation.xml.rels", "", rels(presRels))
	pw.part("ppt/presentation.xml", ctPresentation, presentation(count, deck.Notes, notesMasterRel))

	pw.part("ppt/theme/theme1.xml", ctTheme, theme(tpl))
	pw.part("ppt/slideMasters/_rels/slideMaster1.xml.rels", "", rels([]relationship{
		{"rId1", relSlideLayout, "../slideLayouts/slideLayout1.xml"},
		{"rId2", relTheme, "../theme/theme1.xml"},
	}))
	pw.part("ppt/slideMasters/slideMaster1.xml", ctSlideMaster, slideMaster())
	pw.part("ppt/slideLayouts/_rels/slideLayout1.xml.rels", "", rels([]relationship{
		{"rId1", relSlideMaster, "../slideMasters/slideMaster1.xml"},
	}))
	pw.part("ppt/slideLayouts/slideLayout1.xml", ctSlideLayout, slideLayout())

	if deck.Notes {
		pw.part("ppt/theme/theme2.xml", ctTheme, theme(tpl))
		pw.part("ppt/notesMasters/_rels/notesMaster1.xml.rels", "", rels([]relationship{
			{"rId1", relTheme, "../theme/theme2.xml"},
		}))
		pw.part("ppt/notesMasters/notesMaster1.xml", ctNotesMaster, notesMaster())
	}

	for i, slide := range deck.Slides {
		n := i + 1
		slideRels := []relationship{{"rId1", relSlideLayout, "../slideLayouts/slideLayout1.xml"}}
		if deck.Notes {
			slideRels = append(slideRels, relationship{"rId2", relNotesSlide, fmt.Sprintf("../notesSlides/notesSlide%d.xml", n)})
			pw.part(fmt.Sprintf("ppt/notesSlides/_rels/notesSlide%d.xml.rels", n), "", rels([]relationship{
				{"rId1", relNotesMaster, "../notesMasters/notesMaster1.xml"},
				{"rId2", relSlide, fmt.Sprintf("../slides/slide%d.xml", n)},
			}))
			pw.part(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), ctNotesSlide, notesSlide(slide.Notes))
		}
		pw.part(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), "", rels(slideRels))
		pw.part(fmt.Sprintf("ppt/slides/slide%d.xml", n), ctSlide, slideXML(slide, tpl))
	}

	// Content types must list every part, so it is written last.
	pw.part("[Content_Types].xml", "", contentTypes(pw.overrides))
}

func (pw *pptxWriter) part(name, contentType, body string) {
	if pw.err != nil {
		return
	}
	if contentType != "" {
		pw.overrides = append(pw.overrides, fmt.Sprintf(`<Override PartName="/%s" ContentType="%s"/>`, name, contentType))
	}
	f, err := pw.zw.Create(name)
	if err != nil {
		pw.err = fmt.Errorf("create %s: %w", name, err)
		return
	}
	if _, err := io.WriteString(f, xmlHeader+body); err != nil {
		pw.err = fmt.Errorf("write %s: %w", name, err)
	}
}

func esc(value string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(value))
	return b.String()
}

func emu(inches float64) int64 {
	return int64(inches * emuPerInch)
}

func rels(items []relationship) string {
	var b strings.Builder
	b.WriteString(`<Relationships xmlns="` + nsRel + `">`)
	for _, rel := range items {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, rel.id, rel.kind, rel.target)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func contentTypes(overrides []string) string {
	return `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		strings.Join(overrides, "") +
		`</Types>`
}

func coreProps(deck Deck, created time.Time) string {
	stamp := created.UTC().Format(time.RFC3339)
	creator := deck.Author
	if creator == "" {
		creator = "slidewright"
	}
	return `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + esc(deck.Title) + `</dc:title>` +
		`<dc:creator>` + esc(creator) + `</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

func appProps(slides int) string {
	return fmt.Sprintf(`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">`+
		`<Application>slidewright</Application><Slides>%d</Slides></Properties>`, slides)
}

func presentation(slides int, notes bool, notesMasterRel string) string {
	var b strings.Builder
	b.WriteString(`<p:presentation ` + presentationNSs + ` saveSubsetFonts="1">`)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	if notes {
		b.WriteString(`<p:notesMasterIdLst><p:notesMasterId r:id="` + notesMasterRel + `"/></p:notesMasterIdLst>`)
	}
	b.WriteString(`<p:sldIdLst>`)
	for i := 0; i < slides; i++ {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+3)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/><p:notesSz cx="%d" cy="%d"/>`, slideWidth, slideHeight, notesWidth, notesHeight)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

const emptyTree = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

func slideMaster() string {
	return `<p:sldMaster ` + presentationNSs + `>` +
		`<p:cSld><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` +
		`<p:clrMap ` + colorMap + `/>` +
		`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
		`</p:sldMaster>`
}

func slideLayout() string {
	return `<p:sldLayout ` + presentationNSs + ` type="blank" preserve="1">` +
		`<p:cSld name="Blank"><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` +
		`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`
}

func notesMaster() string {
	return `<p:notesMaster ` + presentationNSs + `>` +
		`<p:cSld><p:spTree>` + emptyTree + `</p:spTree></p:cSld>` +
		`<p:clrMap ` + colorMap + `/></p:notesMaster>`
}

func notesSlide(notes string) string {
	var b strings.Builder
	b.WriteString(`<p:notes ` + presentationNSs + `><p:cSld><p:spTree>` + emptyTree)
	b.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Notes Placeholder"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr>`)
	b.WriteString(`<p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/>`)
	lines := strings.Split(notes, "\n")
	for _, line := range lines {
		if line == "" {
			b.WriteString(`<a:p><a:endParaRPr lang="en-US"/></a:p>`)
			continue
		}
		b.WriteString(`<a:p><a:r><a:rPr lang="en-US"/><a:t>` + esc(line) + `</a:t></a:r></a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:notes>`)
	return b.String()
}

func theme(tpl Template) string {
	c := tpl.Colors
	fill := func(color string) string { return `<a:solidFill><a:srgbClr val="` + color + `"/></a:solidFill>` }
	line := `<a:ln w="9525"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`
	return `<a:theme xmlns:a="` + nsA + `" name="` + esc(tpl.Name) + `"><a:themeElements>` +
		`<a:clrScheme name="` + esc(tpl.Name) + `">` +
		`<a:dk1><a:srgbClr val="` + c.Text.Hex() + `"/></a:dk1>` +
		`<a:lt1><a:srgbClr val="` + c.Background.Hex() + `"/></a:lt1>` +
		`<a:dk2><a:srgbClr val="` + c.TitleBackground.Hex() + `"/></a:dk2>` +
		`<a:lt2><a:srgbClr val="` + c.TitleText.Hex() + `"/></a:lt2>` +
		`<a:accent1><a:srgbClr val="` + c.Accent1.Hex() + `"/></a:accent1>` +
		`<a:accent2><a:srgbClr val="` + c.Accent2.Hex() + `"/></a:accent2>` +
		`<a:accent3><a:srgbClr val="A5A5A5"/></a:accent3>` +
		`<a:accent4><a:srgbClr val="FFC000"/></a:accent4>` +
		`<a:accent5><a:srgbClr val="5B9BD5"/></a:accent5>` +
		`<a:accent6><a:srgbClr val="70AD47"/></a:accent6>` +
		`<a:hlink><a:srgbClr val="0563C1"/></a:hlink>` +
		`<a:folHlink><a:srgbClr val="954F72"/></a:folHlink>` +
		`</a:clrScheme>` +
		`<a:fontScheme name="` + esc(tpl.Name) + `">` +
		`<a:majorFont><a:latin typeface="` + esc(tpl.TitleFont) + `"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
		`<a:minorFont><a:latin typeface="` + esc(tpl.BodyFont) + `"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
		`</a:fontScheme>` +
		`<a:fmtScheme name="` + esc(tpl.Name) + `">` +
		`<a:fillStyleLst>` + strings.Repeat(fill("FFFFFF"), 3) + `</a:fillStyleLst>` +
		`<a:lnStyleLst>` + strings.Repeat(line, 3) + `</a:lnStyleLst>` +
		`<a:effectStyleLst>` + strings.Repeat(`<a:effectStyle><a:effectLst/></a:effectStyle>`, 3) + `</a:effectStyleLst>` +
		`<a:bgFillStyleLst>` + strings.Repeat(fill("FFFFFF"), 3) + `</a:bgFillStyleLst>` +
		`</a:fmtScheme></a:themeElements></a:theme>`
}

// box is a rectangle in inches.
type box struct {
	left, top, width, height float64
}

// shapeBuilder accumulates the shapes of one slide, numbering them.
type shapeBuilder struct {
	b    strings.Builder
	next int
}

func (s *shapeBuilder) rect(name string, at box, fillHex, lineHex string) {
	s.next++
	fmt.Fprintf(&s.b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>`, s.next, esc(name))
	s.b.WriteString(spPr(at, fillHex, lineHex))
	s.b.WriteString(`<p:txBody><a:bodyPr/><a:lstStyle/><a:p><a:endParaRPr lang="en-US"/></a:p></p:txBody></p:sp>`)
}

type paragraph struct {
	text   string
	size   int
	bold   bool
	bullet bool
	align  string
}

func (s *shapeBuilder) text(name string, at box, font, colorHex, fillHex, lineHex, anchor string, paras []paragraph) {
	s.next++
	fmt.Fprintf(&s.b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, s.next, esc(name))
	s.b.WriteString(spPr(at, fillHex, lineHex))
	fmt.Fprintf(&s.b, `<p:txBody><a:bodyPr wrap="square" anchor="%s"><a:normAutofit/></a:bodyPr><a:lstStyle/>`, anchor)
	for _, para := range paras {
		s.b.WriteString(`<a:p>`)
		switch {
		case para.bullet:
			fmt.Fprintf(&s.b, `<a:pPr marL="342900" indent="-342900"><a:spcBef><a:spcPts val="600"/></a:spcBef><a:buFont typeface="%s"/><a:buChar char="&#8226;"/></a:pPr>`, esc(font))
		case para.align != "":
			fmt.Fprintf(&s.b, `<a:pPr algn="%s"/>`, para.align)
		}
		bold := ""
		if para.bold {
			bold = ` b="1"`
		}
		fmt.Fprintf(&s.b, `<a:r><a:rPr lang="en-US" sz="%d"%s dirty="0"><a:solidFill><a:srgbClr val="%s"/></a:solidFill><a:latin typeface="%s"/></a:rPr><a:t>%s</a:t></a:r>`,
			para.size*100, bold, colorHex, esc(font), esc(para.text))
		s.b.WriteString(`</a:p>`)
	}
	s.b.WriteString(`</p:txBody></p:sp>`)
}

func spPr(at box, fillHex, lineHex string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom>`,
		emu(at.left), emu(at.top), emu(at.width), emu(at.height))
	if fillHex != "" {
		b.WriteString(`<a:solidFill><a:srgbClr val="` + fillHex + `"/></a:solidFill>`)
	} else {
		b.WriteString(`<a:noFill/>`)
	}
	if lineHex != "" {
		b.WriteString(`<a:ln w="19050"><a:solidFill><a:srgbClr val="` + lineHex + `"/></a:solidFill></a:ln>`)
	}
	b.WriteString(`</p:spPr>`)
	return b.String()
}

// figureBoxes returns placeholder positions for n figures: one large, two
// side by side, or a two by two grid.
func figureBoxes(n int) []box {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []box{{3, 2, 7, 4}}
	case n == 2:
		return []box{{1.5, 2, 5, 4}, {8.5, 2, 5, 4}}
	}
	out := make([]box, 0, n)
	for i := 0; i < n && i < maxFiguresOnSlide; i++ {
		row, col := i/2, i%2
		out = append(out, box{1.5 + float64(col)*7, 1.5 + float64(row)*3.5, 5, 3})
	}
	return out
}

const slideWidthIn = 13.333

func slideXML(slide Slide, tpl Template) string {
	c := tpl.Colors
	shapes := &shapeBuilder{next: 1}
	background := c.Background.Hex()

	switch slide.Layout {
	case layoutTitle, layoutSection:
		background = c.TitleBackground.Hex()
		shapes.text("Title", box{0.75, 2.2, slideWidthIn - 1.5, 1.6}, tpl.TitleFont, c.TitleText.Hex(), "", "", "b",
			[]paragraph{{text: slide.Title, size: tpl.TitleSize + 4, bold: true, align: "ctr"}})
		shapes.rect("Accent", box{4.667, 3.95, 4, 0.06}, c.Accent2.Hex(), "")
		if len(slide.Bullets) > 0 {
			paras := make([]paragraph, 0, len(slide.Bullets))
			for _, line := range slide.Bullets {
				paras = append(paras, paragraph{text: line, size: tpl.BodySize, align: "ctr"})
			}
			shapes.text("Subtitle", box{0.75, 4.2, slideWidthIn - 1.5, 1.5}, tpl.BodyFont, c.TitleText.Hex(), "", "", "t", paras)
		}
	default:
		shapes.rect("Title Band", box{0, 0, slideWidthIn, 1.3}, c.TitleBackground.Hex(), "")
		shapes.rect("Accent", box{0, 1.3, slideWidthIn, 0.06}, c.Accent2.Hex(), "")
		shapes.text("Title", box{0.5, 0.15, slideWidthIn - 1, 1.0}, tpl.TitleFont, c.TitleText.Hex(), "", "", "ctr",
			[]paragraph{{text: slide.Title, size: tpl.TitleSize, bold: true}})
		if slide.Layout == layoutFigures {
			for i, at := range figureBoxes(len(slide.Figures)) {
				shapes.text(fmt.Sprintf("Figure %d", i+1), at, tpl.BodyFont, c.Text.Hex(), "", c.Accent1.Hex(), "ctr",
					[]paragraph{{text: FigureLabel(slide.Figures[i]), size: max(tpl.BodySize-8, 10), align: "ctr"}})
			}
			break
		}
		if len(slide.Bullets) > 0 {
			paras := make([]paragraph, 0, len(slide.Bullets))
			for _, line := range slide.Bullets {
				paras = append(paras, paragraph{text: line, size: tpl.BodySize, bullet: true})
			}
			shapes.text("Content", box{0.75, 1.7, slideWidthIn - 1.5, 5.3}, tpl.BodyFont, c.Text.Hex(), "", "", "t", paras)
		}
	}

	return `<p:sld ` + presentationNSs + `><p:cSld>` +
		`<p:bg><p:bgPr><a:solidFill><a:srgbClr val="` + background + `"/></a:solidFill><a:effectLst/></p:bgPr></p:bg>` +
		`<p:spTree>` + emptyTree + shapes.b.String() + `</p:spTree></p:cSld>` +
		`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`
}
