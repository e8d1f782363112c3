package docgen

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// OOXML is the built-in Renderer. It writes minimal but valid OOXML
// packages: a single-part document for docx, one worksheet with inline
// strings for xlsx, and one slide per page for pptx.
type OOXML struct{}

func NewOOXML() *OOXML { return &OOXML{} }

func esc(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

type zipEntry struct {
	name string
	body string
}

func buildZip(entries []zipEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			return nil, fmt.Errorf("zip %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// ── docx ──

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const pkgRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="%s"/>
</Relationships>`

func docxParagraph(text string, bold bool) string {
	rpr := ""
	if bold {
		rpr = "<w:rPr><w:b/></w:rPr>"
	}
	return fmt.Sprintf(`<w:p><w:r>%s<w:t xml:space="preserve">%s</w:t></w:r></w:p>`, rpr, esc(text))
}

func renderDocx(paragraphs []string) ([]byte, error) {
	body := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		strings.Join(paragraphs, "") + `<w:sectPr/></w:body></w:document>`
	return buildZip([]zipEntry{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", fmt.Sprintf(pkgRels, "word/document.xml")},
		{"word/document.xml", body},
	})
}

func (OOXML) RenderQuoteDocx(p *QuotePayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	title := p.Title
	if title == "" {
		title = "Quotation"
	}
	paras := []string{
		docxParagraph(title, true),
		docxParagraph("Seller: "+p.Seller, false),
		docxParagraph("Buyer: "+p.Buyer, false),
		docxParagraph("Currency: "+p.Currency, false),
	}
	for i, item := range p.Items {
		paras = append(paras, docxParagraph(
			fmt.Sprintf("%d. %s  ×%.2f @ %.2f = %.2f", i+1, item.Name, item.Quantity, item.UnitPrice, item.Total()), false))
	}
	paras = append(paras, docxParagraph(fmt.Sprintf("Total: %.2f %s", p.GrandTotal(), p.Currency), true))
	if p.Notes != "" {
		paras = append(paras, docxParagraph("Notes: "+p.Notes, false))
	}
	return renderDocx(paras)
}

func (OOXML) RenderInspectionDocx(p *InspectionPayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	paras := []string{docxParagraph(p.Title, true)}
	if p.Site != "" {
		paras = append(paras, docxParagraph("Site: "+p.Site, false))
	}
	if p.Inspector != "" {
		paras = append(paras, docxParagraph("Inspector: "+p.Inspector, false))
	}
	if p.Date != "" {
		paras = append(paras, docxParagraph("Date: "+p.Date, false))
	}
	for i, item := range p.Items {
		line := fmt.Sprintf("%d. %s — %s", i+1, item.Item, item.Result)
		if item.Conclusion != "" {
			line += " (" + item.Conclusion + ")"
		}
		paras = append(paras, docxParagraph(line, false))
	}
	if p.Summary != "" {
		paras = append(paras, docxParagraph("Summary: "+p.Summary, false))
	}
	return renderDocx(paras)
}

// ── xlsx ──

const xlsxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>
<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>
</Types>`

const xlsxWorkbook = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Sheet1" sheetId="1" r:id="rId1"/></sheets></workbook>`

const xlsxWorkbookRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

// cell emits an inline-string or numeric cell.
func cell(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf(`<c t="n"><v>%g</v></c>`, x)
	case int:
		return fmt.Sprintf(`<c t="n"><v>%d</v></c>`, x)
	default:
		return fmt.Sprintf(`<c t="inlineStr"><is><t xml:space="preserve">%s</t></is></c>`, esc(fmt.Sprint(v)))
	}
}

func renderXlsx(rows [][]any) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	for _, row := range rows {
		sb.WriteString("<row>")
		for _, v := range row {
			sb.WriteString(cell(v))
		}
		sb.WriteString("</row>")
	}
	sb.WriteString(`</sheetData></worksheet>`)
	return buildZip([]zipEntry{
		{"[Content_Types].xml", xlsxContentTypes},
		{"_rels/.rels", fmt.Sprintf(pkgRels, "xl/workbook.xml")},
		{"xl/workbook.xml", xlsxWorkbook},
		{"xl/_rels/workbook.xml.rels", xlsxWorkbookRels},
		{"xl/worksheets/sheet1.xml", sb.String()},
	})
}

func (OOXML) RenderQuoteXlsx(p *QuotePayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rows := [][]any{
		{"Seller", p.Seller, "", "", ""},
		{"Buyer", p.Buyer, "", "", ""},
		{"Name", "Spec", "Quantity", "Unit Price (" + p.Currency + ")", "Total"},
	}
	for _, item := range p.Items {
		rows = append(rows, []any{item.Name, item.Spec, item.Quantity, item.UnitPrice, item.Total()})
	}
	rows = append(rows, []any{"", "", "", "Grand Total", p.GrandTotal()})
	return renderXlsx(rows)
}

func (OOXML) RenderInspectionXlsx(p *InspectionPayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rows := [][]any{
		{p.Title, "", "", ""},
		{"Item", "Standard", "Result", "Conclusion"},
	}
	for _, item := range p.Items {
		rows = append(rows, []any{item.Item, item.Standard, item.Result, item.Conclusion})
	}
	if p.Summary != "" {
		rows = append(rows, []any{"Summary", p.Summary, "", ""})
	}
	return renderXlsx(rows)
}

// ── pptx ──

func pptxContentTypes(slideCount int) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	for i := 1; i <= slideCount; i++ {
		fmt.Fprintf(&sb, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i)
	}
	sb.WriteString(`</Types>`)
	return sb.String()
}

func pptxPresentation(slideCount int) string {
	var ids strings.Builder
	for i := 1; i <= slideCount; i++ {
		fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="rId%d"/>`, 255+i, i)
	}
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<p:sldIdLst>` + ids.String() + `</p:sldIdLst>
<p:sldSz cx="12192000" cy="6858000"/></p:presentation>`
}

func pptxPresentationRels(slideCount int) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i := 1; i <= slideCount; i++ {
		fmt.Fprintf(&sb, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide%d.xml"/>`, i, i)
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

func pptxSlide(title string, bullets []string) string {
	var body strings.Builder
	fmt.Fprintf(&body, `<a:p><a:r><a:rPr lang="en-US" b="1"/><a:t>%s</a:t></a:r></a:p>`, esc(title))
	for _, b := range bullets {
		fmt.Fprintf(&body, `<a:p><a:r><a:t>%s</a:t></a:r></a:p>`, esc(b))
	}
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
<p:cSld><p:spTree>
<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>
<p:sp><p:nvSpPr><p:cNvPr id="2" name="Content"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:spPr/>
<p:txBody><a:bodyPr/>` + body.String() + `</p:txBody></p:sp>
</p:spTree></p:cSld></p:sld>`
}

func (OOXML) RenderPresentation(p *PresentationPayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	slides := p.Slides
	if len(slides) == 0 {
		slides = []Slide{{Title: p.Title, Bullets: []string{p.Subtitle}}}
	}
	entries := []zipEntry{
		{"[Content_Types].xml", pptxContentTypes(len(slides))},
		{"_rels/.rels", fmt.Sprintf(pkgRels, "ppt/presentation.xml")},
		{"ppt/presentation.xml", pptxPresentation(len(slides))},
		{"ppt/_rels/presentation.xml.rels", pptxPresentationRels(len(slides))},
	}
	for i, s := range slides {
		entries = append(entries, zipEntry{
			fmt.Sprintf("ppt/slides/slide%d.xml", i+1),
			pptxSlide(s.Title, s.Bullets),
		})
	}
	return buildZip(entries)
}

// ── prototype bundle ──

// RenderPrototype emits a zip of static HTML pages: index.html linking one
// page per ProtoPage. The preview endpoint serves index.html directly.
func (OOXML) RenderPrototype(p *ProtoPayload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var index strings.Builder
	fmt.Fprintf(&index, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body><h1>%s</h1><ul>",
		esc(p.ProjectName), esc(p.ProjectName))
	entries := make([]zipEntry, 0, len(p.Pages)+1)
	for i, page := range p.Pages {
		name := fmt.Sprintf("page-%d.html", i+1)
		fmt.Fprintf(&index, `<li><a href="%s">%s</a></li>`, name, esc(page.Name))

		var body strings.Builder
		fmt.Fprintf(&body, "<!doctype html><html><head><meta charset=\"utf-8\"><title>%s</title></head><body><h1>%s</h1>",
			esc(page.Name), esc(page.Name))
		if page.Description != "" {
			fmt.Fprintf(&body, "<p>%s</p>", esc(page.Description))
		}
		for _, sec := range page.Sections {
			fmt.Fprintf(&body, "<section><h2>%s</h2></section>", esc(sec))
		}
		body.WriteString(`<p><a href="index.html">Back</a></p></body></html>`)
		entries = append(entries, zipEntry{name, body.String()})
	}
	index.WriteString("</ul></body></html>")
	entries = append([]zipEntry{{"index.html", index.String()}}, entries...)
	return buildZip(entries)
}
