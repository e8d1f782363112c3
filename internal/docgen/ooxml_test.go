package docgen

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
)

func members(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("output is not a zip: %v", err)
	}
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(b)
	}
	return out
}

func quote() *QuotePayload {
	return &QuotePayload{
		Seller:   "ACME",
		Buyer:    "Globex",
		Currency: "CNY",
		Items: []QuoteItem{
			{Name: "Widget", Quantity: 2, UnitPrice: 10},
			{Name: "Gadget & Co", Quantity: 1.5, UnitPrice: 100},
		},
	}
}

func TestQuoteTotals(t *testing.T) {
	p := quote()
	if got := p.GrandTotal(); got != 170 {
		t.Fatalf("grand total = %v, want 170", got)
	}
}

func TestRenderQuoteXlsx(t *testing.T) {
	data, err := OOXML{}.RenderQuoteXlsx(quote())
	if err != nil {
		t.Fatal(err)
	}
	m := members(t, data)
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "xl/workbook.xml", "xl/worksheets/sheet1.xml", "xl/_rels/workbook.xml.rels"} {
		if _, ok := m[name]; !ok {
			t.Fatalf("xlsx missing part %s", name)
		}
	}
	sheet := m["xl/worksheets/sheet1.xml"]
	if !strings.Contains(sheet, "Widget") || !strings.Contains(sheet, "Gadget &amp; Co") {
		t.Fatal("items missing or unescaped in worksheet")
	}
	if !strings.Contains(sheet, "<v>170</v>") {
		t.Fatal("grand total missing from worksheet")
	}
}

func TestRenderQuoteDocx(t *testing.T) {
	data, err := OOXML{}.RenderQuoteDocx(quote())
	if err != nil {
		t.Fatal(err)
	}
	m := members(t, data)
	doc, ok := m["word/document.xml"]
	if !ok {
		t.Fatal("docx missing word/document.xml")
	}
	for _, want := range []string{"ACME", "Globex", "Total: 170.00 CNY"} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q", want)
		}
	}
}

func TestRenderQuoteValidation(t *testing.T) {
	if _, err := (OOXML{}).RenderQuoteDocx(&QuotePayload{Seller: "x", Buyer: "y", Currency: "CNY"}); err == nil {
		t.Fatal("empty items must fail validation")
	}
	if _, err := (OOXML{}).RenderQuoteXlsx(&QuotePayload{Buyer: "y", Currency: "CNY", Items: []QuoteItem{{Name: "a"}}}); err == nil {
		t.Fatal("missing seller must fail validation")
	}
}

func TestRenderPresentation(t *testing.T) {
	data, err := OOXML{}.RenderPresentation(&PresentationPayload{
		Title: "Alpha",
		Slides: []Slide{
			{Title: "Intro", Bullets: []string{"one", "two"}},
			{Title: "Outro"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	m := members(t, data)
	if _, ok := m["ppt/slides/slide1.xml"]; !ok {
		t.Fatal("pptx missing slide1")
	}
	if _, ok := m["ppt/slides/slide2.xml"]; !ok {
		t.Fatal("pptx missing slide2")
	}
	if !strings.Contains(m["ppt/slides/slide1.xml"], "Intro") {
		t.Fatal("slide content missing")
	}
	if !strings.Contains(m["ppt/presentation.xml"], "rId2") {
		t.Fatal("presentation must reference both slides")
	}
}

func TestRenderInspectionXlsx(t *testing.T) {
	data, err := OOXML{}.RenderInspectionXlsx(&InspectionPayload{
		Title: "Site Check",
		Items: []InspectionItem{{Item: "Fire door", Result: "pass"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(members(t, data)["xl/worksheets/sheet1.xml"], "Fire door") {
		t.Fatal("inspection row missing")
	}
}

func TestRenderPrototype(t *testing.T) {
	data, err := OOXML{}.RenderPrototype(&ProtoPayload{
		ProjectName: "Shop",
		Pages: []ProtoPage{
			{Name: "Home", Sections: []string{"Hero", "Footer"}},
			{Name: "Cart", Description: "checkout flow"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	m := members(t, data)
	index, ok := m["index.html"]
	if !ok {
		t.Fatal("bundle missing index.html")
	}
	if !strings.Contains(index, "page-1.html") || !strings.Contains(index, "page-2.html") {
		t.Fatal("index must link every page")
	}
	if !strings.Contains(m["page-2.html"], "checkout flow") {
		t.Fatal("page description missing")
	}
}
