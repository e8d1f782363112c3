// Package docgen defines the DocumentRenderer capability consumed by the
// generator tools and direct /docs endpoints, plus a built-in renderer that
// produces minimal but valid OOXML files so the generator path works out of
// the box. Deployments with richer encoders swap the Renderer.
package docgen

import "fmt"

// QuoteItem is one line of a quotation document.
type QuoteItem struct {
	Name      string  `json:"name"`
	Spec      string  `json:"spec,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Total returns quantity × unit price for the line.
func (i QuoteItem) Total() float64 { return i.Quantity * i.UnitPrice }

// QuotePayload is the structured input for quotation documents.
type QuotePayload struct {
	Title    string      `json:"title,omitempty"`
	Seller   string      `json:"seller"`
	Buyer    string      `json:"buyer"`
	Currency string      `json:"currency"`
	Items    []QuoteItem `json:"items"`
	Notes    string      `json:"notes,omitempty"`
}

func (p *QuotePayload) Validate() error {
	if p.Seller == "" || p.Buyer == "" {
		return fmt.Errorf("seller and buyer are required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	return nil
}

// GrandTotal sums all line totals.
func (p *QuotePayload) GrandTotal() float64 {
	var t float64
	for _, i := range p.Items {
		t += i.Total()
	}
	return t
}

// Slide is one page of a presentation.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets,omitempty"`
}

// PresentationPayload is the structured input for doc_pptx_create.
type PresentationPayload struct {
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle,omitempty"`
	Slides   []Slide `json:"slides"`
}

func (p *PresentationPayload) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// InspectionItem is one checked entry of an inspection report.
type InspectionItem struct {
	Item       string `json:"item"`
	Standard   string `json:"standard,omitempty"`
	Result     string `json:"result"`
	Conclusion string `json:"conclusion,omitempty"`
}

// InspectionPayload is the structured input for inspection reports.
type InspectionPayload struct {
	Title     string           `json:"title"`
	Site      string           `json:"site,omitempty"`
	Inspector string           `json:"inspector,omitempty"`
	Date      string           `json:"date,omitempty"`
	Items     []InspectionItem `json:"items"`
	Summary   string           `json:"summary,omitempty"`
}

func (p *InspectionPayload) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	return nil
}

// ProtoPage is one page of a generated prototype.
type ProtoPage struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sections    []string `json:"sections,omitempty"`
}

// ProtoPayload is the structured input for proto_generate.
type ProtoPayload struct {
	ProjectName string      `json:"project_name"`
	Pages       []ProtoPage `json:"pages"`
}

func (p *ProtoPayload) Validate() error {
	if p.ProjectName == "" {
		return fmt.Errorf("project_name is required")
	}
	if len(p.Pages) == 0 {
		return fmt.Errorf("at least one page is required")
	}
	return nil
}

// Renderer turns structured payloads into document bytes. Filenames are
// chosen by the caller; the renderer guarantees the bytes match the
// advertised format.
type Renderer interface {
	RenderPresentation(p *PresentationPayload) ([]byte, error)
	RenderQuoteDocx(p *QuotePayload) ([]byte, error)
	RenderQuoteXlsx(p *QuotePayload) ([]byte, error)
	RenderInspectionDocx(p *InspectionPayload) ([]byte, error)
	RenderInspectionXlsx(p *InspectionPayload) ([]byte, error)
	RenderPrototype(p *ProtoPayload) ([]byte, error)
}
