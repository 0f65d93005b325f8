package dashboard

import (
	"context"
	"perfsnapshot-backend/internal/components/assert"
	"perfsnapshot-backend/internal/components/telemetry"
	"perfsnapshot-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

const (
	report_extractor_resolve = "extractor.resolve"
)

var tracer = otel.Tracer("perfsnapshot.internal.scrapers.dashboard")

// labels longer than this are never looked up, so there is no point indexing them
const maxLabelLength = 64

// tables past this index are ignored by the table lookup
const maxLookupTables = 2

// Page is a parsed dashboard document with the indexes the strategies share.
type Page struct {
	doc *goquery.Document

	labelNodes map[string]*html.Node
	tablePairs []cellPair
}

type cellPair struct {
	label string
	value string
}

// NewPage indexes a parsed document for metric lookups.
func NewPage(doc *goquery.Document) *Page {
	p := &Page{
		doc:        doc,
		labelNodes: map[string]*html.Node{},
	}
	p.indexLabels()
	p.indexTables()
	return p
}

// Document returns the underlying goquery document.
func (p *Page) Document() *goquery.Document {
	return p.doc
}

func (p *Page) indexLabels() {
	// goquery returns matches in document order, so the first node
	// stored for a given text is the first (outermost) match.
	p.doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.Data == "script" || node.Data == "style" {
			return
		}
		text := htmlutil.NormalizeSpace(htmlutil.GetText(node))
		if text == "" || len(text) > maxLabelLength {
			return
		}
		if _, exists := p.labelNodes[text]; exists {
			return
		}
		p.labelNodes[text] = node
	})
}

func (p *Page) indexTables() {
	p.doc.Find("table").EachWithBreak(func(i int, table *goquery.Selection) bool {
		if i >= maxLookupTables {
			return false
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			// rows of nested tables belong to the nested table
			if !row.Closest("table").IsSelection(table) {
				return
			}
			cells := row.ChildrenFiltered("td, th")
			for start := 0; start+1 < cells.Length() && start <= 2; start += 2 {
				label := htmlutil.NormalizeSpace(cells.Eq(start).Text())
				value, ok := htmlutil.CleanText(cells.Eq(start + 1).Text())
				if label == "" || !ok {
					continue
				}
				p.tablePairs = append(p.tablePairs, cellPair{label: label, value: value})
			}
		})
		return true
	})
}

// labelNode returns the first element whose whole text equals `label`, or nil.
func (p *Page) labelNode(label string) *html.Node {
	return p.labelNodes[htmlutil.NormalizeSpace(label)]
}

// Strategy is one way of finding the value that belongs to a label.
type Strategy interface {
	Name() string
	TryExtract(page *Page, label string) (string, bool)
}

func nextElementSibling(node *html.Node) *html.Node {
	for sib := node.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode {
			return sib
		}
	}
	return nil
}

func cleanNodeText(node *html.Node) (string, bool) {
	if node == nil {
		return "", false
	}
	return htmlutil.CleanText(htmlutil.GetText(node))
}

// ExactTextStrategy finds the first element whose text is exactly the label and
// reads the element right after it.
type ExactTextStrategy struct{}

func (ExactTextStrategy) Name() string {
	return "exact-text"
}

func (ExactTextStrategy) TryExtract(page *Page, label string) (string, bool) {
	node := page.labelNode(label)
	if node == nil {
		return "", false
	}
	return cleanNodeText(nextElementSibling(node))
}

// TableStrategy reads the first tables on the page as label/value cell pairs.
type TableStrategy struct{}

func (TableStrategy) Name() string {
	return "table"
}

func (TableStrategy) TryExtract(page *Page, label string) (string, bool) {
	label = htmlutil.NormalizeSpace(label)
	for _, pair := range page.tablePairs {
		if pair.label == label {
			return pair.value, true
		}
	}
	return "", false
}

// SiblingStrategy looks around the label element: its next sibling element,
// an emphasized element in the same parent, then the text directly after it.
type SiblingStrategy struct{}

func (SiblingStrategy) Name() string {
	return "sibling"
}

func isAncestorOrSelf(candidate, node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if n == candidate {
			return true
		}
	}
	return false
}

func (SiblingStrategy) TryExtract(page *Page, label string) (string, bool) {
	node := page.labelNode(label)
	if node == nil {
		return "", false
	}
	normalizedLabel := htmlutil.NormalizeSpace(label)

	value, ok := cleanNodeText(nextElementSibling(node))
	if ok {
		return value, true
	}

	if node.Parent != nil {
		var found string
		goquery.NewDocumentFromNode(node.Parent).
			Find("strong, span, b").
			EachWithBreak(func(_ int, s *goquery.Selection) bool {
				candidate := s.Get(0)
				if isAncestorOrSelf(candidate, node) || isAncestorOrSelf(node, candidate) {
					return true
				}
				text, ok := cleanNodeText(candidate)
				if !ok || text == normalizedLabel {
					return true
				}
				found = text
				return false
			})
		if found != "" {
			return found, true
		}
	}

	if node.NextSibling != nil && node.NextSibling.Type == html.TextNode {
		return htmlutil.CleanText(node.NextSibling.Data)
	}
	return "", false
}

// DefaultStrategies is the resolution order used by NewExtractor.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ExactTextStrategy{},
		TableStrategy{},
		SiblingStrategy{},
	}
}

// Extractor resolves labels by trying each strategy in order until one succeeds.
type Extractor struct {
	strategies []Strategy
	tel        telemetry.API
}

func NewExtractor(tel telemetry.API, strategies ...Strategy) Extractor {
	assert.NotNil(tel, "tel")
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return Extractor{
		strategies: strategies,
		tel:        telemetry.NewScopedAPI("dashboard_extractor", tel),
	}
}

// Extract returns the value for `label` and the name of the strategy that found it.
func (e Extractor) Extract(page *Page, label string) (string, string, bool) {
	for _, s := range e.strategies {
		value, ok := s.TryExtract(page, label)
		if ok {
			return value, s.Name(), true
		}
	}
	return "", "", false
}

// Resolve looks up every name, unresolved names are present in the result with a nil value.
func (e Extractor) Resolve(ctx context.Context, page *Page, names []string) map[string]*string {
	_, span := tracer.Start(ctx, "Extractor.Resolve")
	defer span.End()

	out := make(map[string]*string, len(names))
	for _, name := range names {
		value, strategy, ok := e.Extract(page, name)
		if !ok {
			out[name] = nil
			e.tel.ReportWarning(report_extractor_resolve, "metric not found", name)
			continue
		}
		out[name] = &value
		span.AddEvent("metric", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("strategy", strategy),
		))
	}
	return out
}

// First resolves the first label in `labels` that has a value.
func (e Extractor) First(page *Page, labels ...string) *string {
	for _, label := range labels {
		value, _, ok := e.Extract(page, label)
		if ok {
			return &value
		}
	}
	return nil
}
