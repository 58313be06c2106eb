// Package xml extracts prose from XML documents so citations embedded in
// markup (OSIS, TEI, XHTML) can be scanned.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder,
//     which doesn't fetch external entities. xmlquery parses through
//     encoding/xml and inherits that behaviour.
package xml

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/FocuswithJustin/versecite/core/errors"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// DefaultExpr selects every text node in the document.
const DefaultExpr = "//text()"

// Segment is the text of one node matched by an XPath expression.
type Segment struct {
	// Path locates the node, e.g. "/osis/div[2]/p[1]/text()".
	Path string `json:"path"`
	Text string `json:"text"`
}

// Document is a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// Parse parses XML data.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &errors.ParseError{Format: "XML", Message: err.Error()}
	}
	return &Document{root: root}, nil
}

// Select evaluates expr and returns the trimmed, non-empty text of each match
// in document order.
func (d *Document) Select(expr string) ([]Segment, error) {
	if strings.TrimSpace(expr) == "" {
		expr = DefaultExpr
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		v := errors.NewValidation("xpath", err.Error())
		v.Value = expr
		v.Err = fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
		return nil, v
	}

	var segs []Segment
	for _, n := range xmlquery.QuerySelectorAll(d.root, compiled) {
		text := strings.TrimSpace(n.InnerText())
		if text == "" {
			continue
		}
		segs = append(segs, Segment{Path: nodePath(n), Text: text})
	}
	return segs, nil
}

// ExtractText parses data and returns the text selected by expr. An empty
// expr means DefaultExpr.
func ExtractText(data []byte, expr string) ([]Segment, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return doc.Select(expr)
}

// Join concatenates segment texts, one per line, keeping citation runs from
// adjacent nodes apart.
func Join(segs []Segment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// nodePath renders an absolute location path for n. Element steps carry a
// 1-based position among same-named siblings.
func nodePath(n *xmlquery.Node) string {
	var steps []string
	for cur := n; cur != nil && cur.Type != xmlquery.DocumentNode; cur = cur.Parent {
		switch cur.Type {
		case xmlquery.ElementNode:
			steps = append(steps, elementStep(cur))
		case xmlquery.AttributeNode:
			steps = append(steps, "@"+cur.Data)
		case xmlquery.TextNode, xmlquery.CharDataNode:
			steps = append(steps, "text()")
		case xmlquery.CommentNode:
			steps = append(steps, "comment()")
		}
	}

	var b strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(steps[i])
	}
	return b.String()
}

func elementStep(n *xmlquery.Node) string {
	name := n.Data
	if n.Prefix != "" {
		name = n.Prefix + ":" + n.Data
	}
	pos, total := 0, 0
	if n.Parent != nil {
		for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
			if sib.Type != xmlquery.ElementNode || sib.Data != n.Data || sib.Prefix != n.Prefix {
				continue
			}
			total++
			if sib == n {
				pos = total
			}
		}
	}
	if total <= 1 {
		return name
	}
	return name + "[" + strconv.Itoa(pos) + "]"
}
