package document

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"pagekit/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

// Node is the uniform selection interface over a parsed document.
// Selection expressions depend on the underlying document kind: XPath
// or CSS selectors for HTML, gjson paths for JSON, row/column indexes
// for CSV.
type Node interface {
	// Select returns every node matching the expression, in document
	// order. An empty result is not an error; a malformed expression is.
	Select(expr string) ([]Node, error)
	// First returns the first match or nil.
	First(expr string) (Node, error)
	Text() string
	Attr(name string) (string, bool)
}

// Parse builds a document node tree from a raw response body.
// Supported content types: text/html (and anything xml-ish, parsed
// leniently), application/json, text/csv.
func Parse(raw []byte, contentType string) (Node, error) {
	mediatype := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediatype = parsed
	}

	switch {
	case strings.Contains(mediatype, "html"), strings.Contains(mediatype, "xml"):
		return ParseHTML(raw)
	case strings.Contains(mediatype, "json"):
		return ParseJSON(raw)
	case strings.Contains(mediatype, "csv"):
		return ParseCSV(raw)
	}
	return nil, fmt.Errorf("unsupported content type: %q", contentType)
}

// ParseHTML parses an HTML (or loosely XML) document.
func ParseHTML(raw []byte) (Node, error) {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &HTMLNode{node: root}, nil
}

// ParseJSON wraps a JSON document.
func ParseJSON(raw []byte) (Node, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid json document")
	}
	return &JSONNode{result: gjson.ParseBytes(raw)}, nil
}

// ParseCSV parses a CSV document. The first record is taken as the
// header row; remaining records become row nodes whose cells are
// addressable by column index or by header name through Attr.
func ParseCSV(raw []byte) (Node, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	doc := &CSVNode{}
	if len(records) > 0 {
		doc.header = records[0]
		doc.rows = records[1:]
	}
	return doc, nil
}

// HTMLNode wraps an x/net/html node. Expressions beginning with "/",
// "./", "(" or "//" are evaluated as XPath; everything else as a CSS
// selector.
type HTMLNode struct {
	node *html.Node
}

func NewHTMLNode(node *html.Node) *HTMLNode {
	return &HTMLNode{node: node}
}

func (n *HTMLNode) Raw() *html.Node {
	return n.node
}

func isXPath(expr string) bool {
	return strings.HasPrefix(expr, "/") ||
		strings.HasPrefix(expr, "./") ||
		strings.HasPrefix(expr, "(") ||
		strings.HasPrefix(expr, "..")
}

func (n *HTMLNode) Select(expr string) ([]Node, error) {
	if isXPath(expr) {
		matches, err := htmlquery.QueryAll(n.node, expr)
		if err != nil {
			return nil, fmt.Errorf("bad xpath %q: %w", expr, err)
		}
		out := make([]Node, 0, len(matches))
		for _, m := range matches {
			out = append(out, &HTMLNode{node: m})
		}
		return out, nil
	}

	matcher, err := cascadia.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("bad css selector %q: %w", expr, err)
	}
	sel := goquery.NewDocumentFromNode(n.node).FindMatcher(matcher)
	out := make([]Node, 0, len(sel.Nodes))
	for _, m := range sel.Nodes {
		out = append(out, &HTMLNode{node: m})
	}
	return out, nil
}

func (n *HTMLNode) First(expr string) (Node, error) {
	matches, err := n.Select(expr)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (n *HTMLNode) Text() string {
	return htmlutil.GetText(n.node)
}

func (n *HTMLNode) Attr(name string) (string, bool) {
	return htmlutil.GetAttr(n.node, name)
}

// JSONNode wraps a gjson result; Select takes gjson paths. Selecting
// into an array yields one node per element.
type JSONNode struct {
	result gjson.Result
}

func (n *JSONNode) Select(expr string) ([]Node, error) {
	value := n.result.Get(expr)
	if !value.Exists() {
		return nil, nil
	}
	if value.IsArray() {
		elems := value.Array()
		out := make([]Node, 0, len(elems))
		for _, e := range elems {
			out = append(out, &JSONNode{result: e})
		}
		return out, nil
	}
	return []Node{&JSONNode{result: value}}, nil
}

func (n *JSONNode) First(expr string) (Node, error) {
	matches, err := n.Select(expr)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (n *JSONNode) Text() string {
	return n.result.String()
}

func (n *JSONNode) Attr(name string) (string, bool) {
	value := n.result.Get(name)
	if !value.Exists() {
		return "", false
	}
	return value.String(), true
}

// CSVNode is either the whole document (rows selectable by "*" or a
// row index) or a single row (cells selectable by column index).
type CSVNode struct {
	header []string
	rows   [][]string
	// set on row nodes
	row   []string
	isRow bool
}

func (n *CSVNode) Select(expr string) ([]Node, error) {
	if n.isRow {
		idx, err := n.columnIndex(expr)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(n.row) {
			return nil, nil
		}
		return []Node{&CSVNode{header: n.header, row: []string{n.row[idx]}, isRow: true}}, nil
	}

	if expr == "*" || expr == "" {
		out := make([]Node, 0, len(n.rows))
		for _, r := range n.rows {
			out = append(out, &CSVNode{header: n.header, row: r, isRow: true})
		}
		return out, nil
	}
	idx, err := strconv.Atoi(expr)
	if err != nil {
		return nil, fmt.Errorf("bad csv row selector %q: %w", expr, err)
	}
	if idx < 0 || idx >= len(n.rows) {
		return nil, nil
	}
	return []Node{&CSVNode{header: n.header, row: n.rows[idx], isRow: true}}, nil
}

func (n *CSVNode) columnIndex(expr string) (int, error) {
	if idx, err := strconv.Atoi(expr); err == nil {
		return idx, nil
	}
	for i, h := range n.header {
		if h == expr {
			return i, nil
		}
	}
	return -1, nil
}

func (n *CSVNode) First(expr string) (Node, error) {
	matches, err := n.Select(expr)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (n *CSVNode) Text() string {
	if n.isRow {
		return strings.Join(n.row, ",")
	}
	var out []string
	for _, r := range n.rows {
		out = append(out, strings.Join(r, ","))
	}
	return strings.Join(out, "\n")
}

func (n *CSVNode) Attr(name string) (string, bool) {
	if !n.isRow {
		return "", false
	}
	idx, err := n.columnIndex(name)
	if err != nil || idx < 0 || idx >= len(n.row) {
		return "", false
	}
	return n.row[idx], true
}
