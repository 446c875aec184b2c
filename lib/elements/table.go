package elements

import (
	"fmt"

	"pagekit/lib/document"
	"pagekit/lib/filters"
	"pagekit/lib/textutil"

	"github.com/antzucaro/matchr"
)

// fuzzy tolerance for header matching; headers are short labels so a
// high bar keeps false positives out
const columnSimilarity = 0.9

// Table maps logical column names onto the column indexes of one
// concrete table, by matching header cell titles. Matching is
// normalized-substring first, Jaro-Winkler similarity as a fallback,
// so minor site rewordings keep working.
type Table struct {
	columns map[string]int
}

// NewTable reads the header cells matched by headExpr and resolves
// each wanted column. A wanted column maps a logical name to the
// normalized title fragments that identify it.
func NewTable(doc document.Node, headExpr string, wanted map[string][]string) (*Table, error) {
	headers, err := doc.Select(headExpr)
	if err != nil {
		return nil, fmt.Errorf("header selector %q: %w", headExpr, err)
	}

	table := &Table{columns: map[string]int{}}
	for idx, cell := range headers {
		title := textutil.CleanWhitespace(cell.Text())
		for name, fragments := range wanted {
			if _, done := table.columns[name]; done {
				continue
			}
			if textutil.MatchName(title, fragments) {
				table.columns[name] = idx
				continue
			}
			for _, fragment := range fragments {
				if matchr.JaroWinkler(textutil.NormalizeName(title), fragment, false) >= columnSimilarity {
					table.columns[name] = idx
					break
				}
			}
		}
	}

	for name := range wanted {
		if _, ok := table.columns[name]; !ok {
			return nil, fmt.Errorf("no table column matched %q", name)
		}
	}
	return table, nil
}

// Index returns the resolved column index.
func (t *Table) Index(name string) (int, bool) {
	idx, ok := t.columns[name]
	return idx, ok
}

// Cell is a filter reading the resolved column's cell off the current
// row node.
func (t *Table) Cell(name string) filters.Filter {
	stage := fmt.Sprintf("cell(%s)", name)
	return filters.New(stage, func(ctx *filters.Context, in any) (any, error) {
		idx, ok := t.columns[name]
		if !ok {
			return nil, &filters.ExtractionError{
				Kind:  filters.NotFound,
				Stage: stage,
				Err:   fmt.Errorf("unresolved column"),
			}
		}
		node, isNode := in.(document.Node)
		if !isNode {
			node = ctx.Node
		}
		if node == nil {
			return nil, &filters.ExtractionError{
				Kind:  filters.ParseError,
				Stage: stage,
				Err:   fmt.Errorf("no row node"),
			}
		}
		cells, err := node.Select("./td")
		if err != nil {
			return nil, &filters.ExtractionError{Kind: filters.ParseError, Stage: stage, Err: err}
		}
		if idx >= len(cells) {
			return nil, &filters.ExtractionError{
				Kind:  filters.NotFound,
				Stage: stage,
				Err:   fmt.Errorf("row has %d cells, column is %d", len(cells), idx),
			}
		}
		return cells[idx], nil
	})
}
