package elements

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"pagekit/lib/document"
	"pagekit/lib/filters"
	"pagekit/lib/objects"
)

// Spec declares how to build one domain object from one node: the
// object type, the id extraction (required, evaluated first), and a
// filter per field. Computed fields run after the filters with the
// partially built object. Mandatory fields turn an extraction failure
// into a per-item error instead of a not-loaded field.
type Spec struct {
	Type      string
	ID        filters.Filter
	Fields    map[string]filters.Filter
	Computed  map[string]func(obj *objects.Object) (any, error)
	Mandatory []string
}

func (s Spec) fieldNames() []string {
	names := make([]string, 0, len(s.Fields)+len(s.Computed))
	for name := range s.Fields {
		names = append(names, name)
	}
	for name := range s.Computed {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s Spec) isMandatory(name string) bool {
	return slices.Contains(s.Mandatory, name)
}

// BuildMany evaluates the spec against every node matching rootExpr,
// in document order, yielding one object per node. The sequence is
// finite, lazy, and single-use.
//
// Per item: the id is evaluated first; an empty or failed id skips the
// item with a logged diagnostic. A duplicate id keeps the first
// occurrence and logs the collision. An optional field failure leaves
// the field not-loaded; a mandatory one yields an error for that item
// only. The sequence itself never aborts.
func BuildMany(doc document.Node, rootExpr string, spec Spec, env map[string]string) iter.Seq2[*objects.Object, error] {
	used := false
	return func(yield func(*objects.Object, error) bool) {
		if used {
			return
		}
		used = true

		nodes, err := doc.Select(rootExpr)
		if err != nil {
			yield(nil, fmt.Errorf("root selector %q: %w", rootExpr, err))
			return
		}

		seen := map[string]bool{}
		for _, node := range nodes {
			obj, err := buildItem(node, spec, env)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if obj == nil {
				// skipped: no usable id
				continue
			}
			if seen[obj.ID()] {
				slog.Warn("duplicate object id in one document, keeping first",
					"type", spec.Type, "id", obj.ID())
				continue
			}
			seen[obj.ID()] = true
			if !yield(obj, nil) {
				return
			}
		}
	}
}

// BuildOne is the single-node counterpart of BuildMany, for detail
// pages. Exactly the first node matching rootExpr is used; no match is
// a NotFound extraction failure. Unlike list items, a bad id is an
// error here: there is no list to continue with.
func BuildOne(doc document.Node, rootExpr string, spec Spec, env map[string]string) (*objects.Object, error) {
	node, err := doc.First(rootExpr)
	if err != nil {
		return nil, fmt.Errorf("root selector %q: %w", rootExpr, err)
	}
	if node == nil {
		return nil, &filters.ExtractionError{
			Kind:  filters.NotFound,
			Stage: fmt.Sprintf("build-one(%s)", rootExpr),
			Err:   fmt.Errorf("no node matched"),
		}
	}
	obj, err := buildItem(node, spec, env)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("object of type %q: no usable id", spec.Type)
	}
	return obj, nil
}

// buildItem returns (nil, nil) when the item should be skipped.
func buildItem(node document.Node, spec Spec, env map[string]string) (*objects.Object, error) {
	fctx := &filters.Context{Node: node, Env: env}

	if spec.ID == nil {
		return nil, fmt.Errorf("spec for type %q has no id filter", spec.Type)
	}
	rawID, err := spec.ID.Apply(fctx, node)
	if err != nil {
		slog.Warn("skipping item: id extraction failed",
			"type", spec.Type, "err", err)
		return nil, nil
	}
	id := fmt.Sprint(rawID)
	if id == "" {
		slog.Warn("skipping item: empty id", "type", spec.Type)
		return nil, nil
	}

	obj, err := objects.New(spec.Type, id, spec.fieldNames()...)
	if err != nil {
		return nil, err
	}

	for _, name := range obj.FieldNames() {
		f, ok := spec.Fields[name]
		if !ok {
			continue
		}
		value, err := f.Apply(fctx, node)
		if err != nil {
			if spec.isMandatory(name) {
				return nil, fmt.Errorf("object %s: mandatory field %q: %w", obj, name, err)
			}
			slog.Debug("optional field left not-loaded",
				"object", obj.String(), "field", name, "err", err)
			continue
		}
		if err := obj.Set(name, value); err != nil {
			return nil, err
		}
	}

	for _, name := range obj.FieldNames() {
		fn, ok := spec.Computed[name]
		if !ok {
			continue
		}
		value, err := fn(obj)
		if err != nil {
			if spec.isMandatory(name) {
				return nil, fmt.Errorf("object %s: mandatory field %q: %w", obj, name, err)
			}
			slog.Debug("computed field left not-loaded",
				"object", obj.String(), "field", name, "err", err)
			continue
		}
		if err := obj.Set(name, value); err != nil {
			return nil, err
		}
	}

	return obj, nil
}

// Collect drains a build sequence, separating objects from per-item
// errors.
func Collect(seq iter.Seq2[*objects.Object, error]) ([]*objects.Object, []error) {
	var (
		out  []*objects.Object
		errs []error
	)
	for obj, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, obj)
	}
	return out, errs
}
