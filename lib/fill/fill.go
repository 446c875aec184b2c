// Package fill lazily completes partially populated domain objects:
// each object type registers a single completion routine that knows
// which pages to visit for the fields a list page could not provide.
package fill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pagekit/lib/objects"
)

// ErrUnsupportedObjectType means no completion routine is registered
// for the object's concrete type.
var ErrUnsupportedObjectType = errors.New("unsupported object type")

// Routine completes an object in place. It is called with the fields
// that are still not-loaded and may set a superset of them; the object
// model guarantees it can never regress a loaded field.
type Routine func(ctx context.Context, obj *objects.Object, missing []string) error

// Coordinator is the closed type→routine table of one module,
// resolved once at module load.
type Coordinator struct {
	routines map[string]Routine
	frozen   bool
}

func NewCoordinator() *Coordinator {
	return &Coordinator{routines: map[string]Routine{}}
}

func (c *Coordinator) Register(objectType string, routine Routine) error {
	if c.frozen {
		return fmt.Errorf("coordinator is frozen")
	}
	if objectType == "" || routine == nil {
		return fmt.Errorf("completion registration needs a type and a routine")
	}
	if _, dup := c.routines[objectType]; dup {
		return fmt.Errorf("completion routine for %q registered twice", objectType)
	}
	c.routines[objectType] = routine
	return nil
}

func (c *Coordinator) Freeze() { c.frozen = true }

// Fill ensures the requested fields of obj left the not-loaded state.
// When none of them is missing this is a no-op and the routine is not
// called. Fields the routine could not provide are marked
// not-available rather than left dangling, so repeated fills stay
// idempotent.
func (c *Coordinator) Fill(ctx context.Context, obj *objects.Object, fields ...string) error {
	if obj == nil {
		return nil
	}
	missing := obj.Missing(fields)
	if len(missing) == 0 {
		return nil
	}

	routine, ok := c.routines[obj.Type()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedObjectType, obj.Type())
	}

	slog.Debug("filling object", "object", obj.String(), "missing", missing)
	if err := routine(ctx, obj, missing); err != nil {
		return err
	}

	for _, name := range obj.Missing(missing) {
		if err := obj.MarkNotAvailable(name, "not provided by this module"); err != nil {
			return err
		}
	}
	return nil
}
