// Package copyvm deep-copies script values between VMs through an isolated
// copy VM. The copy VM only ever holds structural copies; it never runs
// script code.
package copyvm

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/me/coloop/internal/vmhandle"
)

// DefaultMaxDepth bounds the nesting of copied values.
const DefaultMaxDepth = 64

var (
	// ErrUncopyable is returned for functions, symbols, regular expressions
	// and other values that have no structural form.
	ErrUncopyable = errors.New("value cannot be copied")

	// ErrTooDeep is returned when a value nests deeper than the copier allows.
	ErrTooDeep = errors.New("value nested too deeply")
)

var timeType = reflect.TypeOf(time.Time{})

// Copier copies values into and out of its copy VM. Calls are serialized;
// the source VM of a copy must not be running on another goroutine.
type Copier struct {
	mu       sync.Mutex
	vm       *vmhandle.Owned
	maxDepth int
}

// New returns a Copier that owns vm.
func New(vm *vmhandle.Owned) *Copier {
	return &Copier{vm: vm, maxDepth: DefaultMaxDepth}
}

// SetMaxDepth overrides DefaultMaxDepth. n <= 0 restores the default.
func (c *Copier) SetMaxDepth(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		n = DefaultMaxDepth
	}
	c.maxDepth = n
}

// Close releases the copy VM.
func (c *Copier) Close() error {
	return c.vm.Close()
}

// Stage copies v into the copy VM and returns the staged copy.
func (c *Copier) Stage(v goja.Value) (goja.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage(v)
}

func (c *Copier) stage(v goja.Value) (goja.Value, error) {
	dst, err := c.vm.Runtime()
	if err != nil {
		return nil, err
	}
	return copyInto(dst, v, c.maxDepth)
}

// Transfer copies v into dst by way of the copy VM. The result shares no
// objects with v.
func (c *Copier) Transfer(v goja.Value, dst *goja.Runtime) (goja.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	staged, err := c.stage(v)
	if err != nil {
		return nil, err
	}
	return copyInto(dst, staged, c.maxDepth)
}

// Export returns a plain Go copy of v (nil, bool, int64, float64, string,
// []any, map[string]any, time.Time) that is safe to hand to other goroutines.
// A Map exports as [][2]any of its entries and a Set as []any.
func (c *Copier) Export(v goja.Value) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	staged, err := c.stage(v)
	if err != nil {
		return nil, err
	}
	return staged.Export(), nil
}

// Import converts plain Go data into a value owned by dst. Maps and slices
// are copied, so later mutation on either side is not shared.
func (c *Copier) Import(x any, dst *goja.Runtime) (goja.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stage, err := c.vm.Runtime()
	if err != nil {
		return nil, err
	}
	staged, err := copyInto(stage, stage.ToValue(x), c.maxDepth)
	if err != nil {
		return nil, err
	}
	return copyInto(dst, staged, c.maxDepth)
}

type copier struct {
	dst      *goja.Runtime
	seen     map[*goja.Object]*goja.Object
	maxDepth int
}

func copyInto(dst *goja.Runtime, v goja.Value, maxDepth int) (goja.Value, error) {
	cp := &copier{dst: dst, seen: make(map[*goja.Object]*goja.Object), maxDepth: maxDepth}
	return cp.value(v, 0)
}

func (cp *copier) value(v goja.Value, depth int) (goja.Value, error) {
	if v == nil || goja.IsUndefined(v) {
		return goja.Undefined(), nil
	}
	if goja.IsNull(v) {
		return goja.Null(), nil
	}
	if depth > cp.maxDepth {
		return nil, ErrTooDeep
	}

	switch v := v.(type) {
	case *goja.Symbol:
		return nil, fmt.Errorf("symbol: %w", ErrUncopyable)
	case *goja.Object:
		return cp.object(v, depth)
	}
	return cp.dst.ToValue(v.Export()), nil
}

func (cp *copier) object(obj *goja.Object, depth int) (goja.Value, error) {
	if out, ok := cp.seen[obj]; ok {
		return out, nil
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return nil, fmt.Errorf("function: %w", ErrUncopyable)
	}

	// Dates and wrapped Go time.Time values both become script Dates.
	if obj.ClassName() == "Date" || obj.ExportType() == timeType {
		return cp.date(obj)
	}

	switch cls := obj.ClassName(); cls {
	case "Array":
		return cp.array(obj, depth)
	case "Error":
		return cp.errorObject(obj, depth)
	case "Map":
		return cp.mapObject(obj, depth)
	case "Set":
		return cp.setObject(obj, depth)
	case "RegExp", "WeakMap", "WeakSet", "Promise", "Generator", "Map Iterator", "Set Iterator", "Array Iterator":
		return nil, fmt.Errorf("%s: %w", cls, ErrUncopyable)
	}

	out := cp.dst.NewObject()
	cp.seen[obj] = out
	if err := cp.fields(obj, out, obj.Keys(), depth); err != nil {
		return nil, err
	}
	return out, nil
}

func (cp *copier) date(obj *goja.Object) (goja.Value, error) {
	t, ok := obj.Export().(time.Time)
	if !ok {
		return nil, fmt.Errorf("date: %w", ErrUncopyable)
	}
	out, err := cp.dst.New(cp.dst.Get("Date"), cp.dst.ToValue(t.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	cp.seen[obj] = out
	return out, nil
}

func (cp *copier) array(obj *goja.Object, depth int) (goja.Value, error) {
	out := cp.dst.NewArray()
	cp.seen[obj] = out
	n := obj.Get("length").ToInteger()
	for i := int64(0); i < n; i++ {
		key := strconv.FormatInt(i, 10)
		el, err := cp.value(obj.Get(key), depth+1)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if err := out.Set(key, el); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mapObject rebuilds a Map in the destination, copying keys and values in
// insertion order.
func (cp *copier) mapObject(obj *goja.Object, depth int) (goja.Value, error) {
	out, err := cp.dst.New(cp.dst.Get("Map"))
	if err != nil {
		return nil, fmt.Errorf("map: %w", err)
	}
	cp.seen[obj] = out
	set, ok := goja.AssertFunction(out.Get("set"))
	if !ok {
		return nil, fmt.Errorf("map: %w", ErrUncopyable)
	}
	i := 0
	err = iterate(obj, "entries", func(entry goja.Value) error {
		pair, ok := entry.(*goja.Object)
		if !ok {
			return fmt.Errorf("map entry %d: %w", i, ErrUncopyable)
		}
		k, err := cp.value(pair.Get("0"), depth+1)
		if err != nil {
			return fmt.Errorf("map key %d: %w", i, err)
		}
		v, err := cp.value(pair.Get("1"), depth+1)
		if err != nil {
			return fmt.Errorf("map value %d: %w", i, err)
		}
		i++
		_, err = set(out, k, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// setObject rebuilds a Set in the destination.
func (cp *copier) setObject(obj *goja.Object, depth int) (goja.Value, error) {
	out, err := cp.dst.New(cp.dst.Get("Set"))
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}
	cp.seen[obj] = out
	add, ok := goja.AssertFunction(out.Get("add"))
	if !ok {
		return nil, fmt.Errorf("set: %w", ErrUncopyable)
	}
	i := 0
	err = iterate(obj, "values", func(el goja.Value) error {
		v, err := cp.value(el, depth+1)
		if err != nil {
			return fmt.Errorf("set element %d: %w", i, err)
		}
		i++
		_, err = add(out, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// iterate calls fn with every value produced by the iterator that
// obj[method]() returns.
func iterate(obj *goja.Object, method string, fn func(goja.Value) error) error {
	open, ok := goja.AssertFunction(obj.Get(method))
	if !ok {
		return fmt.Errorf("%s has no %s(): %w", obj.ClassName(), method, ErrUncopyable)
	}
	itv, err := open(obj)
	if err != nil {
		return err
	}
	it, ok := itv.(*goja.Object)
	if !ok {
		return fmt.Errorf("%s.%s(): %w", obj.ClassName(), method, ErrUncopyable)
	}
	next, ok := goja.AssertFunction(it.Get("next"))
	if !ok {
		return fmt.Errorf("%s.%s(): %w", obj.ClassName(), method, ErrUncopyable)
	}
	for {
		rv, err := next(it)
		if err != nil {
			return err
		}
		r, ok := rv.(*goja.Object)
		if !ok {
			return fmt.Errorf("%s.%s(): %w", obj.ClassName(), method, ErrUncopyable)
		}
		if done := r.Get("done"); done != nil && done.ToBoolean() {
			return nil
		}
		if err := fn(r.Get("value")); err != nil {
			return err
		}
	}
}

// errorObject keeps name, message and stack, which are not enumerable on
// Error instances, plus any own enumerable fields.
func (cp *copier) errorObject(obj *goja.Object, depth int) (goja.Value, error) {
	ctor := cp.dst.Get("Error")
	out, err := cp.dst.New(ctor)
	if err != nil {
		return nil, fmt.Errorf("error: %w", err)
	}
	cp.seen[obj] = out
	for _, k := range []string{"name", "message", "stack"} {
		fv := obj.Get(k)
		if fv == nil || goja.IsUndefined(fv) {
			continue
		}
		// Builtin error properties are always primitives; a read-only slot
		// on the new object is left as the constructor set it.
		_ = out.Set(k, cp.dst.ToValue(fv.String()))
	}
	if err := cp.fields(obj, out, obj.Keys(), depth); err != nil {
		return nil, err
	}
	return out, nil
}

func (cp *copier) fields(src, out *goja.Object, keys []string, depth int) error {
	for _, k := range keys {
		fv := src.Get(k)
		if fv == nil {
			continue
		}
		cv, err := cp.value(fv, depth+1)
		if err != nil {
			return fmt.Errorf(".%s: %w", k, err)
		}
		if err := out.Set(k, cv); err != nil {
			return err
		}
	}
	return nil
}
