package vmhandle

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
)

func TestBorrowed(t *testing.T) {
	var zero Borrowed
	if zero.Valid() {
		t.Error("zero Borrowed should not be valid")
	}

	vm := goja.New()
	b := Borrow(vm)
	if !b.Valid() || b.Runtime() != vm {
		t.Fatal("Borrow should wrap the given VM")
	}

	// Borrowed has no Close; the host VM stays usable.
	if _, err := vm.RunString("1 + 1"); err != nil {
		t.Errorf("host vm unusable after dropping handle: %v", err)
	}
}

func TestOwned_Close(t *testing.T) {
	vm := goja.New()
	o := Own(vm)

	got, err := o.Runtime()
	if err != nil || got != vm {
		t.Fatalf("Runtime() = %v, %v", got, err)
	}
	if o.Closed() {
		t.Error("Closed() = true before Close")
	}

	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !o.Closed() {
		t.Error("Closed() = false after Close")
	}
	if _, err := o.Runtime(); !errors.Is(err, ErrClosed) {
		t.Errorf("Runtime() after Close = %v, want ErrClosed", err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// The closed VM was interrupted: running on it fails.
	if _, err := vm.RunString("1"); err == nil {
		t.Error("expected interrupted VM to refuse execution")
	}
}
