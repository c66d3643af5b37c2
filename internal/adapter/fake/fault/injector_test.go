package fault

import (
	"errors"
	"testing"
)

const testPoint = "store.acquire"

func TestInjectorFailOnce(t *testing.T) {
	var i Injector
	first, second := errors.New("first"), errors.New("second")
	i.FailOnce(testPoint, first)
	i.FailOnce(testPoint, second)

	if err := i.Eval(testPoint); !errors.Is(err, first) {
		t.Fatalf("first Eval error = %v, want %v", err, first)
	}
	if err := i.Eval(testPoint); !errors.Is(err, second) {
		t.Fatalf("second Eval error = %v, want %v", err, second)
	}
	if err := i.Eval(testPoint); err != nil {
		t.Fatalf("third Eval error = %v, want nil", err)
	}
}

func TestInjectorFailAlwaysAndClear(t *testing.T) {
	var i Injector
	injected := errors.New("always")
	i.FailAlways(testPoint, injected)

	for range 3 {
		if err := i.Eval(testPoint); !errors.Is(err, injected) {
			t.Fatalf("Eval error = %v, want %v", err, injected)
		}
	}
	i.Clear(testPoint)
	if err := i.Eval(testPoint); err != nil {
		t.Fatalf("Eval after Clear = %v", err)
	}
}

func TestInjectorHook(t *testing.T) {
	var i Injector
	injected := errors.New("bad key")
	i.SetHook(testPoint, func(args ...any) error {
		if len(args) > 0 && args[0] == "bad" {
			return injected
		}
		return nil
	})

	if err := i.Eval(testPoint, "good"); err != nil {
		t.Fatalf("Eval(good) = %v", err)
	}
	if err := i.Eval(testPoint, "bad"); !errors.Is(err, injected) {
		t.Fatalf("Eval(bad) = %v, want %v", err, injected)
	}
}

func TestInjectorUnknownPoint(t *testing.T) {
	var i Injector
	if err := i.Eval("nothing"); err != nil {
		t.Fatalf("Eval on unconfigured point = %v", err)
	}
}
