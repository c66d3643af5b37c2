// Package fault injects errors into fake adapters at named points.
package fault

import (
	"fmt"
	"sync"
)

// Hook decides per call whether a point fails.
type Hook func(args ...any) error

type pointFault struct {
	onceErrs  []error
	alwaysErr error
	hook      Hook
}

// Injector manages per-point fault injection. The zero value is ready to use.
type Injector struct {
	mu     sync.Mutex
	points map[string]*pointFault
}

// FailOnce injects err for the next evaluation of point. Calls queue.
func (i *Injector) FailOnce(point string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	pf := i.ensurePoint(point)
	pf.onceErrs = append(pf.onceErrs, err)
}

// FailAlways injects err on every evaluation of point until cleared.
func (i *Injector) FailAlways(point string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ensurePoint(point).alwaysErr = err
}

// SetHook sets an argument-aware hook for point.
func (i *Injector) SetHook(point string, hook Hook) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ensurePoint(point).hook = hook
}

// Clear removes all faults for point.
func (i *Injector) Clear(point string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.points, point)
}

// Eval returns the injected error for this call of point, if any.
// Precedence: hook, then once, then always.
func (i *Injector) Eval(point string, args ...any) error {
	i.mu.Lock()
	pf := i.points[point]
	if pf == nil {
		i.mu.Unlock()
		return nil
	}
	hook := pf.hook
	var onceErr error
	if len(pf.onceErrs) > 0 {
		onceErr = pf.onceErrs[0]
		pf.onceErrs = pf.onceErrs[1:]
	}
	alwaysErr := pf.alwaysErr
	i.mu.Unlock()

	if hook != nil {
		if err := hook(args...); err != nil {
			return fmt.Errorf("fault %s (hook): %w", point, err)
		}
	}
	if onceErr != nil {
		return fmt.Errorf("fault %s (once): %w", point, onceErr)
	}
	if alwaysErr != nil {
		return fmt.Errorf("fault %s (always): %w", point, alwaysErr)
	}
	return nil
}

func (i *Injector) ensurePoint(point string) *pointFault {
	if i.points == nil {
		i.points = make(map[string]*pointFault)
	}
	pf, ok := i.points[point]
	if !ok {
		pf = &pointFault{}
		i.points[point] = pf
	}
	return pf
}
