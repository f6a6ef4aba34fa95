package dataverse

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestMapBasic(t *testing.T) {
	count := NewBox(2)
	doubled := Map(count, func(n int) (int, error) { return n * 2, nil })

	if v, err := doubled.Value(); err != nil || v != 4 {
		t.Errorf("Value() = %d, %v; want 4, nil", v, err)
	}

	count.Set(5)
	if v, _ := doubled.Value(); v != 10 {
		t.Errorf("pull should be current after Set, got %d", v)
	}
}

func TestDerivationIsLazy(t *testing.T) {
	runs := 0
	d := Map(NewBox(1), func(n int) (int, error) {
		runs++
		return n, nil
	})

	if runs != 0 {
		t.Errorf("derivation evaluated before first read")
	}
	if d.State() != StateUninitialized {
		t.Errorf("expected %s, got %s", StateUninitialized, d.State())
	}
}

func TestValueIsIdempotent(t *testing.T) {
	count := NewBox(3)
	runs := 0
	squared := Map(count, func(n int) (int, error) {
		runs++
		return n * n, nil
	})

	a, _ := squared.Value()
	b, _ := squared.Value()
	if a != b {
		t.Errorf("repeated reads disagree: %d vs %d", a, b)
	}
	if runs != 1 {
		t.Errorf("expected 1 evaluation, got %d", runs)
	}
}

func TestDerivationStates(t *testing.T) {
	count := NewBox(1)
	d := Map(count, func(n int) (int, error) { return n + 1, nil })

	d.Value()
	if d.State() != StateClean {
		t.Errorf("expected %s after read, got %s", StateClean, d.State())
	}

	count.Set(2)
	if d.State() != StateDirty {
		t.Errorf("expected %s after dependency change, got %s", StateDirty, d.State())
	}

	d.Value()
	if d.State() != StateClean {
		t.Errorf("expected %s after re-read, got %s", StateClean, d.State())
	}
}

func TestConstant(t *testing.T) {
	c := Constant("fixed")

	if c.State() != StateClean {
		t.Errorf("expected constant to start %s, got %s", StateClean, c.State())
	}
	if v, err := c.Value(); err != nil || v != "fixed" {
		t.Errorf("Value() = %q, %v", v, err)
	}
	if c.Kind() != KindConstant {
		t.Errorf("expected kind %s, got %s", KindConstant, c.Kind())
	}
}

func TestEqualityCutoff(t *testing.T) {
	count := NewBox(1)
	parity := Map(count, func(n int) (int, error) { return n % 2, nil })
	runs := 0
	label := Map(parity, func(p int) (string, error) {
		runs++
		if p == 0 {
			return "even", nil
		}
		return "odd", nil
	})

	label.Value()
	count.Set(3)
	if v, _ := label.Value(); v != "odd" {
		t.Errorf("expected odd, got %q", v)
	}
	if runs != 1 {
		t.Errorf("unchanged parity should not recompute label, ran %d times", runs)
	}

	count.Set(4)
	if v, _ := label.Value(); v != "even" {
		t.Errorf("expected even, got %q", v)
	}
	if runs != 2 {
		t.Errorf("expected 2 evaluations, got %d", runs)
	}
}

func TestWithEquals(t *testing.T) {
	items := NewBox([]int{1, 2})
	runs := 0
	copied := Map(items, func(s []int) ([]int, error) {
		return append([]int(nil), s...), nil
	}).WithEquals(func(a, b []int) bool { return reflect.DeepEqual(a, b) })
	sum := Map(copied, func(s []int) (int, error) {
		runs++
		total := 0
		for _, n := range s {
			total += n
		}
		return total, nil
	})

	sum.Value()
	items.Set([]int{1, 2})
	sum.Value()
	if runs != 1 {
		t.Errorf("deep-equal slice should cut off propagation, ran %d times", runs)
	}
}

func TestCycleDetected(t *testing.T) {
	var a *Derived[int]
	b := AutoDerive(func(s *Scope) (int, error) {
		v, err := Read[int](s, a)
		return v + 1, err
	}).Named("b")
	a = AutoDerive(func(s *Scope) (int, error) {
		return Read[int](s, b)
	}).Named("a")

	_, err := a.Value()
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if got := strings.Join(ce.Path, " -> "); got != "a -> b -> a" {
		t.Errorf("unexpected cycle path %q", got)
	}

	var ev *EvaluationError
	if errors.As(err, &ev) {
		t.Errorf("cycle should not be reported as an evaluation error")
	}
}

func TestSelfCycle(t *testing.T) {
	var self *Derived[int]
	self = AutoDerive(func(s *Scope) (int, error) {
		return Read[int](s, self)
	})

	if _, err := self.Value(); !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestEvaluationErrorPropagates(t *testing.T) {
	errNegative := errors.New("negative")
	count := NewBox(-1)
	checked := Map(count, func(n int) (int, error) {
		if n < 0 {
			return 0, errNegative
		}
		return n, nil
	}).Named("checked")
	doubled := Map(checked, func(n int) (int, error) { return n * 2, nil })

	_, err := doubled.Value()
	if !errors.Is(err, errNegative) {
		t.Fatalf("expected errNegative, got %v", err)
	}
	var ev *EvaluationError
	if !errors.As(err, &ev) {
		t.Fatalf("expected *EvaluationError, got %T", err)
	}
	if ev.Node != "checked" || ev.Kind != KindMap {
		t.Errorf("error attributed to %s (%s), want checked (map)", ev.Node, ev.Kind)
	}

	count.Set(4)
	if v, err := doubled.Value(); err != nil || v != 8 {
		t.Errorf("Value() = %d, %v; want 8, nil", v, err)
	}
}

func TestEvaluationPanicBecomesError(t *testing.T) {
	d := Map(NewBox(0), func(n int) (int, error) {
		return 10 / n, nil
	})

	_, err := d.Value()
	var ev *EvaluationError
	if !errors.As(err, &ev) {
		t.Fatalf("expected *EvaluationError, got %v", err)
	}
	if !strings.Contains(ev.Err.Error(), "panic") {
		t.Errorf("expected panic to be described, got %v", ev.Err)
	}
	if d.State() != StateDirty {
		t.Errorf("expected failed derivation to stay %s, got %s", StateDirty, d.State())
	}
}

func TestFlatMapSelectsSource(t *testing.T) {
	useX := NewBox(true)
	x := NewBox(1)
	y := NewBox(2)
	picked := FlatMap(useX, func(b bool) (Source[int], error) {
		if b {
			return x, nil
		}
		return y, nil
	})

	if v, _ := picked.Value(); v != 1 {
		t.Errorf("expected 1, got %d", v)
	}

	useX.Set(false)
	if v, _ := picked.Value(); v != 2 {
		t.Errorf("expected 2, got %d", v)
	}

	x.Set(100)
	if picked.State() != StateClean {
		t.Errorf("deselected source should no longer be a dependency")
	}
}

func TestFlatMapConstantAndNil(t *testing.T) {
	n := NewBox(1)
	fm := FlatMap(n, func(v int) (Source[string], error) {
		if v == 0 {
			return nil, nil
		}
		return Constant(strings.Repeat("*", v)), nil
	})

	if v, _ := fm.Value(); v != "*" {
		t.Errorf("expected *, got %q", v)
	}

	n.Set(0)
	if _, err := fm.Value(); !errors.Is(err, ErrNilSource) {
		t.Errorf("expected ErrNilSource, got %v", err)
	}
}

func TestAutoDeriveDynamicDependencies(t *testing.T) {
	useA := NewBox(true)
	a := NewBox("a")
	b := NewBox("b")
	runs := 0
	picked := AutoDerive(func(s *Scope) (string, error) {
		runs++
		flag, err := Read[bool](s, useA)
		if err != nil || !flag {
			return Read[string](s, b)
		}
		return Read[string](s, a)
	})

	picked.Value()
	useA.Set(false)
	if v, _ := picked.Value(); v != "b" {
		t.Fatalf("expected b, got %q", v)
	}

	a.Set("changed")
	picked.Value()
	if runs != 2 {
		t.Errorf("stale dependency triggered recompute, ran %d times", runs)
	}
}

func TestDiamondPullRecomputesOnce(t *testing.T) {
	c := NewBox(1)
	a := Map(c, func(n int) (int, error) { return n + 1, nil })
	b := Map(c, func(n int) (int, error) { return n * 2, nil })
	runs := 0
	d := AutoDerive(func(s *Scope) (int, error) {
		runs++
		av, err := Read[int](s, a)
		if err != nil {
			return 0, err
		}
		bv, err := Read[int](s, b)
		return av + bv, err
	})

	d.Value()
	c.Set(2)
	if v, _ := d.Value(); v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
	if runs != 2 {
		t.Errorf("expected 2 evaluations in total, got %d", runs)
	}
}
