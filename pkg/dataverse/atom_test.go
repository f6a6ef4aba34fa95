package dataverse

import (
	"errors"
	"reflect"
	"testing"
)

func TestBoxBasic(t *testing.T) {
	count := NewBox(0)

	if count.Get() != 0 {
		t.Errorf("expected initial value 0, got %d", count.Get())
	}

	count.Set(5)
	if count.Get() != 5 {
		t.Errorf("expected value 5, got %d", count.Get())
	}

	count.Update(func(n int) int { return n * 2 })
	if count.Get() != 10 {
		t.Errorf("expected value 10, got %d", count.Get())
	}

	v, err := count.Value()
	if err != nil || v != 10 {
		t.Errorf("Value() = %d, %v; want 10, nil", v, err)
	}
}

func TestBoxDerivationFollowsSets(t *testing.T) {
	name := NewBox("a").Named("name")
	d := name.Derivation()

	if d.Name() != "name" {
		t.Errorf("expected derivation named after the box, got %q", d.Name())
	}
	if d.Kind() != KindWrap {
		t.Errorf("expected kind %s, got %s", KindWrap, d.Kind())
	}

	name.Set("b")
	v, err := d.Value()
	if err != nil || v != "b" {
		t.Errorf("Value() = %q, %v; want b, nil", v, err)
	}
}

func TestDictKeysAndMutation(t *testing.T) {
	d := NewDict(map[string]int{"b": 2, "a": 1})

	if got := d.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected sorted initial keys, got %v", got)
	}

	d.SetProp("c", 3)
	d.SetProp("a", 10)
	if got := d.Keys(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("expected insertion order, got %v", got)
	}
	if v, ok := d.Get("a"); !ok || v != 10 {
		t.Errorf("Get(a) = %d, %v; want 10, true", v, ok)
	}

	if !d.DeleteProp("a") {
		t.Error("expected DeleteProp to report an existing key")
	}
	if d.DeleteProp("a") {
		t.Error("expected DeleteProp to report a missing key")
	}
	if d.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", d.Len())
	}
}

func TestDictKeysDerivationIgnoresValueChanges(t *testing.T) {
	d := NewDict(map[string]int{"a": 1})
	runs := 0
	keys := Map(d.KeysDerivation(), func(k []string) (int, error) {
		runs++
		return len(k), nil
	})

	if n, _ := keys.Value(); n != 1 {
		t.Fatalf("expected 1 key, got %d", n)
	}

	d.SetProp("a", 2)
	keys.Value()
	if runs != 1 {
		t.Errorf("value change should not recompute key count, ran %d times", runs)
	}

	d.SetProp("b", 3)
	if n, _ := keys.Value(); n != 2 {
		t.Errorf("expected 2 keys, got %d", n)
	}
}

func TestArrayIndexOutOfRange(t *testing.T) {
	arr := NewArray([]string{"0", "1"})

	if _, err := arr.Index(2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}

	err := arr.SetIndex(-1, "x")
	var re *RangeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RangeError, got %v", err)
	}
	if re.Op != "setIndex" || re.Index != -1 || re.Len != 2 {
		t.Errorf("unexpected range error %+v", re)
	}

	if got := arr.Items(); !reflect.DeepEqual(got, []string{"0", "1"}) {
		t.Errorf("failed mutation changed the array: %v", got)
	}
}

func TestArraySplice(t *testing.T) {
	arr := NewArray([]string{"a", "b", "c", "d"})

	removed, err := arr.Splice(1, 2, "x")
	if err != nil {
		t.Fatalf("Splice: %v", err)
	}
	if !reflect.DeepEqual(removed, []string{"b", "c"}) {
		t.Errorf("expected [b c] removed, got %v", removed)
	}
	if got := arr.Items(); !reflect.DeepEqual(got, []string{"a", "x", "d"}) {
		t.Errorf("expected [a x d], got %v", got)
	}

	if _, err := arr.Splice(3, 0, "e"); err != nil {
		t.Fatalf("Splice at end: %v", err)
	}
	if got := arr.Items(); !reflect.DeepEqual(got, []string{"a", "x", "d", "e"}) {
		t.Errorf("expected [a x d e], got %v", got)
	}

	removed, err = arr.Splice(1, 100)
	if err != nil {
		t.Fatalf("Splice clamp: %v", err)
	}
	if !reflect.DeepEqual(removed, []string{"x", "d", "e"}) {
		t.Errorf("expected clamped removal, got %v", removed)
	}

	if _, err := arr.Splice(5, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for start past end, got %v", err)
	}
}

func TestArrayElementTracksOwnSlot(t *testing.T) {
	arr := NewArray([]int{1, 2, 3})
	runs := 0
	second := Map(arr.Derived().Index(1), func(n int) (int, error) {
		runs++
		return n * 10, nil
	})

	if v, _ := second.Value(); v != 20 {
		t.Fatalf("expected 20, got %d", v)
	}

	arr.SetIndex(0, 100)
	arr.Push(4)
	second.Value()
	if runs != 1 {
		t.Errorf("unrelated mutations recomputed the element %d times", runs)
	}

	arr.SetIndex(1, 5)
	if v, _ := second.Value(); v != 50 {
		t.Errorf("expected 50, got %d", v)
	}
}

func TestArrayElementOutOfRangeRecovers(t *testing.T) {
	arr := NewArray([]int{1})
	third := arr.Derived().Index(2)

	if _, err := third.Value(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}

	arr.Push(2, 3)
	v, err := third.Value()
	if err != nil || v != 3 {
		t.Errorf("Value() = %d, %v; want 3, nil", v, err)
	}
}

func TestArrayDerivedIsShared(t *testing.T) {
	arr := NewArray([]int{1})
	if arr.Derived() != arr.Derived() {
		t.Error("expected one derived view per array")
	}
	if arr.Derived().Index(0) != arr.Derived().Index(0) {
		t.Error("expected element derivations to be memoized")
	}
}
