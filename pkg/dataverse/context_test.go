package dataverse

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
)

func newTestContext(opts ...Option) *Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewContext(append([]Option{WithLogger(logger)}, opts...)...)
}

func mustTick(t *testing.T, ctx *Context) {
	t.Helper()
	if err := ctx.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestTapDeliversOncePerTick(t *testing.T) {
	ctx := newTestContext()
	count := NewBox(0)
	tens := Map(count, func(n int) (int, error) { return n * 10, nil })

	var got []int
	tens.Changes(ctx).Tap(func(v int) { got = append(got, v) })

	count.Set(1)
	count.Set(2)
	mustTick(t, ctx)
	if !reflect.DeepEqual(got, []int{20}) {
		t.Errorf("expected [20], got %v", got)
	}

	mustTick(t, ctx)
	if len(got) != 1 {
		t.Errorf("tick without mutations delivered %v", got)
	}
}

func TestTapSkipsUnchangedValue(t *testing.T) {
	ctx := newTestContext()
	count := NewBox(0)
	tens := Map(count, func(n int) (int, error) { return n * 10, nil })

	calls := 0
	tens.Changes(ctx).Tap(func(int) { calls++ })

	count.Set(1)
	count.Set(0)
	mustTick(t, ctx)
	if calls != 0 {
		t.Errorf("reverted mutation delivered %d times", calls)
	}
}

func TestTapBox(t *testing.T) {
	ctx := newTestContext()
	name := NewBox("a")

	var got []string
	name.Changes(ctx).Tap(func(s string) { got = append(got, s) })

	name.Set("b")
	mustTick(t, ctx)
	name.Set("b")
	mustTick(t, ctx)

	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("expected [b], got %v", got)
	}
}

func TestSubscribersCalledInRegistrationOrder(t *testing.T) {
	ctx := newTestContext()
	count := NewBox(0)

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		count.Changes(ctx).Tap(func(int) { order = append(order, name) })
	}

	count.Set(1)
	mustTick(t, ctx)
	if !reflect.DeepEqual(order, []string{"first", "second", "third"}) {
		t.Errorf("unexpected order %v", order)
	}
}

func TestUntapDuringDelivery(t *testing.T) {
	ctx := newTestContext()
	count := NewBox(0)

	var untapSecond Untap
	firstCalls, secondCalls := 0, 0
	count.Changes(ctx).Tap(func(int) {
		firstCalls++
		untapSecond()
	})
	untapSecond = count.Changes(ctx).Tap(func(int) { secondCalls++ })

	count.Set(1)
	mustTick(t, ctx)
	count.Set(2)
	mustTick(t, ctx)

	if firstCalls != 2 {
		t.Errorf("expected first subscriber called twice, got %d", firstCalls)
	}
	if secondCalls != 0 {
		t.Errorf("untapped subscriber was called %d times", secondCalls)
	}
}

func TestUntapReleasesNodes(t *testing.T) {
	ctx := newTestContext()
	a := NewBox(1)
	b := NewBox(2)
	sum := AutoDerive(func(s *Scope) (int, error) {
		x, _ := Read[int](s, a)
		y, _ := Read[int](s, b)
		return x + y, nil
	})
	double := Map(a, func(n int) (int, error) { return n * 2, nil })

	untapSum := sum.Changes(ctx).Tap(func(int) {})
	untapDouble := double.Changes(ctx).Tap(func(int) {})
	if ctx.HotCount() != 4 {
		t.Fatalf("expected 4 hot nodes, got %d", ctx.HotCount())
	}

	untapSum()
	untapSum()
	if ctx.HotCount() != 2 {
		t.Errorf("expected shared box to stay hot, got %d hot nodes", ctx.HotCount())
	}

	b.Set(10)
	if ctx.Pending() != 0 {
		t.Errorf("cold box should not be recorded, got %d pending", ctx.Pending())
	}

	untapDouble()
	if ctx.HotCount() != 0 {
		t.Errorf("expected no hot nodes, got %d", ctx.HotCount())
	}
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	ctx := newTestContext()
	count := NewBox(0)
	tens := Map(count, func(n int) (int, error) { return n * 10, nil })

	tens.Changes(ctx).Tap(func(int) { panic("boom") })
	var got []int
	tens.Changes(ctx).Tap(func(v int) { got = append(got, v) })

	count.Set(1)
	err := ctx.Tick()
	var se *SubscriberError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SubscriberError, got %v", err)
	}
	if se.Panic != "boom" {
		t.Errorf("unexpected panic value %v", se.Panic)
	}
	if !reflect.DeepEqual(got, []int{10}) {
		t.Errorf("second subscriber should still receive the value, got %v", got)
	}

	if v, err := tens.Value(); err != nil || v != 10 {
		t.Errorf("derivation state corrupted: %d, %v", v, err)
	}
}

func TestTickIsNotReentrant(t *testing.T) {
	ctx := newTestContext()
	count := NewBox(0)

	var nested error
	count.Changes(ctx).Tap(func(int) { nested = ctx.Tick() })

	count.Set(1)
	mustTick(t, ctx)
	if !errors.Is(nested, ErrTickInProgress) {
		t.Errorf("expected ErrTickInProgress, got %v", nested)
	}
}

func TestMutationInCallbackDeliveredNextTick(t *testing.T) {
	ctx := newTestContext()
	source := NewBox(0)
	mirror := NewBox(0)

	source.Changes(ctx).Tap(func(v int) { mirror.Set(v) })
	var got []int
	mirror.Changes(ctx).Tap(func(v int) { got = append(got, v) })

	source.Set(3)
	mustTick(t, ctx)
	if len(got) != 0 {
		t.Errorf("mutation from a callback leaked into the same tick: %v", got)
	}

	mustTick(t, ctx)
	if !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("expected [3], got %v", got)
	}
}

func TestDiamondTickRecomputesOnce(t *testing.T) {
	ctx := newTestContext()
	c := NewBox(1)
	a := Map(c, func(n int) (int, error) { return n, nil })
	b := Map(c, func(n int) (int, error) { return n * 2, nil })
	runs := 0
	d := AutoDerive(func(s *Scope) (int, error) {
		runs++
		av, _ := Read[int](s, a)
		bv, _ := Read[int](s, b)
		return av + bv, nil
	})

	var got []int
	d.Changes(ctx).Tap(func(v int) { got = append(got, v) })
	runs = 0

	for i := 2; i <= 4; i++ {
		c.Set(i)
		mustTick(t, ctx)
	}

	if runs != 3 {
		t.Errorf("expected one evaluation per tick, got %d", runs)
	}
	if !reflect.DeepEqual(got, []int{6, 9, 12}) {
		t.Errorf("expected glitch-free sums [6 9 12], got %v", got)
	}
}

func TestPullBeforeTickIsCurrent(t *testing.T) {
	ctx := newTestContext()
	count := NewBox(1)
	tens := Map(count, func(n int) (int, error) { return n * 10, nil })

	var got []int
	tens.Changes(ctx).Tap(func(v int) { got = append(got, v) })

	count.Set(5)
	if v, _ := tens.Value(); v != 50 {
		t.Errorf("expected pull to see 50, got %d", v)
	}

	mustTick(t, ctx)
	if !reflect.DeepEqual(got, []int{50}) {
		t.Errorf("expected [50], got %v", got)
	}
}

func TestMultipleContexts(t *testing.T) {
	ctxA := newTestContext(WithName("a"))
	ctxB := newTestContext(WithName("b"))
	count := NewBox(0)
	tens := Map(count, func(n int) (int, error) { return n * 10, nil })

	var gotA, gotB []int
	untapA := tens.Changes(ctxA).Tap(func(v int) { gotA = append(gotA, v) })
	tens.Changes(ctxB).Tap(func(v int) { gotB = append(gotB, v) })

	count.Set(1)
	mustTick(t, ctxA)
	if !reflect.DeepEqual(gotA, []int{10}) || len(gotB) != 0 {
		t.Fatalf("tick of one context affected another: a=%v b=%v", gotA, gotB)
	}

	mustTick(t, ctxB)
	if !reflect.DeepEqual(gotB, []int{10}) {
		t.Errorf("expected b to receive [10], got %v", gotB)
	}

	untapA()
	count.Set(2)
	mustTick(t, ctxA)
	mustTick(t, ctxB)
	if len(gotA) != 1 {
		t.Errorf("untapped context still delivered: %v", gotA)
	}
	if !reflect.DeepEqual(gotB, []int{10, 20}) {
		t.Errorf("expected b to receive [10 20], got %v", gotB)
	}
}

func TestTickReportsEvaluationErrorOnce(t *testing.T) {
	errNegative := errors.New("negative")
	var stats TickStats
	ctx := newTestContext(WithObserver(ObserverFunc(func(s TickStats, err error) {
		stats = s
	})))

	count := NewBox(1)
	checked := Map(count, func(n int) (int, error) {
		if n < 0 {
			return 0, errNegative
		}
		return n, nil
	})
	plus := Map(checked, func(n int) (int, error) { return n + 1, nil })
	minus := Map(checked, func(n int) (int, error) { return n - 1, nil })

	calls := 0
	plus.Changes(ctx).Tap(func(int) { calls++ })
	minus.Changes(ctx).Tap(func(int) { calls++ })

	count.Set(-1)
	err := ctx.Tick()
	if !errors.Is(err, errNegative) {
		t.Fatalf("expected errNegative, got %v", err)
	}
	if stats.Failures != 1 {
		t.Errorf("expected one failure reported, got %d", stats.Failures)
	}
	if calls != 0 {
		t.Errorf("failed derivations delivered %d times", calls)
	}

	count.Set(5)
	mustTick(t, ctx)
	if calls != 2 {
		t.Errorf("expected both subscribers after recovery, got %d", calls)
	}
}

func TestTapOnFailingDerivationReportsAtTick(t *testing.T) {
	errBroken := errors.New("broken")
	ctx := newTestContext()
	broken := Map(NewBox(0), func(int) (int, error) { return 0, errBroken })

	broken.Changes(ctx).Tap(func(int) {})
	if err := ctx.Tick(); !errors.Is(err, errBroken) {
		t.Errorf("expected errBroken at the next tick, got %v", err)
	}
}

func TestObserverStats(t *testing.T) {
	var stats []TickStats
	ctx := newTestContext(WithObserver(ObserverFunc(func(s TickStats, err error) {
		stats = append(stats, s)
	})))
	count := NewBox(0)
	tens := Map(count, func(n int) (int, error) { return n * 10, nil })
	tens.Changes(ctx).Tap(func(int) {})

	count.Set(1)
	mustTick(t, ctx)

	if len(stats) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(stats))
	}
	s := stats[0]
	if s.Seq != 1 || s.Changed != 1 || s.Dirty != 1 || s.Recomputed != 1 || s.Delivered != 1 || s.Hot != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
	if ctx.Seq() != 1 {
		t.Errorf("expected seq 1, got %d", ctx.Seq())
	}
}

func TestFlatMapRewiresHotDependencies(t *testing.T) {
	ctx := newTestContext()
	useX := NewBox(true)
	x := NewBox(1)
	y := NewBox(2)
	picked := FlatMap(useX, func(b bool) (Source[int], error) {
		if b {
			return x, nil
		}
		return y, nil
	})

	var got []int
	picked.Changes(ctx).Tap(func(v int) { got = append(got, v) })

	useX.Set(false)
	mustTick(t, ctx)
	x.Set(100)
	if ctx.Pending() != 0 {
		t.Errorf("deselected source is still hot")
	}
	mustTick(t, ctx)
	y.Set(3)
	mustTick(t, ctx)

	if !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("expected [2 3], got %v", got)
	}
	if ctx.HotCount() != 3 {
		t.Errorf("expected flatMap, selector and y hot, got %d", ctx.HotCount())
	}
}
