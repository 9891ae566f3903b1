package fn

import (
	"context"
	"errors"
	"testing"
)

func TestSortedBy_StableAscending(t *testing.T) {
	type pair struct {
		name string
		km   float64
	}
	in := []pair{{"c", 2.0}, {"a", 1.0}, {"b", 1.0}, {"d", 0.5}}
	out := SortedBy(in, func(p pair) float64 { return p.km })

	want := []string{"d", "a", "b", "c"}
	for i, p := range out {
		if p.name != want[i] {
			t.Fatalf("order = %v, want %v", out, want)
		}
	}
	if in[0].name != "c" {
		t.Error("SortedBy must not mutate its input")
	}
}

func TestFilterMap(t *testing.T) {
	out := FilterMap([]int{1, 2, 3, 4}, func(n int) (int, bool) { return n * 10, n%2 == 0 })
	if len(out) != 2 || out[0] != 20 || out[1] != 40 {
		t.Errorf("FilterMap = %v", out)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: 1, MaxWait: 1},
		func(context.Context) Result[int] {
			attempts++
			if attempts < 3 {
				return Err[int](errors.New("transient"))
			}
			return Ok(42)
		})
	if v, err := r.Unwrap(); err != nil || v != 42 {
		t.Errorf("Retry = (%d, %v), want (42, nil)", v, err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: 1, MaxWait: 1},
		func(context.Context) Result[int] { return Err[int](boom) })
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestParMap_PreservesOrder(t *testing.T) {
	out := ParMap([]int{1, 2, 3, 4, 5}, 2, func(n int) int { return n * n })
	for i, v := range out {
		if want := (i + 1) * (i + 1); v != want {
			t.Errorf("out[%d] = %d, want %d", i, v, want)
		}
	}
}
