package worker

import (
	"errors"
	"strconv"
	"testing"
)

func TestProcessPreservesOrder(t *testing.T) {
	p := NewPool[int, string](4)
	items := []int{3, 1, 4, 1, 5, 9, 2, 6}
	results := p.Process(items, func(n int) (string, error) {
		return strconv.Itoa(n * 10), nil
	})
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	for i, r := range results {
		want := strconv.Itoa(items[i] * 10)
		if r.Value != want || r.Index != i {
			t.Errorf("result[%d] = %+v, want value %s", i, r, want)
		}
	}
}

func TestProcessCapturesPerItemErrors(t *testing.T) {
	p := NewPool[int, int](2)
	errOdd := errors.New("odd")
	results := p.Process([]int{1, 2, 3}, func(n int) (int, error) {
		if n%2 == 1 {
			return 0, errOdd
		}
		return n, nil
	})
	if results[0].Err == nil || results[2].Err == nil {
		t.Error("odd items should carry errors")
	}
	if results[1].Err != nil || results[1].Value != 2 {
		t.Errorf("even item = %+v", results[1])
	}
}

func TestProcessEmptyInput(t *testing.T) {
	p := NewPool[string, string](0)
	if got := p.Process(nil, func(s string) (string, error) { return s, nil }); got != nil {
		t.Errorf("empty input = %v, want nil", got)
	}
}

func TestProcessSingleWorker(t *testing.T) {
	p := NewPool[int, int](1)
	results := p.Process([]int{1, 2, 3}, func(n int) (int, error) { return n + 1, nil })
	for i, r := range results {
		if r.Value != i+2 {
			t.Errorf("result[%d] = %d", i, r.Value)
		}
	}
}
