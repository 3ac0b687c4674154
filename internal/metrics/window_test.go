package metrics

import (
	"reflect"
	"testing"
)

func TestLatencyWindowEvictsOldestFirst(t *testing.T) {
	w := newLatencyWindow(3)
	for _, v := range []float64{1, 2} {
		w.push(v)
	}
	if got := w.values(); !reflect.DeepEqual(got, []float64{1, 2}) {
		t.Fatalf("values() = %v before wrap", got)
	}

	for _, v := range []float64{3, 4, 5} {
		w.push(v)
	}
	if got := w.values(); !reflect.DeepEqual(got, []float64{3, 4, 5}) {
		t.Fatalf("values() = %v after wrap", got)
	}
	if n := len(w.values()); n != 3 {
		t.Errorf("len(values()) = %d, want 3", n)
	}
}

func TestLatencyWindowValuesIsACopy(t *testing.T) {
	w := newLatencyWindow(2)
	w.push(10)
	vals := w.values()
	vals[0] = 99
	if w.values()[0] != 10 {
		t.Errorf("mutating values() leaked into the window")
	}
}

func TestLatencyWindowDefaultCapacity(t *testing.T) {
	if c := newLatencyWindow(-1).capacity(); c != DefaultWindowSize {
		t.Errorf("capacity() = %d, want %d", c, DefaultWindowSize)
	}
}
