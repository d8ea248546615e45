package pipeline

import "testing"

func TestReclaimerRunsOnce(t *testing.T) {
	r := &Reclaimer{}
	count := 0
	r.Add("counter", func() { count++ })

	r.Reclaim()
	r.Reclaim()
	r.Reclaim()

	if count != 1 {
		t.Errorf("cleanup ran %d times, want 1", count)
	}
}

func TestReclaimerReverseOrder(t *testing.T) {
	r := &Reclaimer{}
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		r.Add(name, func() { order = append(order, name) })
	}

	r.Reclaim()

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("ran %d steps, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("step %d = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestReclaimerAddAfterReclaim(t *testing.T) {
	r := &Reclaimer{}
	r.Reclaim()

	ran := false
	r.Add("late", func() { ran = true })
	if !ran {
		t.Error("step added after reclamation did not run immediately")
	}
}
