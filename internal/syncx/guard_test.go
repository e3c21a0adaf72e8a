package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard(42)

	if got := g.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}

	g.Set(100)
	if got := g.Get(); got != 100 {
		t.Errorf("Get() after Set = %d, want 100", got)
	}
}

func TestGuardUpdate(t *testing.T) {
	g := NewGuard([]string{"a"})
	g.Update(func(v *[]string) { *v = append(*v, "b") })

	if got := g.Get(); len(got) != 2 || got[1] != "b" {
		t.Errorf("Get() after Update = %v, want [a b]", got)
	}
}

func TestRead(t *testing.T) {
	g := NewGuard([]int{1, 2, 3})

	if n := Read(g, func(v []int) int { return len(v) }); n != 3 {
		t.Errorf("Read() = %d, want 3", n)
	}
}

func TestGuardConcurrentUpdate(t *testing.T) {
	g := NewGuard(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Update(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	if got := g.Get(); got != 100 {
		t.Errorf("Get() after concurrent updates = %d, want 100", got)
	}
}

func TestMap(t *testing.T) {
	m := NewMap[string, int]()

	m.Store("a", 1)
	m.Store("b", 2)

	if v, ok := m.Load("a"); !ok || v != 1 {
		t.Errorf("Load(a) = (%d, %v), want (1, true)", v, ok)
	}
	if _, ok := m.Load("missing"); ok {
		t.Error("Load(missing) should report absent")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}

	if !m.Delete("a") {
		t.Error("Delete(a) = false, want true")
	}
	if m.Delete("a") {
		t.Error("second Delete(a) = true, want false")
	}
	if m.Len() != 1 {
		t.Errorf("Len() after delete = %d, want 1", m.Len())
	}
}

func TestMapSnapshotIsCopy(t *testing.T) {
	m := NewMap[string, int]()
	m.Store("a", 1)

	snap := m.Snapshot()
	snap["b"] = 2

	if m.Len() != 1 {
		t.Errorf("mutating snapshot changed map: Len() = %d", m.Len())
	}
}

func TestMapConcurrent(t *testing.T) {
	m := NewMap[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Store(i, i)
			m.Load(i)
			_ = m.Snapshot()
		}()
	}
	wg.Wait()

	if m.Len() != 50 {
		t.Errorf("Len() = %d, want 50", m.Len())
	}
}
