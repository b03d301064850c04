package hashmap

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/queelius/zeroipc/memory"
)

func newTestMemory(t *testing.T) *memory.Memory {
	t.Helper()
	name := fmt.Sprintf("/zeroipc-test-map-%s-%d", t.Name(), os.Getpid())
	mem, err := memory.Create(name, 16384, 8)
	if err != nil {
		t.Fatalf("memory.Create: %v", err)
	}
	t.Cleanup(func() {
		mem.Close()
		memory.Unlink(name)
	})
	return mem
}

func i32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func f32(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func asF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// TestInsertFindUpdateErase implements the concrete scenario: capacity=100,
// key=int32, value=float32. Insert (10,3.14),(20,2.718),(30,1.618);
// find(10)==3.14; update(10,99.0); find(10)==99.0; erase(20)->true;
// find(20)==none; size()==2.
func TestInsertFindUpdateErase(t *testing.T) {
	mem := newTestMemory(t)
	m, err := New(mem, "readings", 100, 4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !m.Insert(i32(10), f32(3.14)) {
		t.Fatal("Insert(10, 3.14) should succeed")
	}
	if !m.Insert(i32(20), f32(2.718)) {
		t.Fatal("Insert(20, 2.718) should succeed")
	}
	if !m.Insert(i32(30), f32(1.618)) {
		t.Fatal("Insert(30, 1.618) should succeed")
	}

	v, ok := m.Find(i32(10))
	if !ok || asF32(v) != 3.14 {
		t.Fatalf("Find(10) = (%v,%v), want (3.14,true)", asF32(v), ok)
	}

	if !m.Insert(i32(10), f32(99.0)) {
		t.Fatal("update Insert(10, 99.0) should succeed")
	}
	v, ok = m.Find(i32(10))
	if !ok || asF32(v) != 99.0 {
		t.Fatalf("Find(10) after update = (%v,%v), want (99.0,true)", asF32(v), ok)
	}

	if !m.Erase(i32(20)) {
		t.Fatal("Erase(20) should return true")
	}
	if _, ok := m.Find(i32(20)); ok {
		t.Fatal("Find(20) after erase should miss")
	}

	if got := m.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2", got)
	}
}

func TestFindMissOnEmptyMap(t *testing.T) {
	mem := newTestMemory(t)
	m, err := New(mem, "empty", 16, 4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := m.Find(i32(1)); ok {
		t.Fatal("Find on an empty map should miss")
	}
	if m.Contains(i32(1)) {
		t.Fatal("Contains on an empty map should be false")
	}
}

func TestEraseThenReinsertReusesTombstone(t *testing.T) {
	mem := newTestMemory(t)
	m, err := New(mem, "tombstone", 4, 4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := int32(0); i < 4; i++ {
		if !m.Insert(i32(i), f32(float32(i))) {
			t.Fatalf("Insert(%d) should succeed while the map has room", i)
		}
	}
	if !m.Erase(i32(1)) {
		t.Fatal("Erase(1) should succeed")
	}
	if !m.Insert(i32(99), f32(9.9)) {
		t.Fatal("Insert after Erase should reuse the tombstoned slot")
	}
	v, ok := m.Find(i32(99))
	if !ok || asF32(v) != 9.9 {
		t.Fatal("newly inserted key should be findable")
	}
	if got := m.Size(); got != 4 {
		t.Fatalf("Size() = %d, want 4", got)
	}
}

func TestClearResetsMap(t *testing.T) {
	mem := newTestMemory(t)
	m, err := New(mem, "clear", 8, 4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Insert(i32(1), f32(1))
	m.Insert(i32(2), f32(2))
	m.Clear()
	if m.Size() != 0 {
		t.Fatalf("Size() after Clear = %d, want 0", m.Size())
	}
	if m.Contains(i32(1)) || m.Contains(i32(2)) {
		t.Fatal("Clear should remove all entries")
	}
}

func TestInsertRejectsMismatchedSizes(t *testing.T) {
	mem := newTestMemory(t)
	m, err := New(mem, "sized", 8, 4, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Insert([]byte{1, 2}, f32(1)) {
		t.Fatal("Insert should reject a key of the wrong size")
	}
	if m.Insert(i32(1), []byte{1, 2}) {
		t.Fatal("Insert should reject a value of the wrong size")
	}
}
