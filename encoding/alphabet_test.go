package encoding

import "testing"

func TestAlphabet(t *testing.T) {
	a := NewAlphabet()
	id0 := a.Add("hello")
	id1 := a.Add("world")
	id2 := a.Add("hello") // duplicate

	if id0 != 0 || id1 != 1 || id2 != 0 {
		t.Errorf("IDs: %d, %d, %d; want 0, 1, 0", id0, id1, id2)
	}
	if a.Size() != 2 {
		t.Errorf("Size = %d, want 2", a.Size())
	}
	if a.Get("missing") != -1 {
		t.Error("Get missing should return -1")
	}
	if a.String(1) != "world" {
		t.Errorf("String(1) = %q, want world", a.String(1))
	}
	if a.String(5) != "" {
		t.Error("String out of range should be empty")
	}
}

func TestFrozenAlphabet(t *testing.T) {
	a := NewAlphabet()
	a.Codes([]string{"a", "b"})
	a.Frozen = true

	codes := a.Codes([]string{"b", "c"})
	if codes[0] != 1 || codes[1] != -1 {
		t.Errorf("codes = %v, want [1 -1]", codes)
	}
	if a.Size() != 2 {
		t.Errorf("frozen alphabet grew to %d", a.Size())
	}
}
