package tinylfu

import (
	"testing"
)

func TestAddAlreadyInCache(t *testing.T) {
	c := New[string, string](100, 10000)

	c.Add("foo", "bar")

	val, _ := c.Get("foo")
	if val != "bar" {
		t.Errorf("c.Get(foo)=%q, want %q", val, "bar")
	}

	c.Add("foo", "baz")

	val, _ = c.Get("foo")
	if val != "baz" {
		t.Errorf("c.Get(foo)=%q, want %q", val, "baz")
	}
}

func TestArrayKeys(t *testing.T) {
	c := New[[32]byte, int](64, 640)
	var k1, k2 [32]byte
	k1[0] = 1
	k2[31] = 1

	c.Add(k1, 1)
	c.Add(k2, 2)

	if v, ok := c.Get(k1); !ok || v != 1 {
		t.Errorf("c.Get(k1)=%d, %t, want 1, true", v, ok)
	}
	if v, ok := c.Get(k2); !ok || v != 2 {
		t.Errorf("c.Get(k2)=%d, %t, want 2, true", v, ok)
	}
	if !c.Remove(k1) {
		t.Errorf("c.Remove(k1)=false, want true")
	}
	if _, ok := c.Get(k1); ok {
		t.Errorf("k1 still cached after removal")
	}
	if c.Len() != 1 {
		t.Errorf("c.Len()=%d, want 1", c.Len())
	}
}

func TestBounded(t *testing.T) {
	c := New[int, int](10, 100)
	for i := range 1000 {
		c.Add(i, i)
		c.Get(i)
	}
	if c.Len() > 10 {
		t.Errorf("c.Len()=%d, want at most 10", c.Len())
	}
}

func TestDoorkeeper(t *testing.T) {
	d := newDoorkeeper(100, 0.01)
	if d.allow(42) {
		t.Errorf("first sighting allowed")
	}
	if !d.allow(42) {
		t.Errorf("second sighting rejected")
	}
	d.reset()
	if d.allow(42) {
		t.Errorf("allowed after reset")
	}
}

var SinkString string
var SinkBool bool

func BenchmarkGet(b *testing.B) {
	t := New[string, string](64, 640)
	key := "some arbitrary key"
	val := "some arbitrary value"
	t.Add(key, val)
	for i := 0; i < b.N; i++ {
		SinkString, SinkBool = t.Get(key)
	}
}
