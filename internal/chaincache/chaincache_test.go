package chaincache

import "testing"

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pp := ProgressPoint{SegmentOffset: 256, Begin: 0, Total: 10, LastIndex: 3}
	c.Put(128, pp)

	got, ok := c.Get(128)
	if !ok || got != pp {
		t.Fatalf("Get = %+v, %v; want %+v, true", got, ok, pp)
	}
}

func TestGetMissOnUnknownKey(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.Get(999); ok {
		t.Fatal("expected miss on unknown chain head")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	c.Put(1, ProgressPoint{})
	if _, ok := c.Get(1); ok {
		t.Fatal("nil cache should never report a hit")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put(1, ProgressPoint{LastIndex: 1})
	c.Put(2, ProgressPoint{LastIndex: 2})
	c.Put(3, ProgressPoint{LastIndex: 3})

	if _, ok := c.Get(1); ok {
		t.Fatal("expected key 1 to be evicted")
	}
	if _, ok := c.Get(3); !ok {
		t.Fatal("expected key 3 to remain cached")
	}
}
