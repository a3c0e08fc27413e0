package mcpclient_test

import (
	"sync"
	"testing"

	"github.com/tidalfoundry/mcpclient"
)

func TestIDGeneratorMonotonic(t *testing.T) {
	gen := mcpclient.NewIDGenerator("req-")

	first := gen.Next()
	second := gen.Next()

	if first.String() == second.String() {
		t.Fatalf("Next() produced duplicate ids: %q", first.String())
	}
	if first.String() != "req-1" {
		t.Errorf("first.String() = %q, want %q", first.String(), "req-1")
	}
	if second.String() != "req-2" {
		t.Errorf("second.String() = %q, want %q", second.String(), "req-2")
	}
}

func TestIDGeneratorConcurrentUnique(t *testing.T) {
	gen := mcpclient.NewIDGenerator("")

	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.Next().String()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d unique ids, want %d", len(seen), n)
	}
}

func TestIDGeneratorNextUUIDUnique(t *testing.T) {
	gen := mcpclient.NewIDGenerator("")
	a := gen.NextUUID()
	b := gen.NextUUID()
	if a.String() == b.String() {
		t.Fatalf("NextUUID() produced duplicate ids: %q", a.String())
	}
}
