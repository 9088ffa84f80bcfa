package idgen_test

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/RayBen445/ChatBot/adapters/idgen"
)

var uuidV4 = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()
	if !uuidV4.MatchString(id) {
		t.Errorf("ID %s doesn't match UUID v4 format", id)
	}
}

func TestUUID_Prefix(t *testing.T) {
	id := idgen.UUID{Prefix: "disc_"}.New()
	if !strings.HasPrefix(id, "disc_") || !uuidV4.MatchString(id) {
		t.Errorf("ID = %s, want disc_<uuid>", id)
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("d")

	for _, want := range []string{"d1", "d2", "d3"} {
		if got := g.New(); got != want {
			t.Errorf("New() = %s, want %s", got, want)
		}
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("unique IDs = %d, want 50", len(seen))
	}
}
