package idgen

import (
	"strings"
	"testing"
)

func TestNewIDUnique(t *testing.T) {
	g := Generator{Prefix: "mpd"}
	seen := map[string]bool{}
	for range 100 {
		id := g.NewID()
		if !strings.HasPrefix(id, "mpd-") || len(id) != len("mpd-")+32 {
			t.Fatalf("unexpected id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewIDNoPrefix(t *testing.T) {
	if id := (Generator{}).NewID(); len(id) != 32 {
		t.Fatalf("unexpected id %q", id)
	}
}
