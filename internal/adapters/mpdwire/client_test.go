package mpdwire

import (
	"context"
	"testing"

	"github.com/mikey-austin/mpdbridge/internal/mpdtest"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		host    string
		port    int
		network string
		address string
	}{
		{"localhost", 0, "tcp", "localhost:6600"},
		{"10.0.0.2", 6601, "tcp", "10.0.0.2:6601"},
		{"::1", 6600, "tcp", "[::1]:6600"},
		{"/run/mpd/socket", 6600, "unix", "/run/mpd/socket"},
		{"@mpd", 0, "unix", "@mpd"},
	}
	for _, test := range tests {
		ep := Endpoint(test.host, test.port, "secret")
		if ep.Network != test.network || ep.Address != test.address {
			t.Fatalf("Endpoint(%q, %d) = %s %s", test.host, test.port, ep.Network, ep.Address)
		}
		if ep.Password != "secret" {
			t.Fatalf("expected password to carry through")
		}
	}
}

func TestFilterKeepsPercentLiteral(t *testing.T) {
	srv := mpdtest.NewServer(t,
		mpdtest.Song{File: "pure.flac", Tags: map[string]string{"Artist": "100% Pure", "Title": "Quote \"it\""}},
		mpdtest.Song{File: "other.flac", Tags: map[string]string{"Artist": "Other"}},
	)
	c, err := Dial(context.Background(), Endpoint(srv.Host(), srv.Port(), ""))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	found, err := c.Find("artist", "100% Pure")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 || found[0]["file"] != "pure.flac" {
		t.Fatalf("find matched %v", found)
	}

	found, err = c.Search("title", "quote \"it")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0]["file"] != "pure.flac" {
		t.Fatalf("search matched %v", found)
	}
}
