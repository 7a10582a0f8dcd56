package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Generator mints unguessable identifiers from 128 random bits. Prefix, when
// set, is joined with a dash.
type Generator struct {
	Prefix string
}

// NewID returns a fresh identifier, or "" if the random source fails.
func (g Generator) NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ""
	}
	id := hex.EncodeToString(b[:])
	if g.Prefix == "" {
		return id
	}
	return g.Prefix + "-" + id
}
