package mpc

import (
	"encoding/json"
	"testing"
)

func FuzzValidateCallEnvelope(f *testing.F) {
	f.Add("id", "state", int64(1), "from", `"h-1"`)
	f.Add("", "", int64(0), "", "")

	f.Fuzz(func(t *testing.T, id string, fn string, ts int64, from string, arg string) {
		call := CallEnvelope{
			ID:   id,
			Fn:   fn,
			TS:   ts,
			From: from,
			Args: []json.RawMessage{json.RawMessage(arg)},
		}
		_ = ValidateCallEnvelope(call)
	})
}

func FuzzParseTag(f *testing.F) {
	f.Add("artist")
	f.Add("ANY")
	f.Add("album_artist")

	f.Fuzz(func(t *testing.T, name string) {
		tag, ok := ParseTag(name)
		if ok && tag == "" {
			t.Fatalf("known tag resolved to empty name")
		}
	})
}
