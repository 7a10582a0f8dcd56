package player

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mikey-austin/mpdbridge/internal/ports"
)

// lookup finds key in rec, falling back to a case-insensitive match since
// tag keys keep whatever case the daemon sent.
func lookup(rec ports.Record, key string) (string, bool) {
	if v, ok := rec[key]; ok {
		return v, true
	}
	for k, v := range rec {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func intField(rec ports.Record, key string, def int) int {
	v, ok := lookup(rec, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func int64Field(rec ports.Record, key string, def int64) int64 {
	v, ok := lookup(rec, key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}
	return n
}

func floatField(rec ports.Record, key string, def float64) float64 {
	v, ok := lookup(rec, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) {
		return def
	}
	return f
}

func boolField(rec ports.Record, key string) bool {
	v, _ := lookup(rec, key)
	switch strings.TrimSpace(v) {
	case "1", "oneshot":
		return true
	}
	return false
}

func stringField(rec ports.Record, key string) string {
	v, _ := lookup(rec, key)
	return v
}

// splitPair parses "a:b" or "a-b" style values. A missing right side is
// reported as ok2 == false.
func splitPair(v string, sep string) (left float64, right float64, ok1 bool, ok2 bool) {
	l, r, found := strings.Cut(v, sep)
	if f, err := strconv.ParseFloat(strings.TrimSpace(l), 64); err == nil {
		left, ok1 = f, true
	}
	if found {
		if f, err := strconv.ParseFloat(strings.TrimSpace(r), 64); err == nil {
			right, ok2 = f, true
		}
	}
	return left, right, ok1, ok2
}

func unixField(rec ports.Record, key string) int64 {
	v, ok := lookup(rec, key)
	if !ok {
		return 0
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return ts.Unix()
}
