package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("Living Room", Service, Domain)
	entry.Port = 6600
	entry.HostName = "music.local."
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}

	d, ok := fromEntry(entry)
	if !ok || d.Host != "192.168.1.20" || d.Port != 6600 || d.Instance != "Living Room" {
		t.Fatalf("unexpected daemon %+v", d)
	}

	entry.AddrIPv4 = nil
	if d, _ := fromEntry(entry); d.Host != "fe80::1" {
		t.Fatalf("expected ipv6 host, got %q", d.Host)
	}

	entry.AddrIPv6 = nil
	if d, _ := fromEntry(entry); d.Host != "music.local" {
		t.Fatalf("expected host name, got %q", d.Host)
	}
}

func TestFromEntryRejectsIncomplete(t *testing.T) {
	if _, ok := fromEntry(nil); ok {
		t.Fatalf("nil entry accepted")
	}
	entry := zeroconf.NewServiceEntry("x", Service, Domain)
	entry.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.1")}
	if _, ok := fromEntry(entry); ok {
		t.Fatalf("entry without port accepted")
	}
	entry.Port = 6600
	entry.AddrIPv4 = nil
	if _, ok := fromEntry(entry); ok {
		t.Fatalf("entry without address accepted")
	}
}
