// Package discovery finds playback daemons advertised over mDNS.
package discovery

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	// Service is the DNS-SD service type daemons register.
	Service = "_mpd._tcp"
	Domain  = "local."
)

// ErrNotFound is returned by First when nothing answered in time.
var ErrNotFound = errors.New("no daemon discovered")

// Daemon is one advertised daemon.
type Daemon struct {
	Instance string
	Host     string
	Port     int
	Text     []string
}

// Browse reports every daemon seen until ctx is done.
func Browse(ctx context.Context, log *zap.Logger, found func(Daemon)) error {
	if log == nil {
		log = zap.NewNop()
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		seen := map[string]bool{}
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				d, ok := fromEntry(entry)
				if !ok || seen[d.Instance] {
					continue
				}
				seen[d.Instance] = true
				log.Info("discovered daemon", zap.String("instance", d.Instance), zap.String("host", d.Host), zap.Int("port", d.Port))
				found(d)
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return err
	}
	<-ctx.Done()
	<-done
	return nil
}

// First returns the first daemon to answer within timeout.
func First(ctx context.Context, log *zap.Logger, timeout time.Duration) (Daemon, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan Daemon, 1)
	err := Browse(ctx, log, func(d Daemon) {
		select {
		case result <- d:
			cancel()
		default:
		}
	})
	if err != nil {
		return Daemon{}, err
	}
	select {
	case d := <-result:
		return d, nil
	default:
		return Daemon{}, ErrNotFound
	}
}

// fromEntry prefers an IPv4 address, then IPv6, then the advertised host
// name.
func fromEntry(entry *zeroconf.ServiceEntry) (Daemon, bool) {
	if entry == nil || entry.Port <= 0 {
		return Daemon{}, false
	}
	d := Daemon{Instance: entry.Instance, Port: entry.Port, Text: entry.Text}
	switch {
	case len(entry.AddrIPv4) > 0:
		d.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		d.Host = entry.AddrIPv6[0].String()
	default:
		d.Host = strings.TrimSuffix(entry.HostName, ".")
	}
	if d.Host == "" {
		return Daemon{}, false
	}
	return d, true
}
