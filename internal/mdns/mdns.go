// Package mdns advertises the telemetry server on the local network and
// discovers other gophaser instances.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/rjboer/gophaser/internal/errs"
)

const (
	// Service is the DNS-SD service type of the telemetry server.
	Service = "_gophaser._tcp"
	// Domain is the mDNS domain.
	Domain = "local."
)

// Host represents a discovered gophaser instance.
type Host struct {
	Instance  string // Advertised name: "gophaser on bench"
	Hostname  string // DNS hostname: "bench.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// URL returns the HTTP address of the host, preferring IPv4.
func (h Host) URL() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(h.Port))
}

// Advertisement is a running registration.
type Advertisement struct {
	server *zeroconf.Server
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Register announces instance on port with the given TXT records.
func Register(instance string, port int, txt []string) (*Advertisement, error) {
	if strings.TrimSpace(instance) == "" {
		return nil, errs.Configuration("mdns instance name is empty")
	}
	if port <= 0 || port > 65535 {
		return nil, errs.Configuration("mdns port %d out of range", port)
	}
	server, err := zeroconf.Register(instance, Service, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", Service, err)
	}
	return &Advertisement{server: server}, nil
}

// PortFromAddr extracts the port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, errs.Configuration("listen address %q: %v", addr, err)
	}
	port, err := net.LookupPort("tcp", p)
	if err != nil || port == 0 {
		return 0, errs.Configuration("listen address %q has no usable port", addr)
	}
	return port, nil
}

// Browse performs a blocking mDNS browse for gophaser instances until
// timeout elapses or ctx is cancelled. Hosts are deduplicated and sorted by
// instance name.
func Browse(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				h := hostFromEntry(e)
				resultMap[hostKey(h)] = h
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}

	<-done

	out := make([]Host, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out, nil
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       append([]string{}, e.Text...),
	}
}

func hostKey(h Host) string {
	return fmt.Sprintf("%s|%d", h.Hostname, h.Port)
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
