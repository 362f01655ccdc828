package vcontrold

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// probeTimeout bounds a single TCP probe during discovery.
	probeTimeout = 200 * time.Millisecond

	// probeConcurrency caps the number of probes in flight.
	probeConcurrency = 64

	// minScanBits rejects prefixes larger than a /16.
	minScanBits = 16
)

// DiscoveryResult represents a host that accepted a connection on the
// daemon port.
type DiscoveryResult struct {
	IP   string
	Port int
}

// Discover searches the local /24 subnets for vcontrold daemons.
// The context controls the overall discovery timeout.
// If the context has no deadline, a 3-second timeout is applied.
func Discover(ctx context.Context, opts ...ClientOption) ([]DiscoveryResult, error) {
	// Apply default timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}

	ips, err := getLocalIPs()
	if err != nil {
		return nil, fmt.Errorf("get local IPs: %w", err)
	}

	var results []DiscoveryResult
	for _, ip := range ips {
		prefix, err := ip.Prefix(24)
		if err != nil {
			continue
		}
		found, err := DiscoverSubnet(ctx, prefix, opts...)
		if err != nil {
			return results, err
		}
		results = append(results, found...)
	}
	return results, nil
}

// DiscoverSubnet probes every host address of prefix on the daemon port.
// Hosts that do not answer before the context ends are left out; running
// out of time is not an error.
func DiscoverSubnet(ctx context.Context, prefix netip.Prefix, opts ...ClientOption) ([]DiscoveryResult, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}
	if !prefix.Addr().Is4() {
		return nil, errors.New("only IPv4 prefixes can be scanned")
	}
	if prefix.Bits() < minScanBits {
		return nil, fmt.Errorf("prefix %s is too large to scan", prefix)
	}

	var (
		mu      sync.Mutex
		results []DiscoveryResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)

	for _, addr := range hostAddrs(prefix.Masked()) {
		if gctx.Err() != nil {
			break
		}
		addr := addr
		g.Go(func() error {
			if probe(gctx, cfg, addr) {
				mu.Lock()
				results = append(results, DiscoveryResult{IP: addr.String(), Port: cfg.port})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(results, func(a, b DiscoveryResult) int {
		return netip.MustParseAddr(a.IP).Compare(netip.MustParseAddr(b.IP))
	})
	return results, nil
}

func probe(ctx context.Context, cfg *clientConfig, addr netip.Addr) bool {
	dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	conn, err := cfg.dial(dialCtx, "tcp", net.JoinHostPort(addr.String(), strconv.Itoa(cfg.port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// hostAddrs lists the host addresses of p, leaving out the network and
// broadcast address when the prefix has room for them.
func hostAddrs(p netip.Prefix) []netip.Addr {
	var addrs []netip.Addr
	for a := p.Addr(); p.Contains(a); a = a.Next() {
		addrs = append(addrs, a)
		if !a.Next().IsValid() {
			break
		}
	}
	if p.Bits() <= 30 && len(addrs) > 2 {
		addrs = addrs[1 : len(addrs)-1]
	}
	return addrs
}

func getLocalIPs() ([]netip.Addr, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []netip.Addr
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				ips = append(ips, netip.AddrFrom4([4]byte(ip4)))
			}
		}
	}
	return ips, nil
}
