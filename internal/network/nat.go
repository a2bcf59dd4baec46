package network

// NAT traversal: discover an external address and keep a port mapping
// alive for the lifetime of the node. Grounded on the discovery/mapping
// calls in the teacher's core/nat_traversal.go, restructured around a
// renewable lease rather than a one-shot mapping: NAT-PMP and UPnP leases
// both expire, and the teacher's version never refreshed one, so a long
// running node would silently fall out of reachability after an hour.

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/sirupsen/logrus"
)

const (
	natLeaseDuration = time.Hour
	natRenewalMargin = 5 * time.Minute
)

// natBackend identifies which protocol answered discovery.
type natBackend int

const (
	natBackendNone natBackend = iota
	natBackendUPnP
	natBackendPMP
)

func (b natBackend) String() string {
	switch b {
	case natBackendUPnP:
		return "upnp"
	case natBackendPMP:
		return "nat-pmp"
	default:
		return "none"
	}
}

// NATManager discovers the LAN gateway's external address and maintains a
// renewable TCP port mapping against it.
type NATManager struct {
	mu      sync.Mutex
	ip      net.IP
	pmp     *natpmp.Client
	upnp    *internetgateway1.WANIPConnection1
	backend natBackend

	mappedPort int
	log        *logrus.Entry
}

// NewNATManager probes UPnP first, since a responding IGD confirms a
// willing gateway explicitly via SSDP, then falls back to NAT-PMP's
// best-effort external-address query.
func NewNATManager() (*NATManager, error) {
	m := &NATManager{log: logrus.WithField("component", "nat")}

	if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		if ipStr, ipErr := clients[0].GetExternalIPAddress(); ipErr == nil {
			if ip := net.ParseIP(ipStr); ip != nil {
				m.upnp = clients[0]
				m.ip = ip
				m.backend = natBackendUPnP
			}
		}
	}

	if m.ip == nil {
		if gw, err := gateway.DiscoverGateway(); err == nil {
			client := natpmp.NewClient(gw)
			if res, pmpErr := client.GetExternalAddress(); pmpErr == nil {
				m.pmp = client
				m.ip = net.IPv4(res.ExternalIPAddress[0], res.ExternalIPAddress[1], res.ExternalIPAddress[2], res.ExternalIPAddress[3])
				m.backend = natBackendPMP
			}
		}
	}

	if m.ip == nil {
		return nil, fmt.Errorf("network: no NAT gateway responded to UPnP or NAT-PMP discovery")
	}
	m.log.WithField("external_ip", m.ip.String()).WithField("backend", m.backend.String()).Info("NAT gateway discovered")
	return m, nil
}

// ExternalIP returns the detected public IP address.
func (m *NATManager) ExternalIP() net.IP { return m.ip }

// Map opens the given TCP port on the gateway for natLeaseDuration.
func (m *NATManager) Map(port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapLocked(port)
}

func (m *NATManager) mapLocked(port int) error {
	switch m.backend {
	case natBackendPMP:
		if _, err := m.pmp.AddPortMapping("tcp", port, port, int(natLeaseDuration.Seconds())); err != nil {
			return fmt.Errorf("network: nat-pmp port mapping failed: %w", err)
		}
	case natBackendUPnP:
		if err := m.upnp.AddPortMapping("", uint16(port), "TCP", uint16(port), m.ip.String(), true, "agentnode", uint32(natLeaseDuration.Seconds())); err != nil {
			return fmt.Errorf("network: upnp port mapping failed: %w", err)
		}
	default:
		return fmt.Errorf("network: no nat backend available")
	}
	m.mappedPort = port
	m.log.WithField("port", port).WithField("backend", m.backend.String()).Info("port mapping established")
	return nil
}

// Renew keeps the current mapping alive until ctx is cancelled, refreshing
// it natRenewalMargin before each lease expires. It returns once ctx is
// done; callers run it in its own goroutine.
func (m *NATManager) Renew(ctx context.Context) {
	interval := natLeaseDuration - natRenewalMargin
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			port := m.mappedPort
			m.mu.Unlock()
			if port == 0 {
				continue
			}
			if err := m.Map(port); err != nil {
				m.log.WithError(err).Warn("nat lease renewal failed")
			}
		}
	}
}

// Unmap removes the previously mapped port, if any.
func (m *NATManager) Unmap() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mappedPort == 0 {
		return nil
	}
	switch m.backend {
	case natBackendPMP:
		if _, err := m.pmp.AddPortMapping("tcp", m.mappedPort, m.mappedPort, 0); err != nil {
			return fmt.Errorf("network: nat-pmp unmap failed: %w", err)
		}
	case natBackendUPnP:
		if err := m.upnp.DeletePortMapping("", uint16(m.mappedPort), "TCP"); err != nil {
			return fmt.Errorf("network: upnp unmap failed: %w", err)
		}
	}
	m.mappedPort = 0
	return nil
}

// parsePort extracts the TCP port from a libp2p multiaddress string.
func parsePort(addr string) (int, error) {
	parts := strings.Split(addr, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "tcp" {
			return strconv.Atoi(parts[i+1])
		}
	}
	return 0, fmt.Errorf("network: no tcp port in %s", addr)
}
