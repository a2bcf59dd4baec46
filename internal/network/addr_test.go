package network

import (
	"testing"

	ma "github.com/multiformats/go-multiaddr"
)

func TestIPFromMultiaddr(t *testing.T) {
	addr, err := ma.NewMultiaddr("/ip4/192.168.1.42/tcp/4001")
	if err != nil {
		t.Fatalf("parse multiaddr: %v", err)
	}
	ip, err := ipFromMultiaddr(addr)
	if err != nil {
		t.Fatalf("ipFromMultiaddr: %v", err)
	}
	if ip.String() != "192.168.1.42" {
		t.Fatalf("expected 192.168.1.42, got %s", ip.String())
	}
}

func TestIPFromMultiaddrRejectsNonIPTransport(t *testing.T) {
	addr, err := ma.NewMultiaddr("/dns4/example.com/tcp/4001")
	if err != nil {
		t.Fatalf("parse multiaddr: %v", err)
	}
	if _, err := ipFromMultiaddr(addr); err == nil {
		t.Fatalf("expected an error resolving an IP from a DNS multiaddr")
	}
}
