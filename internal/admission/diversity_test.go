package admission

import (
	"errors"
	"net"
	"testing"
)

func ip(s string) net.IP {
	parsed := net.ParseIP(s)
	if parsed == nil {
		panic("bad test IP: " + s)
	}
	return parsed
}

// TestSubnetLimitScenario reproduces spec.md §8 end-to-end scenario 4
// literally: 8 distinct /24 subnets, then two from 192.168.1.0/24 (both
// succeed), then a third from the same subnet is rejected with
// current=2, max=2 against a total of 10.
func TestSubnetLimitScenario(t *testing.T) {
	d := NewDiversityLedger()

	distinct := []string{
		"10.0.0.1", "10.0.1.1", "10.0.2.1", "10.0.3.1",
		"10.0.4.1", "10.0.5.1", "10.0.6.1", "10.0.7.1",
	}
	for _, addr := range distinct {
		if err := d.Add(ip(addr)); err != nil {
			t.Fatalf("add %s: unexpected error: %v", addr, err)
		}
	}

	if err := d.Add(ip("192.168.1.10")); err != nil {
		t.Fatalf("first 192.168.1.0/24 add: unexpected error: %v", err)
	}
	if err := d.Add(ip("192.168.1.11")); err != nil {
		t.Fatalf("second 192.168.1.0/24 add: unexpected error: %v", err)
	}

	err := d.Add(ip("192.168.1.12"))
	if err == nil {
		t.Fatalf("expected third 192.168.1.0/24 add to be rejected")
	}
	var subnetErr *SubnetLimitError
	if !errors.As(err, &subnetErr) {
		t.Fatalf("expected *SubnetLimitError, got %T: %v", err, err)
	}
	if subnetErr.Current != 2 || subnetErr.Max != 2 {
		t.Fatalf("expected current=2 max=2, got current=%d max=%d", subnetErr.Current, subnetErr.Max)
	}
	if d.Total() != 10 {
		t.Fatalf("expected total=10 after rejection, got %d", d.Total())
	}
}

func TestAddRemoveBalancedLeavesNoEntry(t *testing.T) {
	d := NewDiversityLedger()
	addr := ip("172.16.5.5")

	if err := d.Add(addr); err != nil {
		t.Fatalf("add: %v", err)
	}
	d.Remove(addr)

	if got := d.CountFor(addr); got != 0 {
		t.Fatalf("expected subnet count 0 after balanced add/remove, got %d", got)
	}
	if d.Total() != 0 {
		t.Fatalf("expected total 0, got %d", d.Total())
	}
}

func TestRemoveSaturatesAtZero(t *testing.T) {
	d := NewDiversityLedger()
	addr := ip("203.0.113.1")
	d.Remove(addr) // no prior add
	if d.Total() != 0 {
		t.Fatalf("expected total to stay at 0, got %d", d.Total())
	}
}

func TestPrefixIPv4AndIPv6(t *testing.T) {
	p4, err := Prefix(ip("192.168.1.42"))
	if err != nil {
		t.Fatalf("prefix v4: %v", err)
	}
	if p4 != "192.168.1.0/24" {
		t.Fatalf("unexpected v4 prefix: %s", p4)
	}

	p6a, err := Prefix(ip("2001:db8::1"))
	if err != nil {
		t.Fatalf("prefix v6 a: %v", err)
	}
	p6b, err := Prefix(ip("2001:db8::2"))
	if err != nil {
		t.Fatalf("prefix v6 b: %v", err)
	}
	if p6a != p6b {
		t.Fatalf("expected same /48 prefix for both addresses, got %s vs %s", p6a, p6b)
	}
}
