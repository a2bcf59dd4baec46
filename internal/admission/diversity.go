package admission

// Subnet diversity ledger, grounded on the teacher's mutex-guarded counter
// maps (core/connection_pool.go's ConnPool, core/geolocation_network.go).

import (
	"fmt"
	"net"
	"sync"
)

// Prefix returns the /24 (IPv4) or /48 (IPv6) textual prefix used as the
// diversity-ledger key, per spec.md §3.
func Prefix(ip net.IP) (string, error) {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0/24", v4[0], v4[1], v4[2]), nil
	}
	v6 := ip.To16()
	if v6 == nil {
		return "", fmt.Errorf("admission: invalid IP %q", ip)
	}
	_, network, err := net.ParseCIDR(fmt.Sprintf("%s/48", ip.String()))
	if err != nil {
		return "", err
	}
	return network.String(), nil
}

// DiversityLedger tracks connection counts per subnet prefix behind a
// single exclusive-write lock, so admission is strictly serialised per
// node (spec.md §4.2 Concurrency).
type DiversityLedger struct {
	mu     sync.Mutex
	counts map[string]int
	total  int
}

// NewDiversityLedger constructs an empty ledger.
func NewDiversityLedger() *DiversityLedger {
	return &DiversityLedger{counts: make(map[string]int)}
}

// ceiling is max(ceil(20% of total), 2). Add evaluates it against the
// total before the new connection is counted.
func ceiling(total int) int {
	share := (total*2 + 9) / 10 // ceil(0.2 * total)
	if share < 2 {
		return 2
	}
	return share
}

// Add registers a new connection from ip, rejecting it with
// ErrSubnetLimitExceeded if the subnet would exceed its diversity ceiling.
func (d *DiversityLedger) Add(ip net.IP) error {
	prefix, err := Prefix(ip)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	newCount := d.counts[prefix] + 1
	max := ceiling(d.total)
	if newCount > max {
		return &SubnetLimitError{Subnet: prefix, Current: d.counts[prefix], Max: max}
	}
	d.counts[prefix] = newCount
	d.total++
	return nil
}

// Remove decrements the connection count for ip's subnet, saturating at
// zero and purging empty subnet entries.
func (d *DiversityLedger) Remove(ip net.IP) {
	prefix, err := Prefix(ip)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.total > 0 {
		d.total--
	}
	if c, ok := d.counts[prefix]; ok {
		if c <= 1 {
			delete(d.counts, prefix)
		} else {
			d.counts[prefix] = c - 1
		}
	}
}

// Total returns the total connection count across all subnets.
func (d *DiversityLedger) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// CountFor returns the current connection count for ip's subnet.
func (d *DiversityLedger) CountFor(ip net.IP) int {
	prefix, err := Prefix(ip)
	if err != nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[prefix]
}
