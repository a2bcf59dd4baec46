package network

import (
	"fmt"
	"net"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// remoteIPFromAddrInfo extracts a dialable IP address from a discovered
// peer's multiaddresses, for the admission gate's subnet-diversity check
// (spec.md §4.2 takes "remote address" as an admission input).
func remoteIPFromAddrInfo(info peer.AddrInfo) (net.IP, error) {
	for _, addr := range info.Addrs {
		if ip, err := ipFromMultiaddr(addr); err == nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("network: no usable address for peer %s", info.ID)
}

func ipFromMultiaddr(addr ma.Multiaddr) (net.IP, error) {
	netAddr, err := manet.ToNetAddr(addr)
	if err != nil {
		return nil, err
	}
	host, _, err := net.SplitHostPort(netAddr.String())
	if err != nil {
		// Some multiaddr-derived net.Addrs have no port component.
		host = netAddr.String()
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("network: could not parse IP from %s", netAddr.String())
	}
	return ip, nil
}
