package node

import (
	"net"
	"net/netip"
)

// routeAddr is only used to pick a route; connecting a UDP socket sends
// nothing.
const routeAddr = "8.8.8.8:80"

// localIP returns the address this host would use for outbound traffic.
func localIP() string {
	if conn, err := net.Dial("udp4", routeAddr); err == nil {
		defer conn.Close()
		if a, ok := conn.LocalAddr().(*net.UDPAddr); ok && !a.IP.IsUnspecified() {
			return a.IP.String()
		}
	}
	for _, a := range interfaceAddrs() {
		if a.Is4() && !a.IsLoopback() {
			return a.String()
		}
	}
	return "127.0.0.1"
}

func interfaceAddrs() []netip.Addr {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip, ok := netip.AddrFromSlice(ipn.IP); ok {
			out = append(out, ip.Unmap())
		}
	}
	return out
}

// isLocal reports whether ip names this host: the advertised address,
// loopback, the unspecified address, or any interface address.
func isLocal(ip, advertised string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.String() == advertised || addr.IsLoopback() || addr.IsUnspecified() {
		return true
	}
	for _, a := range interfaceAddrs() {
		if a == addr {
			return true
		}
	}
	return false
}
