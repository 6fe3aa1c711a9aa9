package network

import (
	"fmt"
	"net"
)

// InterfaceSampler checks that the named interface is up and holds a global
// unicast address. With an empty name any non-loopback interface counts.
func InterfaceSampler(name string) Sampler {
	return func() (string, bool, error) {
		var ifaces []net.Interface
		if name != "" {
			iface, err := net.InterfaceByName(name)
			if err != nil {
				return "", false, fmt.Errorf("interface %s: %w", name, err)
			}
			ifaces = []net.Interface{*iface}
		} else {
			all, err := net.Interfaces()
			if err != nil {
				return "", false, fmt.Errorf("list interfaces: %w", err)
			}
			ifaces = all
		}

		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			if ip := firstGlobalUnicast(addrs); ip != "" {
				return ip, true, nil
			}
		}
		return "", false, nil
	}
}

// firstGlobalUnicast prefers IPv4, falling back to IPv6.
func firstGlobalUnicast(addrs []net.Addr) string {
	var v6 string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || !ipnet.IP.IsGlobalUnicast() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String()
		}
		if v6 == "" {
			v6 = ipnet.IP.String()
		}
	}
	return v6
}
