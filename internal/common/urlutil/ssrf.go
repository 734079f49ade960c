package urlutil

import (
	"fmt"
	"net"
)

// privateRanges lists private and reserved ranges a scrape target may not point at
var privateRanges []*net.IPNet

func init() {
	cidrs := []string{
		// IPv4
		"127.0.0.0/8",        // loopback
		"10.0.0.0/8",         // RFC 1918
		"172.16.0.0/12",      // RFC 1918
		"192.168.0.0/16",     // RFC 1918
		"169.254.0.0/16",     // link-local, cloud metadata
		"100.64.0.0/10",      // CGNAT (RFC 6598)
		"0.0.0.0/8",          // "this" network
		"224.0.0.0/4",        // multicast
		"255.255.255.255/32", // broadcast

		// IPv6
		"::/128",    // unspecified
		"::1/128",   // loopback
		"fe80::/10", // link-local
		"fc00::/7",  // unique local
		"ff00::/8",  // multicast
	}

	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in private ranges: %s", cidr))
		}
		privateRanges = append(privateRanges, ipNet)
	}
}

// IsPrivateIP returns true if ip belongs to a private or reserved range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func IsPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	for _, ipNet := range privateRanges {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateHostNotPrivateIP rejects private IP literals. Domain names pass:
// no DNS resolution happens here.
func ValidateHostNotPrivateIP(hostname string) error {
	ip := net.ParseIP(hostname)
	if ip == nil {
		return nil
	}

	if IsPrivateIP(ip) {
		return fmt.Errorf("private IP not allowed: %s", hostname)
	}
	return nil
}
