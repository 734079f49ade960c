package configtypes

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ListenAddr is a parsed host:port. An empty Host binds every interface.
type ListenAddr struct {
	Host string
	Port int
}

// ParseListen accepts ":3000", "3000", "0.0.0.0:3000", "localhost:3000" and "[::1]:3000".
// The port range is not checked here; see Validate.
func ParseListen(listen string) (ListenAddr, error) {
	if listen == "" {
		return ListenAddr{}, fmt.Errorf("listen address is empty")
	}

	if !strings.Contains(listen, ":") {
		port, err := strconv.Atoi(listen)
		if err != nil {
			return ListenAddr{}, fmt.Errorf("invalid listen address format: %s", listen)
		}
		return ListenAddr{Port: port}, nil
	}

	host, rawPort, err := net.SplitHostPort(listen)
	if err != nil {
		return ListenAddr{}, fmt.Errorf("invalid listen address format: %s: %w", listen, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return ListenAddr{}, fmt.Errorf("invalid port in listen address: %s", rawPort)
	}
	return ListenAddr{Host: host, Port: port}, nil
}

// Validate rejects ports outside 1-65535
func (a ListenAddr) Validate() error {
	if a.Port < 1 || a.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", a.Port)
	}
	return nil
}

// AllInterfaces reports whether the address binds every interface
func (a ListenAddr) AllInterfaces() bool {
	return a.Host == "" || a.Host == "0.0.0.0" || a.Host == "::"
}

// WithPort returns a copy bound to port
func (a ListenAddr) WithPort(port int) ListenAddr {
	a.Port = port
	return a
}

func (a ListenAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ValidateListen parses listen and checks its port range
func ValidateListen(listen string) (ListenAddr, error) {
	addr, err := ParseListen(listen)
	if err != nil {
		return ListenAddr{}, err
	}
	return addr, addr.Validate()
}
