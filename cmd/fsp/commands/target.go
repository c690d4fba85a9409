package commands

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

type target struct {
	Host string
	Port int
	Path string
}

// parseTarget accepts fsp://host:port/path and host[:port]/path.
func parseTarget(s string, defaultPort int) (target, error) {
	t := target{Port: defaultPort, Path: "/"}

	var hostport string
	if strings.HasPrefix(s, "fsp://") {
		u, err := url.Parse(s)
		if err != nil {
			return t, fmt.Errorf("invalid target %q: %w", s, err)
		}
		hostport = u.Host
		if u.Path != "" {
			t.Path = u.Path
		}
	} else {
		var path string
		var found bool
		hostport, path, found = strings.Cut(s, "/")
		if found {
			t.Path = "/" + path
		}
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		// No port given.
		host = strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
		port = ""
	}
	if host == "" {
		return t, fmt.Errorf("invalid target %q: missing host", s)
	}
	t.Host = host

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return t, fmt.Errorf("invalid target %q: bad port %q", s, port)
		}
		t.Port = n
	}
	return t, nil
}
