// Package hostport splits and defaults compute agent addresses. Unlike
// net.SplitHostPort, a missing port is not an error.
package hostport

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// Split splits a network address of the form "host", "host:port", "[host]",
// "[host]:port", "[ipv6-host%zone]", or "[ipv6-host%zone]:port" into host or
// ipv6-host%zone and port. Port will be an empty string if not supplied.
func Split(hostport string) (host string, port string, err error) {
	if hostport == "" {
		return "", "", nil
	}

	opening := strings.Index(hostport, "[")
	closing := strings.Index(hostport, "]")
	switch {
	case opening != strings.LastIndex(hostport, "["):
		return "", "", errors.New("too many '['")
	case closing != strings.LastIndex(hostport, "]"):
		return "", "", errors.New("too many ']'")
	}

	var rest string
	switch {
	case opening > 0:
		return "", "", errors.New("nothing can come before '['")
	case opening == 0 && closing == -1:
		return "", "", errors.New("missing ']'")
	case opening == -1 && closing > -1:
		return "", "", errors.New("missing '['")
	case opening == 0:
		host, rest = hostport[1:closing], hostport[closing+1:]
	default:
		// no brackets, the port follows the last colon
		i := strings.LastIndex(hostport, ":")
		if i < 0 {
			return hostport, "", nil
		}
		host, rest = hostport[:i], hostport[i:]
	}

	if rest == "" {
		return host, "", nil
	}
	if strings.LastIndex(rest, ":") != 0 {
		return "", "", errors.New("poorly separated or formatted port")
	}
	return host, rest[1:], nil
}

// WithDefault returns addr as a "host:port" pair, filling in defaultPort when
// addr has none. The port must be numeric.
func WithDefault(addr string, defaultPort int) (string, error) {
	host, port, err := Split(addr)
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", errors.New("missing host")
	}
	if port == "" {
		port = strconv.Itoa(defaultPort)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return "", errors.New("invalid port " + port)
	}
	return net.JoinHostPort(host, port), nil
}
