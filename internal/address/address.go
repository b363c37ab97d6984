// Package address turns service addresses given on a command line into
// dialable targets.
//
// Accepted forms are host, host:port, [v6]:port and the same with an
// http:// or https:// prefix and an optional path. Without a port, 443 is
// used for https and 80 otherwise. Port 0 means the default port too.
package address

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/CZERTAINLY/wait-for-it/internal/model"
)

const (
	defaultHTTPPort  = 80
	defaultHTTPSPort = 443
)

// Resolve parses a service address. All failures wrap model.ErrMalformedAddress.
func Resolve(service string) (model.Target, error) {
	var zero model.Target
	s := strings.TrimSpace(service)
	if s == "" {
		return zero, malformed(service, "empty address")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + strings.TrimPrefix(s, "//")
	}

	u, err := url.Parse(s)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return zero, malformed(service, err.Error())
	}

	host := u.Hostname()
	if host == "" {
		return zero, malformed(service, "missing host")
	}
	// net/url accepts "::1" and splits it at the last colon
	if strings.Contains(host, ":") && !strings.HasPrefix(u.Host, "[") {
		return zero, malformed(service, "IPv6 address must be enclosed in brackets")
	}

	port, err := port(u)
	if err != nil {
		return zero, malformed(service, err.Error())
	}

	return model.Target{Host: host, Port: port}, nil
}

// ResolveAll resolves services in order and stops on the first malformed one.
func ResolveAll(services []string) ([]model.Target, error) {
	targets := make([]model.Target, 0, len(services))
	for _, s := range services {
		t, err := Resolve(s)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func port(u *url.URL) (uint16, error) {
	dflt := uint16(defaultHTTPPort)
	if strings.EqualFold(u.Scheme, "https") {
		dflt = defaultHTTPSPort
	}

	p := u.Port()
	if p == "" {
		return dflt, nil
	}
	n, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("port %s is not in range 0-65535", p)
	}
	if n == 0 {
		return dflt, nil
	}
	return uint16(n), nil
}

func malformed(service, reason string) error {
	return fmt.Errorf("%w %q: %s", model.ErrMalformedAddress, service, reason)
}
