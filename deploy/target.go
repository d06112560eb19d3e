package deploy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/clustergate/clustergate/session"
)

const defaultServerPort = 3306

// ParseTarget resolves a bootstrap target to connection parameters.
// Accepted forms: a mysql:// URI (optionally with credentials and
// port), a host:port pair, or a bare hostname. A socket may be
// supplied alongside, but only for a localhost target.
func ParseTarget(target, socket string) (session.ConnectParams, error) {
	p := session.ConnectParams{Port: defaultServerPort}

	switch {
	case target == "":
		p.Host = "localhost"
	case strings.Contains(target, "://"):
		u, err := url.Parse(target)
		if err != nil || u.Scheme != "mysql" || u.Host == "" {
			return session.ConnectParams{}, fmt.Errorf("invalid bootstrap URI: %s", target)
		}
		if u.Path != "" && u.Path != "/" {
			return session.ConnectParams{}, fmt.Errorf("invalid bootstrap URI: %s (unexpected path)", target)
		}
		if u.User != nil {
			p.User = u.User.Username()
			p.Password, _ = u.User.Password()
		}
		p.Host = u.Hostname()
		if ps := u.Port(); ps != "" {
			port, err := strconv.ParseUint(ps, 10, 16)
			if err != nil {
				return session.ConnectParams{}, fmt.Errorf("invalid port in bootstrap URI: %s", target)
			}
			p.Port = uint16(port)
		}
	default:
		host, ps, err := net.SplitHostPort(target)
		if err != nil {
			// bare hostname, default port
			p.Host = target
		} else {
			port, err := strconv.ParseUint(ps, 10, 16)
			if err != nil {
				return session.ConnectParams{}, fmt.Errorf("invalid port in bootstrap target: %s", target)
			}
			p.Host, p.Port = host, uint16(port)
		}
	}

	if strings.ContainsAny(p.Host, "/\\") {
		return session.ConnectParams{}, fmt.Errorf(
			"invalid bootstrap target %s: socket paths must be passed with --bootstrap-socket", target)
	}

	if socket != "" {
		if p.Host != "localhost" {
			return session.ConnectParams{}, fmt.Errorf(
				"--bootstrap-socket given, but the bootstrap target %s is not localhost", p.Host)
		}
		p.Socket = socket
	}
	return p, nil
}
