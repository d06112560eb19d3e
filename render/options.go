package render

import (
	"fmt"
	"net"
	"path"
	"strconv"
)

// Default listening ports. The classic ports are adjacent; the extended
// protocol ports keep their historical values unless a base-port is
// given, in which case all four derive from it by fixed offsets.
const (
	defaultPortRW  = 6446
	defaultPortRO  = 6447
	defaultPortRWX = 64460
	defaultPortROX = 64470

	// Four ports derive from base-port, so base+3 must still fit.
	maxBasePort = 65535 - 3
)

// Socket file names for the four endpoints.
const (
	socketRW  = "mysql.sock"
	socketRO  = "mysqlro.sock"
	socketRWX = "mysqlx.sock"
	socketROX = "mysqlxro.sock"
)

// Endpoint is one listening endpoint of the router. An endpoint may have
// a TCP port, a unix socket, or both; a disabled endpoint is never
// rendered.
type Endpoint struct {
	Enabled bool
	Port    uint16
	Socket  string
}

// Options is the validated, rendered form of the bootstrap options.
type Options struct {
	MultiMaster bool
	BindAddress string // empty means the renderer's 0.0.0.0 default

	RW  Endpoint // classic protocol, read-write
	RO  Endpoint // classic protocol, read-only
	RWX Endpoint // extended protocol, read-write
	ROX Endpoint // extended protocol, read-only

	// SSL options rendered verbatim into [DEFAULT], in sslOptionOrder.
	SSL map[string]string

	// Keyring locations recorded in [DEFAULT] when set.
	KeyringPath   string
	MasterKeyPath string
}

// FillOptions validates user options and derives the endpoint set. In
// multi-master mode there are no read-only endpoints at all: every member
// accepts writes, so nothing can serve a SECONDARY destination.
func FillOptions(multiMaster bool, userOptions map[string]string) (Options, error) {
	o := Options{MultiMaster: multiMaster}

	basePort := 0
	if v, ok := userOptions["base-port"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxBasePort {
			return Options{}, fmt.Errorf("Invalid base-port number %s; please pick a value between 1 and %d", v, maxBasePort)
		}
		basePort = n
	}

	if v, ok := userOptions["bind-address"]; ok {
		if net.ParseIP(v) == nil {
			return Options{}, fmt.Errorf("invalid bind-address value %s", v)
		}
		o.BindAddress = v
	}

	useSockets := userOptions["use-sockets"] == "1"
	skipTCP := userOptions["skip-tcp"] == "1"
	socketsDir := userOptions["socketsdir"]

	portRW, portRO, portRWX, portROX := defaultPortRW, defaultPortRO, defaultPortRWX, defaultPortROX
	if basePort > 0 {
		portRW, portRO, portRWX, portROX = basePort, basePort+1, basePort+2, basePort+3
	}

	endpoint := func(port int, socket string) Endpoint {
		ep := Endpoint{}
		if !skipTCP {
			ep.Port = uint16(port)
			ep.Enabled = true
		}
		if useSockets {
			ep.Socket = socketName(socketsDir, socket)
			ep.Enabled = true
		}
		return ep
	}

	o.RW = endpoint(portRW, socketRW)
	o.RWX = endpoint(portRWX, socketRWX)
	if !multiMaster {
		o.RO = endpoint(portRO, socketRO)
		o.ROX = endpoint(portROX, socketROX)
	}

	o.SSL = map[string]string{}
	for _, name := range sslOptionOrder {
		if v, ok := userOptions[name]; ok && v != "" {
			o.SSL[name] = v
		}
	}
	return o, nil
}

func socketName(dir, name string) string {
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}
