package render

import (
	"fmt"
	"strings"
)

// Fixed session timeouts written to every generated configuration.
const (
	connectTimeout = 30
	readTimeout    = 30
	metadataTTL    = 5
)

// sslOptionOrder fixes the rendering order of the ssl_* options. Values
// are written exactly as the user supplied them, case included.
var sslOptionOrder = []string{
	"ssl_mode",
	"ssl_ca",
	"ssl_capath",
	"ssl_crl",
	"ssl_crlpath",
	"ssl_cipher",
	"tls_version",
}

// Config names the inputs of one rendering pass.
type Config struct {
	RouterID       uint32
	Name           string // omitted from [DEFAULT] when empty
	User           string // run-as user, omitted when empty
	Servers        string // comma-joined bootstrap server addresses
	ClusterName    string
	ReplicaSetName string
	AccountUser    string // the provisioned metadata account
}

// Render produces the router configuration text. It is pure and
// deterministic: identical inputs yield byte-identical output, which
// re-bootstrap comparisons and tests rely on. Sections appear in fixed
// order and disabled endpoints are omitted entirely.
func Render(c Config, o Options) string {
	var b strings.Builder

	b.WriteString("# File automatically generated during bootstrap\n")

	b.WriteString("[DEFAULT]\n")
	if c.Name != "" {
		fmt.Fprintf(&b, "name=%s\n", c.Name)
	}
	if c.User != "" {
		fmt.Fprintf(&b, "user=%s\n", c.User)
	}
	if o.KeyringPath != "" {
		fmt.Fprintf(&b, "keyring_path=%s\n", o.KeyringPath)
	}
	if o.MasterKeyPath != "" {
		fmt.Fprintf(&b, "master_key_path=%s\n", o.MasterKeyPath)
	}
	fmt.Fprintf(&b, "connect_timeout=%d\n", connectTimeout)
	fmt.Fprintf(&b, "read_timeout=%d\n", readTimeout)
	for _, name := range sslOptionOrder {
		if v, ok := o.SSL[name]; ok {
			fmt.Fprintf(&b, "%s=%s\n", name, v)
		}
	}
	b.WriteString("\n")

	b.WriteString("[logger]\n")
	b.WriteString("level = INFO\n")
	b.WriteString("\n")

	fmt.Fprintf(&b, "[metadata_cache:%s]\n", c.ClusterName)
	fmt.Fprintf(&b, "router_id=%d\n", c.RouterID)
	fmt.Fprintf(&b, "bootstrap_server_addresses=%s\n", c.Servers)
	fmt.Fprintf(&b, "user=%s\n", c.AccountUser)
	fmt.Fprintf(&b, "metadata_cluster=%s\n", c.ClusterName)
	fmt.Fprintf(&b, "ttl=%d\n", metadataTTL)
	b.WriteString("\n")

	writeRouting(&b, c, o, o.RW, "rw", "PRIMARY", "classic")
	writeRouting(&b, c, o, o.RO, "ro", "SECONDARY", "classic")
	writeRouting(&b, c, o, o.RWX, "x_rw", "PRIMARY", "x")
	writeRouting(&b, c, o, o.ROX, "x_ro", "SECONDARY", "x")

	return b.String()
}

func writeRouting(b *strings.Builder, c Config, o Options, ep Endpoint, suffix, role, protocol string) {
	if !ep.Enabled {
		return
	}

	fmt.Fprintf(b, "[routing:%s_%s_%s]\n", c.ClusterName, c.ReplicaSetName, suffix)
	if ep.Port > 0 {
		bind := o.BindAddress
		if bind == "" {
			bind = "0.0.0.0"
		}
		fmt.Fprintf(b, "bind_address=%s\n", bind)
		fmt.Fprintf(b, "bind_port=%d\n", ep.Port)
	}
	if ep.Socket != "" {
		fmt.Fprintf(b, "socket=%s\n", ep.Socket)
	}
	fmt.Fprintf(b, "destinations=metadata-cache://%s/%s?role=%s\n", c.ClusterName, c.ReplicaSetName, role)
	b.WriteString("routing_strategy=round-robin\n")
	fmt.Fprintf(b, "protocol=%s\n", protocol)
	b.WriteString("\n")
}
