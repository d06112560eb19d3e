package session

import (
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

// Row is a single result row. A nil cell is a SQL NULL.
type Row []*string

// Str returns the cell at i, or "" when the cell is NULL or missing.
func (r Row) Str(i int) string {
	if i >= len(r) || r[i] == nil {
		return ""
	}
	return *r[i]
}

// Session is the boundary to one cluster member. All calls are
// synchronous round-trips on a single connection.
type Session interface {
	// Query runs q and returns every row.
	Query(q string) ([]Row, error)
	// QueryOne runs q and returns the first row, or nil when the result
	// set is empty.
	QueryOne(q string) (Row, error)
	// Execute runs a statement that produces no result set.
	Execute(q string) error
	// LastInsertID reports the auto-generated id of the most recent
	// successful Execute, or 0.
	LastInsertID() uint64
	Close() error
}

// Error carries the server's message and numeric error code.
type Error struct {
	Msg  string
	Code uint16
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s (%d)", e.Msg, e.Code)
}

// ServerCode extracts the server error code from err, if it carries one.
func ServerCode(err error) (uint16, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// SSLOptions mirror the ssl_* bootstrap options. Mode is matched
// case-insensitively; its original spelling is preserved by the caller
// for rendering.
type SSLOptions struct {
	Mode       string
	CA         string
	CAPath     string
	CRL        string
	CRLPath    string
	Cipher     string
	TLSVersion string
	Cert       string
	Key        string
}

// Recognized ssl_mode values.
const (
	SSLModeDisabled       = "DISABLED"
	SSLModePreferred      = "PREFERRED"
	SSLModeRequired       = "REQUIRED"
	SSLModeVerifyCA       = "VERIFY_CA"
	SSLModeVerifyIdentity = "VERIFY_IDENTITY"
)

// ConnectParams describe one bootstrap connection. Socket and Host/Port
// are mutually exclusive transports; Socket wins when set.
type ConnectParams struct {
	Host           string
	Port           uint16
	User           string
	Password       string
	Socket         string
	SSL            SSLOptions
	ConnectTimeout time.Duration
}

type mysqlSession struct {
	db     *sql.DB
	lastID uint64
}

// Connect opens a session against one cluster member and verifies the
// connection with a ping.
func Connect(p ConnectParams) (Session, error) {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	if p.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = p.Socket
	} else {
		cfg.Net = "tcp"
		port := p.Port
		if port == 0 {
			port = 3306
		}
		cfg.Addr = fmt.Sprintf("%s:%d", p.Host, port)
	}
	if p.ConnectTimeout > 0 {
		cfg.Timeout = p.ConnectTimeout
	}

	if err := applySSL(cfg, p.SSL); err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, wrapError(err)
	}
	// One bootstrap session, one connection. Statement ordering and
	// transaction state depend on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, wrapError(err)
	}
	log.Debug().Str("addr", cfg.Addr).Str("net", cfg.Net).Msg("Connected to cluster member")
	return &mysqlSession{db: db}, nil
}

func applySSL(cfg *mysql.Config, ssl SSLOptions) error {
	mode := strings.ToUpper(ssl.Mode)
	switch mode {
	case "", SSLModePreferred:
		cfg.TLSConfig = "preferred"
	case SSLModeDisabled:
		cfg.TLSConfig = "false"
	case SSLModeRequired:
		cfg.TLSConfig = "skip-verify"
	case SSLModeVerifyCA, SSLModeVerifyIdentity:
		tlsCfg := &tls.Config{}
		if mode == SSLModeVerifyCA {
			tlsCfg.InsecureSkipVerify = true
			tlsCfg.VerifyPeerCertificate = verifyCAOnly(tlsCfg)
		}
		if ssl.CA != "" {
			pem, err := os.ReadFile(ssl.CA)
			if err != nil {
				return fmt.Errorf("reading ssl_ca %s: %w", ssl.CA, err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return fmt.Errorf("no usable certificates in ssl_ca %s", ssl.CA)
			}
			tlsCfg.RootCAs = pool
		}
		if ssl.Cert != "" || ssl.Key != "" {
			cert, err := tls.LoadX509KeyPair(ssl.Cert, ssl.Key)
			if err != nil {
				return fmt.Errorf("loading ssl_cert/ssl_key: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		name := "clustergate-verify"
		if err := mysql.RegisterTLSConfig(name, tlsCfg); err != nil {
			return err
		}
		cfg.TLSConfig = name
	default:
		return fmt.Errorf("invalid ssl_mode '%s'", ssl.Mode)
	}
	return nil
}

// verifyCAOnly checks the chain against the configured roots without
// hostname verification, which is what VERIFY_CA means.
func verifyCAOnly(tlsCfg *tls.Config) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		certs := make([]*x509.Certificate, 0, len(rawCerts))
		for _, raw := range rawCerts {
			c, err := x509.ParseCertificate(raw)
			if err != nil {
				return err
			}
			certs = append(certs, c)
		}
		if len(certs) == 0 {
			return errors.New("server presented no certificate")
		}
		opts := x509.VerifyOptions{Roots: tlsCfg.RootCAs, Intermediates: x509.NewCertPool()}
		for _, c := range certs[1:] {
			opts.Intermediates.AddCert(c)
		}
		_, err := certs[0].Verify(opts)
		return err
	}
}

func (s *mysqlSession) Query(q string) ([]Row, error) {
	rs, err := s.db.Query(q)
	if err != nil {
		return nil, wrapError(err)
	}
	defer finalizeRows(rs)

	cols, err := rs.Columns()
	if err != nil {
		return nil, wrapError(err)
	}

	var out []Row
	for rs.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, wrapError(err)
		}
		row := make(Row, len(cols))
		for i, c := range cells {
			if c.Valid {
				v := c.String
				row[i] = &v
			}
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, wrapError(err)
	}
	return out, nil
}

func (s *mysqlSession) QueryOne(q string) (Row, error) {
	rows, err := s.Query(q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *mysqlSession) Execute(q string) error {
	res, err := s.db.Exec(q)
	if err != nil {
		return wrapError(err)
	}
	if id, err := res.LastInsertId(); err == nil {
		s.lastID = uint64(id)
	}
	return nil
}

func (s *mysqlSession) LastInsertID() uint64 {
	return s.lastID
}

func (s *mysqlSession) Close() error {
	return s.db.Close()
}

func finalizeRows(rs *sql.Rows) {
	if err := rs.Close(); err != nil {
		log.Error().Err(err).Msg("Unable to close result set")
	}
}

func wrapError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return &Error{Msg: me.Message, Code: me.Number}
	}
	return &Error{Msg: err.Error()}
}

// Quote returns s as a single-quoted SQL string literal.
func Quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\x00", `\0`, "\n", `\n`, "\r", `\r`, "\x1a", `\Z`)
	return "'" + r.Replace(s) + "'"
}
