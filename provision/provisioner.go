package provision

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clustergate/clustergate/session"
	"github.com/clustergate/clustergate/telemetry"
)

// Server error codes the account flow reacts to.
const (
	errPluginNotLoaded  = 1524
	errPasswordRejected = 1819
)

// attemptKind identifies which CREATE USER form an attempt used.
type attemptKind int

const (
	attemptHashed attemptKind = iota
	attemptPlain
)

func (k attemptKind) String() string {
	if k == attemptHashed {
		return "hashed"
	}
	return "plain"
}

// action is the provisioner's next move after a failed attempt.
type action int

const (
	actionFail action = iota
	actionFallbackPlain
	actionRetryPlain
)

// nextAction is the account creation transition table. A hashed attempt
// that hits a server without the native password plugin falls back to a
// plain CREATE USER; a plain attempt rejected by the password policy is
// retried with a fresh password. Everything else is fatal.
func nextAction(kind attemptKind, code uint16) action {
	switch {
	case kind == attemptHashed && code == errPluginNotLoaded:
		return actionFallbackPlain
	case kind == attemptPlain && code == errPasswordRejected:
		return actionRetryPlain
	default:
		return actionFail
	}
}

// Account describes the router account to provision.
type Account struct {
	Username                string
	HostPatterns            []string
	PasswordRetries         int
	ForcePasswordValidation bool
}

func (a *Account) hosts() []string {
	if len(a.HostPatterns) == 0 {
		return []string{"%"}
	}
	return a.HostPatterns
}

// Provisioner creates and rotates the dedicated router account on the
// cluster, inside the caller's transaction.
type Provisioner struct {
	sess      session.Session
	passwords PasswordSource
}

func NewProvisioner(sess session.Session, passwords PasswordSource) *Provisioner {
	if passwords == nil {
		passwords = RandomPassword{}
	}
	return &Provisioner{sess: sess, passwords: passwords}
}

// AccountName derives a fresh account username for a registered router.
func AccountName(routerID uint32) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("gate_router%d_%s", routerID, suffix)
}

// AccountNamePattern is the LIKE pattern matching every account any run
// provisioned for routerID, whatever suffix it carried. The underscore
// is escaped so router 4 never matches router 41's accounts.
func AccountNamePattern(routerID uint32) string {
	return fmt.Sprintf(`gate_router%d\_%%`, routerID)
}

// AccountBelongsTo reports whether username was provisioned for routerID.
func AccountBelongsTo(username string, routerID uint32) bool {
	return strings.HasPrefix(username, fmt.Sprintf("gate_router%d_", routerID))
}

// DropExistingAccounts removes every account matching pattern, across
// all hosts it was created for. A server that has never seen the
// account is not an error.
func (p *Provisioner) DropExistingAccounts(pattern string) error {
	row, err := p.sess.QueryOne(
		"SELECT COUNT(*) FROM mysql.user WHERE user LIKE " + session.Quote(pattern))
	if err != nil {
		return &CleanupError{Username: pattern, Query: true, Cause: err}
	}
	if row.Str(0) == "0" {
		return nil
	}
	log.Debug().Str("pattern", pattern).Msg("dropping existing router accounts")

	stmts := []string{
		"SELECT CONCAT('DROP USER ', GROUP_CONCAT(QUOTE(user), '@', QUOTE(host)))" +
			" INTO @drop_user_sql FROM mysql.user WHERE user LIKE " + session.Quote(pattern),
		"PREPARE drop_user_stmt FROM @drop_user_sql",
		"EXECUTE drop_user_stmt",
		"DEALLOCATE PREPARE drop_user_stmt",
	}
	for _, stmt := range stmts {
		if err := p.sess.Execute(stmt); err != nil {
			return &CleanupError{Username: pattern, Cause: err}
		}
	}
	return nil
}

// CreateAccount creates acct on every requested host pattern and grants
// it the read privileges the router needs. The generated password is
// returned so the caller can store it in the keyring.
//
// Creation starts with a hashed CREATE USER unless password validation
// is forced. A failed attempt rolls the caller's transaction back and
// opens a new one before the next attempt, so on a terminal failure the
// account does not exist.
func (p *Provisioner) CreateAccount(acct Account) (string, error) {
	kind := attemptHashed
	if acct.ForcePasswordValidation {
		kind = attemptPlain
	}
	retries := acct.PasswordRetries
	if retries < 1 {
		retries = 1
	}

	password, err := p.passwords.Generate()
	if err != nil {
		return "", err
	}

	plainAttempts := 0
	for {
		if kind == attemptPlain {
			plainAttempts++
		}
		telemetry.AccountCreateAttemptsTotal.With(kind.String()).Inc()

		err := p.createUsers(acct, kind, password)
		if err == nil {
			break
		}
		code, known := session.ServerCode(err)
		if !known {
			return "", &AccountError{Username: acct.Username, Cause: err}
		}

		switch nextAction(kind, code) {
		case actionFallbackPlain:
			log.Info().
				Str("username", acct.Username).
				Msg("server does not support the native password plugin, retrying with plain password")
			kind = attemptPlain
		case actionRetryPlain:
			if plainAttempts >= retries {
				return "", &PasswordPolicyError{Username: acct.Username, Attempts: plainAttempts, Cause: err}
			}
			log.Debug().
				Str("username", acct.Username).
				Int("attempt", plainAttempts).
				Msg("generated password rejected by server policy, retrying")
			if password, err = p.passwords.Generate(); err != nil {
				return "", err
			}
		default:
			return "", &AccountError{Username: acct.Username, Cause: err}
		}

		if err := p.restartTransaction(); err != nil {
			return "", err
		}
	}

	if err := p.grantPrivileges(acct); err != nil {
		return "", err
	}
	return password, nil
}

func (p *Provisioner) createUsers(acct Account, kind attemptKind, password string) error {
	for _, host := range acct.hosts() {
		var stmt string
		if kind == attemptHashed {
			stmt = fmt.Sprintf("CREATE USER %s@%s IDENTIFIED WITH mysql_native_password AS %s",
				acct.Username, session.Quote(host), session.Quote(nativePasswordHash(password)))
		} else {
			stmt = fmt.Sprintf("CREATE USER %s@%s IDENTIFIED BY %s",
				acct.Username, session.Quote(host), session.Quote(password))
		}
		if err := p.sess.Execute(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) grantPrivileges(acct Account) error {
	grants := []string{
		"GRANT SELECT ON mysql_innodb_cluster_metadata.* TO %s@%s",
		"GRANT SELECT ON performance_schema.replication_group_members TO %s@%s",
		"GRANT SELECT ON performance_schema.replication_group_member_stats TO %s@%s",
	}
	for _, host := range acct.hosts() {
		for _, g := range grants {
			stmt := fmt.Sprintf(g, acct.Username, session.Quote(host))
			if err := p.sess.Execute(stmt); err != nil {
				return &AccountError{Username: acct.Username, Cause: err}
			}
		}
	}
	return nil
}

func (p *Provisioner) restartTransaction() error {
	if err := p.sess.Execute("ROLLBACK"); err != nil {
		return fmt.Errorf("rolling back failed account attempt: %w", err)
	}
	if err := p.sess.Execute("START TRANSACTION"); err != nil {
		return fmt.Errorf("reopening bootstrap transaction: %w", err)
	}
	return nil
}

// RefreshRouter reuses the router row a previous run registered. It
// reports false when the row is gone from the metadata, in which case
// the caller registers from scratch. A found row gets its name
// refreshed so renames take effect.
func (p *Provisioner) RefreshRouter(routerID uint32, routerName string) (bool, error) {
	row, err := p.sess.QueryOne(fmt.Sprintf(
		"SELECT router_id FROM mysql_innodb_cluster_metadata.routers WHERE router_id = %d", routerID))
	if err != nil {
		return false, fmt.Errorf("querying registered routers: %w", err)
	}
	if row == nil {
		return false, nil
	}
	stmt := fmt.Sprintf(
		"UPDATE mysql_innodb_cluster_metadata.routers SET router_name = %s WHERE router_id = %d",
		session.Quote(routerName), routerID)
	if err := p.sess.Execute(stmt); err != nil {
		return false, fmt.Errorf("updating router %s: %w", routerName, err)
	}
	return true, nil
}

// RegisterRouter inserts the router's host and router rows into the
// metadata and returns the assigned router id. An existing host row for
// hostname is reused.
func (p *Provisioner) RegisterRouter(routerName, hostname string) (uint32, error) {
	row, err := p.sess.QueryOne(
		"SELECT host_id, host_name FROM mysql_innodb_cluster_metadata.hosts WHERE host_name = " +
			session.Quote(hostname) + " LIMIT 1")
	if err != nil {
		return 0, fmt.Errorf("querying registered hosts: %w", err)
	}
	var hostID uint64
	if row == nil {
		stmt := fmt.Sprintf(
			"INSERT INTO mysql_innodb_cluster_metadata.hosts (host_name, location, attributes)"+
				" VALUES (%s, '', NULL)", session.Quote(hostname))
		if err := p.sess.Execute(stmt); err != nil {
			return 0, fmt.Errorf("registering host %s: %w", hostname, err)
		}
		hostID = p.sess.LastInsertID()
	} else {
		if _, err := fmt.Sscanf(row.Str(0), "%d", &hostID); err != nil {
			return 0, fmt.Errorf("invalid host_id %q in metadata: %w", row.Str(0), err)
		}
	}

	stmt := fmt.Sprintf(
		"INSERT INTO mysql_innodb_cluster_metadata.routers (host_id, router_name) VALUES (%d, %s)",
		hostID, session.Quote(routerName))
	if err := p.sess.Execute(stmt); err != nil {
		return 0, fmt.Errorf("registering router %s: %w", routerName, err)
	}
	return uint32(p.sess.LastInsertID()), nil
}

// RecordRouterIdentity stores the provisioned account and endpoint
// layout in the router's metadata row.
func (p *Provisioner) RecordRouterIdentity(routerID uint32, accountUser string, rwPort, roPort, rwxPort, roxPort uint16) error {
	attrs := fmt.Sprintf(
		`{"RWEndpoint": "%d", "ROEndpoint": "%d", "RWXEndpoint": "%d", "ROXEndpoint": "%d", "MetadataUser": "%s"}`,
		rwPort, roPort, rwxPort, roxPort, accountUser)
	stmt := fmt.Sprintf(
		"UPDATE mysql_innodb_cluster_metadata.routers SET attributes = %s WHERE router_id = %d",
		session.Quote(attrs), routerID)
	if err := p.sess.Execute(stmt); err != nil {
		return fmt.Errorf("updating router attributes: %w", err)
	}
	return nil
}
