// Package deploy orchestrates a bootstrap run: metadata validation,
// account provisioning, and the on-disk deployment directory.
package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clustergate/clustergate/cfg"
	"github.com/clustergate/clustergate/keyring"
	"github.com/clustergate/clustergate/metadata"
	"github.com/clustergate/clustergate/provision"
	"github.com/clustergate/clustergate/render"
	"github.com/clustergate/clustergate/session"
	"github.com/clustergate/clustergate/telemetry"
)

const (
	configFileName    = "clustergate.conf"
	keyringFileName   = "keyring"
	masterKeyFileName = "clustergate.key"
	backupSuffix      = ".bak"
)

// Manager runs directory-based bootstrap deployments. One Manager, one
// bootstrap at a time; callers serialize invocations.
type Manager struct {
	Sess      session.Session
	Passwords provision.PasswordSource
	Hostname  string
}

// Report summarizes a completed bootstrap.
type Report struct {
	RouterID    uint32
	AccountUser string
	ConfigPath  string
	ClusterName string
	HasQuorum   bool
}

// Bootstrap provisions a router account on the cluster behind m.Sess
// and writes a self-contained deployment under dir. A directory the run
// created is removed again on failure; a pre-existing directory is
// never deleted.
func (m *Manager) Bootstrap(dir string, opts cfg.BootstrapOptions) (rep *Report, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failed"
		}
		telemetry.BootstrapRunsTotal.With(result).Inc()
	}()

	routerName := opts.Get("name")
	if err := ValidateRouterName(routerName); err != nil {
		return nil, err
	}
	if err := opts.ValidateEarly(); err != nil {
		return nil, err
	}

	if _, err := metadata.CheckSchemaVersion(m.Sess); err != nil {
		return nil, err
	}
	if err := metadata.CheckMetadataSupport(m.Sess); err != nil {
		return nil, err
	}
	if err := metadata.CheckGroupOnline(m.Sess); err != nil {
		return nil, err
	}
	online, total, err := metadata.CheckQuorum(m.Sess)
	if err != nil {
		return nil, err
	}
	hasQuorum := metadata.HasQuorum(online, total)
	if !hasQuorum {
		log.Warn().
			Int("online", online).
			Int("total", total).
			Msg("Cluster does not have quorum, bootstrapping anyway")
	}

	identity, err := metadata.FetchBootstrapTargets(m.Sess)
	if err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving deployment directory %s: %w", dir, err)
	}

	values := map[string]string{}
	for k, v := range opts.Values {
		values[k] = v
	}
	if values["use-sockets"] == "1" && values["socketsdir"] == "" {
		values["socketsdir"] = absDir
	}
	renderOpts, err := render.FillOptions(identity.MultiMaster, values)
	if err != nil {
		return nil, err
	}
	if mode := opts.Get("ssl_mode"); strings.EqualFold(mode, session.SSLModeDisabled) {
		log.Warn().Msg("Metadata connections will not use SSL")
	}

	configPath := filepath.Join(absDir, configFileName)

	var rec *DeploymentRecord
	existed := true
	if _, statErr := os.Stat(absDir); os.IsNotExist(statErr) {
		existed = false
	} else {
		if rec, err = readDeploymentRecord(configPath); err != nil {
			return nil, err
		}
		if rec != nil && rec.ClusterName != "" && rec.ClusterName != identity.ClusterName && !opts.Bool("force") {
			return nil, &ConflictError{Dir: absDir, Existing: rec.ClusterName, Wanted: identity.ClusterName}
		}
	}

	// A record for the same cluster means this is a refresh: the run
	// reuses the registered router id and rotates the same account
	// instead of piling up a new one.
	var priorID uint32
	var priorUser string
	if rec != nil && rec.ClusterName == identity.ClusterName {
		priorID = rec.RouterID
		priorUser = rec.AccountUser
	}

	if !existed {
		if err := os.MkdirAll(absDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating deployment directory %s: %w", absDir, err)
		}
		defer func() {
			if err != nil {
				os.RemoveAll(absDir)
			}
		}()
	}

	keyringPath := filepath.Join(absDir, keyringFileName)
	masterKeyPath := filepath.Join(absDir, masterKeyFileName)
	kr, err := keyring.Open(keyringPath, masterKeyPath)
	if err != nil {
		return nil, err
	}

	retries, err := opts.PasswordRetries()
	if err != nil {
		return nil, err
	}

	hostname := m.Hostname
	if hostname == "" {
		if hostname, err = os.Hostname(); err != nil {
			return nil, fmt.Errorf("determining local hostname: %w", err)
		}
	}

	prov := provision.NewProvisioner(m.Sess, m.Passwords)
	routerID, accountUser, password, err := m.provisionAccount(prov, routerName, hostname,
		priorID, priorUser, retries, opts, renderOpts)
	if err != nil {
		return nil, err
	}

	kr.Store(accountUser, password)
	if err := kr.Save(); err != nil {
		return nil, err
	}

	renderOpts.KeyringPath = keyringPath
	renderOpts.MasterKeyPath = masterKeyPath
	text := render.Render(render.Config{
		RouterID:       routerID,
		Name:           routerName,
		User:           opts.Get("user"),
		Servers:        strings.Join(identity.Servers, ","),
		ClusterName:    identity.ClusterName,
		ReplicaSetName: identity.ReplicaSetName,
		AccountUser:    accountUser,
	}, renderOpts)

	if err := writeConfig(configPath, text); err != nil {
		return nil, err
	}
	if err := writeScripts(absDir, configPath); err != nil {
		return nil, err
	}

	log.Info().
		Uint32("router_id", routerID).
		Str("cluster", identity.ClusterName).
		Str("dir", absDir).
		Msg("Bootstrap complete")

	return &Report{
		RouterID:    routerID,
		AccountUser: accountUser,
		ConfigPath:  configPath,
		ClusterName: identity.ClusterName,
		HasQuorum:   hasQuorum,
	}, nil
}

// provisionAccount runs the transactional part of the bootstrap:
// registering the router in the metadata (or reusing the row a prior
// run on the same cluster registered), rotating its account, and
// recording its endpoints. Any failure rolls the transaction back so no
// half-provisioned account survives.
func (m *Manager) provisionAccount(prov *provision.Provisioner, routerName, hostname string,
	priorID uint32, priorUser string,
	retries int, opts cfg.BootstrapOptions, renderOpts render.Options) (routerID uint32, accountUser, password string, err error) {

	if err = m.Sess.Execute("START TRANSACTION"); err != nil {
		return 0, "", "", err
	}
	defer func() {
		if err != nil {
			if rbErr := m.Sess.Execute("ROLLBACK"); rbErr != nil {
				log.Error().Err(rbErr).Msg("Unable to roll back bootstrap transaction")
			}
		}
	}()

	reused := false
	if priorID > 0 {
		if reused, err = prov.RefreshRouter(priorID, routerName); err != nil {
			return 0, "", "", err
		}
		if reused {
			routerID = priorID
		}
	}
	if !reused {
		if routerID, err = prov.RegisterRouter(routerName, hostname); err != nil {
			return 0, "", "", err
		}
	}

	// Reusing the recorded account name keeps a same-cluster refresh
	// byte-identical on disk; the drop below still rotates its password.
	accountUser = provision.AccountName(routerID)
	if reused && provision.AccountBelongsTo(priorUser, routerID) {
		accountUser = priorUser
	}
	if err = prov.DropExistingAccounts(provision.AccountNamePattern(routerID)); err != nil {
		return 0, "", "", err
	}

	password, err = prov.CreateAccount(provision.Account{
		Username:                accountUser,
		HostPatterns:            opts.AccountHosts,
		PasswordRetries:         retries,
		ForcePasswordValidation: opts.Bool("force-password-validation"),
	})
	if err != nil {
		return 0, "", "", err
	}

	err = prov.RecordRouterIdentity(routerID, accountUser,
		renderOpts.RW.Port, renderOpts.RO.Port, renderOpts.RWX.Port, renderOpts.ROX.Port)
	if err != nil {
		return 0, "", "", err
	}

	if err = m.Sess.Execute("COMMIT"); err != nil {
		return 0, "", "", err
	}
	return routerID, accountUser, password, nil
}

// writeConfig writes the rendered configuration through a temporary
// file. When an existing configuration differs from the new one it is
// kept as a .bak copy first.
func writeConfig(configPath, text string) error {
	old, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if string(old) == text {
			return nil
		}
		if err := os.WriteFile(configPath+backupSuffix, old, 0o600); err != nil {
			return fmt.Errorf("backing up existing configuration: %w", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("reading existing configuration %s: %w", configPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(configPath), configFileName+".tmp")
	if err != nil {
		return fmt.Errorf("writing configuration %s: %w", configPath, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return fmt.Errorf("writing configuration %s: %w", configPath, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing configuration %s: %w", configPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing configuration %s: %w", configPath, err)
	}
	if err := os.Rename(tmp.Name(), configPath); err != nil {
		return fmt.Errorf("writing configuration %s: %w", configPath, err)
	}
	return nil
}
