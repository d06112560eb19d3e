package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustergate/clustergate/cfg"
	"github.com/clustergate/clustergate/provision"
	"github.com/clustergate/clustergate/session"
)

// expectMetadataChecks scripts the validation queries every bootstrap
// run starts with.
func expectMetadataChecks(r *session.Replayer, clusterName string) {
	r.ExpectQueryOne("SELECT").ThenReturn(session.Vals("1", "0", "1")) // schema version
	r.ExpectQueryOne("SELECT").ThenReturn(session.Vals("1", "1"))     // metadata support
	r.ExpectQueryOne("SELECT member_state").ThenReturn(session.Vals("ONLINE"))
	r.ExpectQueryOne("SELECT SUM").ThenReturn(session.Vals("3", "3")) // quorum
	r.ExpectQuery("SELECT").ThenReturn(
		session.Vals(clusterName, "myreplicaset", "pm", "somehost:3306"),
	)
}

func expectGrants(r *session.Replayer) {
	r.ExpectExecute("GRANT SELECT ON mysql_innodb_cluster_metadata.*").ThenOK()
	r.ExpectExecute("GRANT SELECT ON performance_schema.replication_group_members").ThenOK()
	r.ExpectExecute("GRANT SELECT ON performance_schema.replication_group_member_stats").ThenOK()
}

// expectProvisioning scripts the transactional part of a first run
// against a directory with no previous deployment.
func expectProvisioning(r *session.Replayer) {
	r.ExpectExecute("START TRANSACTION").ThenOK()
	r.ExpectQueryOne("SELECT host_id, host_name").ThenReturn()
	r.ExpectExecute("INSERT INTO mysql_innodb_cluster_metadata.hosts").ThenOK(1)
	r.ExpectExecute("INSERT INTO mysql_innodb_cluster_metadata.routers").ThenOK(4)
	r.ExpectQueryOne("SELECT COUNT(*) FROM mysql.user").ThenReturn(session.Vals("0"))
	r.ExpectExecute("CREATE USER gate_router4_").ThenOK()
	expectGrants(r)
	r.ExpectExecute("UPDATE mysql_innodb_cluster_metadata.routers SET attributes").ThenOK()
	r.ExpectExecute("COMMIT").ThenOK()
}

// expectRefreshProvisioning scripts a rerun that found router id 4 in
// the existing configuration: the router row is reused and the previous
// account dropped before its replacement is created.
func expectRefreshProvisioning(r *session.Replayer, accountUser string) {
	r.ExpectExecute("START TRANSACTION").ThenOK()
	r.ExpectQueryOne("SELECT router_id FROM mysql_innodb_cluster_metadata.routers").
		ThenReturn(session.Vals("4"))
	r.ExpectExecute("UPDATE mysql_innodb_cluster_metadata.routers SET router_name").ThenOK()
	r.ExpectQueryOne("SELECT COUNT(*) FROM mysql.user").ThenReturn(session.Vals("1"))
	r.ExpectExecute("SELECT CONCAT('DROP USER '").ThenOK()
	r.ExpectExecute("PREPARE drop_user_stmt").ThenOK()
	r.ExpectExecute("EXECUTE drop_user_stmt").ThenOK()
	r.ExpectExecute("DEALLOCATE PREPARE drop_user_stmt").ThenOK()
	r.ExpectExecute("CREATE USER " + accountUser).ThenOK()
	expectGrants(r)
	r.ExpectExecute("UPDATE mysql_innodb_cluster_metadata.routers SET attributes").ThenOK()
	r.ExpectExecute("COMMIT").ThenOK()
}

func testOptions(t *testing.T, values map[string]string) cfg.BootstrapOptions {
	t.Helper()
	opts := cfg.NewBootstrapOptions()
	for k, v := range values {
		require.NoError(t, opts.Set(k, v))
	}
	return opts
}

func runBootstrap(t *testing.T, r *session.Replayer, dir string, values map[string]string) (*Report, error) {
	t.Helper()
	mgr := &Manager{
		Sess:      r,
		Passwords: provision.FixedPassword("secret"),
		Hostname:  "testhost",
	}
	return mgr.Bootstrap(dir, testOptions(t, values))
}

func TestBootstrap_FreshDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectProvisioning(r)

	rep, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)
	assert.True(t, r.Empty(), "unconsumed: %v", r.Remaining())

	assert.Equal(t, uint32(4), rep.RouterID)
	assert.True(t, strings.HasPrefix(rep.AccountUser, "gate_router4_"))
	assert.Equal(t, "mycluster", rep.ClusterName)
	assert.True(t, rep.HasQuorum)

	text, err := os.ReadFile(rep.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(text), "name=myrouter\n")
	assert.Contains(t, string(text), "[metadata_cache:mycluster]\n")
	assert.Contains(t, string(text), "router_id=4\n")
	assert.Contains(t, string(text), "bootstrap_server_addresses=mysql://somehost:3306\n")
	assert.Contains(t, string(text), "user="+rep.AccountUser+"\n")

	for _, f := range []string{"start.sh", "stop.sh", "keyring", "clustergate.key"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
}

func TestBootstrap_RefreshSameClusterNoBackup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectProvisioning(r)
	first, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)

	before, err := os.ReadFile(first.ConfigPath)
	require.NoError(t, err)

	r = &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectRefreshProvisioning(r, first.AccountUser)
	rep, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)
	assert.True(t, r.Empty(), "unconsumed: %v", r.Remaining())

	// the rerun reuses the registered router id and account name, so the
	// previous account is found and rotated instead of left behind
	assert.Equal(t, first.RouterID, rep.RouterID)
	assert.Equal(t, first.AccountUser, rep.AccountUser)

	// refreshed in place: identical content, no backup
	after, err := os.ReadFile(rep.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(rep.ConfigPath + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestBootstrap_RefreshWithStaleRouterRowRegistersAnew(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectProvisioning(r)
	_, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)

	// the recorded router row is gone from the metadata
	r = &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	r.ExpectExecute("START TRANSACTION").ThenOK()
	r.ExpectQueryOne("SELECT router_id FROM mysql_innodb_cluster_metadata.routers").ThenReturn()
	r.ExpectQueryOne("SELECT host_id, host_name").ThenReturn()
	r.ExpectExecute("INSERT INTO mysql_innodb_cluster_metadata.hosts").ThenOK(1)
	r.ExpectExecute("INSERT INTO mysql_innodb_cluster_metadata.routers").ThenOK(7)
	r.ExpectQueryOne("SELECT COUNT(*) FROM mysql.user").ThenReturn(session.Vals("0"))
	r.ExpectExecute("CREATE USER gate_router7_").ThenOK()
	expectGrants(r)
	r.ExpectExecute("UPDATE mysql_innodb_cluster_metadata.routers SET attributes").ThenOK()
	r.ExpectExecute("COMMIT").ThenOK()

	rep, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)
	assert.True(t, r.Empty(), "unconsumed: %v", r.Remaining())
	assert.Equal(t, uint32(7), rep.RouterID)
	assert.True(t, strings.HasPrefix(rep.AccountUser, "gate_router7_"))
}

func TestBootstrap_DifferentClusterWithoutForceFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectProvisioning(r)
	rep, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)

	before, err := os.ReadFile(rep.ConfigPath)
	require.NoError(t, err)

	r = &session.Replayer{}
	expectMetadataChecks(r, "kluster")
	_, err = runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "use the --force")
	assert.True(t, r.Empty(), "must fail before touching the cluster: %v", r.Remaining())

	// existing configuration untouched, no backup
	after, err := os.ReadFile(rep.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(rep.ConfigPath + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestBootstrap_DifferentClusterWithForceWritesBackup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectProvisioning(r)
	rep, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)

	r = &session.Replayer{}
	expectMetadataChecks(r, "kluster")
	expectProvisioning(r)
	rep2, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter", "force": "1"})
	require.NoError(t, err)

	text, err := os.ReadFile(rep2.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(text), "[metadata_cache:kluster]\n")

	bak, err := os.ReadFile(rep.ConfigPath + ".bak")
	require.NoError(t, err)
	assert.Contains(t, string(bak), "[metadata_cache:mycluster]\n")
}

func TestBootstrap_RenameWritesBackup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectProvisioning(r)
	rep, err := runBootstrap(t, r, dir, map[string]string{"name": "myrouter"})
	require.NoError(t, err)

	// a different name is just a rename, allowed without force
	r = &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectRefreshProvisioning(r, rep.AccountUser)
	_, err = runBootstrap(t, r, dir, map[string]string{"name": "xmyrouter"})
	require.NoError(t, err)

	bak, err := os.ReadFile(rep.ConfigPath + ".bak")
	require.NoError(t, err)
	assert.Contains(t, string(bak), "name=myrouter\n")
}

func TestBootstrap_FreshDirectoryRemovedOnFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	r.ExpectExecute("START TRANSACTION").ThenError("boo!", 1234)

	_, err := runBootstrap(t, r, dir, nil)
	require.Error(t, err)
	assert.True(t, r.Empty())

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "freshly created directory must be removed")
}

func TestBootstrap_ExistingDirectoryKeptOnFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	expectProvisioning(r)
	_, err := runBootstrap(t, r, dir, nil)
	require.NoError(t, err)

	r = &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	r.ExpectExecute("START TRANSACTION").ThenOK()
	r.ExpectQueryOne("SELECT router_id FROM mysql_innodb_cluster_metadata.routers").
		ThenError("boo!", 1234)
	r.ExpectExecute("ROLLBACK").ThenOK()

	_, err = runBootstrap(t, r, dir, nil)
	require.Error(t, err)
	assert.True(t, r.Empty(), "unconsumed: %v", r.Remaining())

	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr, "pre-existing directory must survive a failed run")
	_, statErr = os.Stat(filepath.Join(dir, "clustergate.key"))
	assert.NoError(t, statErr)
}

func TestBootstrap_TransactionRolledBackOnFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "deployment")

	r := &session.Replayer{}
	expectMetadataChecks(r, "mycluster")
	r.ExpectExecute("START TRANSACTION").ThenOK()
	r.ExpectQueryOne("SELECT host_id, host_name").ThenReturn()
	r.ExpectExecute("INSERT INTO mysql_innodb_cluster_metadata.hosts").ThenOK(1)
	r.ExpectExecute("INSERT INTO mysql_innodb_cluster_metadata.routers").ThenOK(4)
	r.ExpectQueryOne("SELECT COUNT(*) FROM mysql.user").ThenReturn(session.Vals("0"))
	r.ExpectExecute("CREATE USER").ThenError("access denied", 1045)
	r.ExpectExecute("ROLLBACK").ThenOK()

	_, err := runBootstrap(t, r, dir, nil)
	require.Error(t, err)
	assert.True(t, r.Empty(), "unconsumed: %v", r.Remaining())
}

func TestBootstrap_InvalidNameFailsBeforeAnyQuery(t *testing.T) {
	r := &session.Replayer{}

	_, err := runBootstrap(t, r, t.TempDir(), map[string]string{"name": "system"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestBootstrap_InvalidPasswordRetriesFailsBeforeAnyQuery(t *testing.T) {
	r := &session.Replayer{}

	_, err := runBootstrap(t, r, t.TempDir(), map[string]string{"password-retries": "0"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid password-retries value '0'")
}

func TestReadDeploymentRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clustergate.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"# File automatically generated during bootstrap\n"+
			"[DEFAULT]\n"+
			"name=myrouter\n"+
			"user=daemonuser\n"+
			"\n"+
			"[metadata_cache:mycluster]\n"+
			"router_id=4\n"+
			"user=gate_router4_abcdef012345\n"+
			"metadata_cluster=mycluster\n"), 0o600))

	rec, err := readDeploymentRecord(path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "myrouter", rec.RouterName)
	assert.Equal(t, "mycluster", rec.ClusterName)
	assert.Equal(t, uint32(4), rec.RouterID)
	// the run-as user in [DEFAULT] must not shadow the metadata account
	assert.Equal(t, "gate_router4_abcdef012345", rec.AccountUser)
}

func TestReadDeploymentRecord_MalformedRouterID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clustergate.conf")
	require.NoError(t, os.WriteFile(path, []byte(
		"[metadata_cache:mycluster]\n"+
			"router_id=bogus\n"+
			"metadata_cluster=mycluster\n"), 0o600))

	rec, err := readDeploymentRecord(path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.RouterID)
}

func TestReadDeploymentRecord_Missing(t *testing.T) {
	rec, err := readDeploymentRecord(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Nil(t, rec)
}
