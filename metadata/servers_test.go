package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clustergate/clustergate/session"
)

func TestFetchBootstrapTargets_SinglePrimary(t *testing.T) {
	r := &session.Replayer{}
	r.ExpectQuery("SELECT").ThenReturn(
		session.Vals("mycluster", "myreplicaset", "pm", "host1:3306"),
		session.Vals("mycluster", "myreplicaset", "pm", "host2:3306"),
	)

	id, err := FetchBootstrapTargets(r)
	require.NoError(t, err)
	assert.Equal(t, "mycluster", id.ClusterName)
	assert.Equal(t, "myreplicaset", id.ReplicaSetName)
	assert.False(t, id.MultiMaster)
	assert.Equal(t, []string{"mysql://host1:3306", "mysql://host2:3306"}, id.Servers)
}

func TestFetchBootstrapTargets_MultiPrimary(t *testing.T) {
	r := &session.Replayer{}
	r.ExpectQuery("SELECT").ThenReturn(
		session.Vals("mycluster", "myreplicaset", "mm", "host1:3306"),
	)

	id, err := FetchBootstrapTargets(r)
	require.NoError(t, err)
	assert.True(t, id.MultiMaster)
}

func TestFetchBootstrapTargets_UnknownTopologyType(t *testing.T) {
	r := &session.Replayer{}
	r.ExpectQuery("SELECT").ThenReturn(
		session.Vals("mycluster", "myreplicaset", "xx", "host1:3306"),
	)

	_, err := FetchBootstrapTargets(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown topology type 'xx'")
}

func TestFetchBootstrapTargets_Empty(t *testing.T) {
	r := &session.Replayer{}
	r.ExpectQuery("SELECT").ThenReturn()

	_, err := FetchBootstrapTargets(r)
	var nce *NoClusterError
	assert.ErrorAs(t, err, &nce)
}

func TestFetchBootstrapTargets_AmbiguousCluster(t *testing.T) {
	r := &session.Replayer{}
	r.ExpectQuery("SELECT").ThenReturn(
		session.Vals("cluster1", "myreplicaset", "pm", "host1:3306"),
		session.Vals("cluster2", "myreplicaset", "pm", "host2:3306"),
	)

	_, err := FetchBootstrapTargets(r)
	var ae *AmbiguousTargetError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "cluster", ae.Kind)
}

func TestFetchBootstrapTargets_AmbiguousReplicaSet(t *testing.T) {
	r := &session.Replayer{}
	r.ExpectQuery("SELECT").ThenReturn(
		session.Vals("mycluster", "rs1", "pm", "host1:3306"),
		session.Vals("mycluster", "rs2", "pm", "host2:3306"),
	)

	_, err := FetchBootstrapTargets(r)
	var ae *AmbiguousTargetError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "replicaset", ae.Kind)
}
