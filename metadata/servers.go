package metadata

import (
	"fmt"

	"github.com/clustergate/clustergate/session"
)

// Topology type tags stored in the metadata.
const (
	topologySinglePrimary = "pm"
	topologyMultiPrimary  = "mm"
)

// ClusterIdentity names the one cluster/replicaset pair a bootstrap run
// targets, with the addresses the router will use to reach the metadata.
type ClusterIdentity struct {
	ClusterName    string
	ReplicaSetName string
	MultiMaster    bool
	Servers        []string // mysql:// URIs, in metadata row order
}

// FetchBootstrapTargets resolves the bootstrap target from the metadata.
// The result set must reference exactly one cluster and exactly one
// replicaset; anything else is an ambiguous target the user has to
// disambiguate.
func FetchBootstrapTargets(s session.Session) (ClusterIdentity, error) {
	rows, err := s.Query(bootstrapTargetsQuery)
	if err != nil {
		return ClusterIdentity{}, err
	}
	if len(rows) == 0 {
		return ClusterIdentity{}, &NoClusterError{}
	}

	var id ClusterIdentity
	clusters := map[string]bool{}
	replicasets := map[string]bool{}
	for _, row := range rows {
		if len(row) != 4 {
			return ClusterIdentity{}, fieldCountError("resultset from bootstrap servers query", "4", len(row))
		}
		if row[0] == nil || row[1] == nil || row[2] == nil || row[3] == nil {
			return ClusterIdentity{}, nullValueError("bootstrap servers query")
		}

		id.ClusterName = *row[0]
		id.ReplicaSetName = *row[1]
		clusters[*row[0]] = true
		replicasets[*row[1]] = true

		switch *row[2] {
		case topologyMultiPrimary:
			id.MultiMaster = true
		case topologySinglePrimary:
			id.MultiMaster = false
		default:
			return ClusterIdentity{}, fmt.Errorf("unknown topology type '%s' in metadata", *row[2])
		}

		id.Servers = append(id.Servers, "mysql://"+*row[3])
	}

	if len(clusters) > 1 {
		return ClusterIdentity{}, &AmbiguousTargetError{Kind: "cluster", Names: keys(clusters)}
	}
	if len(replicasets) > 1 {
		return ClusterIdentity{}, &AmbiguousTargetError{Kind: "replicaset", Names: keys(replicasets)}
	}
	return id, nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
