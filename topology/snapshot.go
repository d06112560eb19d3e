package topology

import (
	"github.com/clustergate/clustergate/metadata"
	"github.com/clustergate/clustergate/session"
)

// Snapshot is the result of one complete resolution pass. It is immutable
// after construction; a new pass produces a new Snapshot and the previous
// one stays valid for readers until replaced.
type Snapshot struct {
	// PrimaryID is empty when no primary is known to the polled node
	// (multi-master mode, or the node is not part of the group).
	PrimaryID   string
	MultiMaster bool
	Members     map[string]metadata.Member
	OnlineCount int
	TotalCount  int
}

// HasQuorum reports whether a majority of members is online.
func (s *Snapshot) HasQuorum() bool {
	return metadata.HasQuorum(s.OnlineCount, s.TotalCount)
}

// Primary returns the primary member, if the snapshot has one.
func (s *Snapshot) Primary() (metadata.Member, bool) {
	m, ok := s.Members[s.PrimaryID]
	return m, ok
}

// Secondaries returns all members with the Secondary role. In
// multi-master mode this is always empty.
func (s *Snapshot) Secondaries() []metadata.Member {
	var out []metadata.Member
	for _, m := range s.Members {
		if m.Role == metadata.RoleSecondary {
			out = append(out, m)
		}
	}
	return out
}

// Resolve performs one resolution pass. FetchMembers runs the primary
// lookup strictly before the membership query, so roles are assigned
// against a primary id captured at a consistent point. Resolve either
// returns a complete snapshot or an error, never a partial result.
func Resolve(sess session.Session) (*Snapshot, error) {
	members, singleMaster, err := metadata.FetchMembers(sess)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		MultiMaster: !singleMaster,
		Members:     members,
		TotalCount:  len(members),
	}
	for _, m := range members {
		if m.State == metadata.StateOnline {
			snap.OnlineCount++
		}
		if singleMaster && m.Role == metadata.RolePrimary {
			snap.PrimaryID = m.ID
		}
	}
	return snap, nil
}
