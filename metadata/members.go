package metadata

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/clustergate/clustergate/session"
)

// MemberState is a group member's replication state as reported by the
// cluster. Unrecognized states map to StateOther so newer servers keep
// working.
type MemberState int

const (
	StateOnline MemberState = iota
	StateOffline
	StateUnreachable
	StateRecovering
	StateOther
)

func (st MemberState) String() string {
	switch st {
	case StateOnline:
		return "ONLINE"
	case StateOffline:
		return "OFFLINE"
	case StateUnreachable:
		return "UNREACHABLE"
	case StateRecovering:
		return "RECOVERING"
	default:
		return "OTHER"
	}
}

// MemberRole is derived during resolution, never read from the server.
type MemberRole int

const (
	RolePrimary MemberRole = iota
	RoleSecondary
)

func (r MemberRole) String() string {
	if r == RolePrimary {
		return "PRIMARY"
	}
	return "SECONDARY"
}

// Member is one cluster member in a topology snapshot. Values are
// immutable once produced; every resolution pass builds fresh ones.
type Member struct {
	ID    string
	Host  string
	Port  uint16
	State MemberState
	Role  MemberRole
}

// FetchPrimaryMember reads the primary member id as seen by this node.
// An empty result or empty value means no primary is known here: the node
// is either not part of the group or the group runs multi-master. That is
// not an error.
func FetchPrimaryMember(s session.Session) (string, error) {
	row, err := s.QueryOne(primaryMemberQuery)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	if len(row) != 2 {
		return "", fieldCountError("the status response", "2", len(row))
	}
	return row.Str(1), nil
}

// FetchMembers reads the membership table for the group replication
// applier channel and assigns roles. In single-master mode exactly the
// member matching the resolved primary id is Primary; in multi-master
// mode every member is Primary and no Secondary exists.
//
// The primary lookup runs strictly before the membership query; role
// assignment depends on the primary id captured at a consistent point.
func FetchMembers(s session.Session) (map[string]Member, bool, error) {
	primaryID, err := FetchPrimaryMember(s)
	if err != nil {
		return nil, false, err
	}

	rows, err := s.Query(groupMembersQuery)
	if err != nil {
		return nil, false, err
	}

	members := make(map[string]Member, len(rows))
	singleMaster := false
	for _, row := range rows {
		if len(row) != 5 {
			return nil, false, fieldCountError("resultset from group_replication query", "5", len(row))
		}
		// member_id/host/port/state must never be NULL; a NULL here means
		// the server gave us something we cannot interpret, so fail loudly
		// instead of skipping the row.
		if row[0] == nil || row[1] == nil || row[2] == nil || row[3] == nil {
			log.Warn().
				Str("member_id", row.Str(0)).
				Str("member_host", row.Str(1)).
				Str("member_port", row.Str(2)).
				Str("member_state", row.Str(3)).
				Msg("Membership query returned NULL fields")
			return nil, false, nullValueError("group_replication_metadata")
		}

		mode := row.Str(4)
		singleMaster = mode == "1" || mode == "ON"

		port, err := strconv.ParseUint(*row[2], 10, 16)
		if err != nil {
			return nil, false, badValueError("group_replication_metadata", "member_port", *row[2])
		}

		m := Member{
			ID:   *row[0],
			Host: *row[1],
			Port: uint16(port),
		}
		switch *row[3] {
		case "ONLINE":
			m.State = StateOnline
		case "OFFLINE":
			m.State = StateOffline
		case "UNREACHABLE":
			m.State = StateUnreachable
		case "RECOVERING":
			m.State = StateRecovering
		default:
			// Covers "ERROR" and anything a newer server may add.
			log.Info().Str("state", *row[3]).Str("member_id", m.ID).
				Msg("Unknown state in replication_group_members table")
			m.State = StateOther
		}

		if m.ID == primaryID || !singleMaster {
			m.Role = RolePrimary
		} else {
			m.Role = RoleSecondary
		}
		members[m.ID] = m
	}
	return members, singleMaster, nil
}
