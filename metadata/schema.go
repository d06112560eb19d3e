package metadata

import (
	"fmt"
	"strconv"

	"github.com/clustergate/clustergate/session"
)

// supportedMajor is the metadata schema major version this release can
// interpret. Minor and patch bumps are compatible by contract.
const supportedMajor = 1

// Version of the cluster metadata schema.
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// CheckSchemaVersion reads the metadata schema version record and
// verifies it is one this release can interpret. A malformed record or an
// unsupported version is fatal to the whole bootstrap; no retries.
func CheckSchemaVersion(s session.Session) (Version, error) {
	row, err := s.QueryOne(schemaVersionQuery)
	if err != nil {
		return Version{}, err
	}
	if row == nil {
		return Version{}, fieldCountError(metadataSchema+".schema_version", "2 or 3", 0)
	}
	if len(row) != 2 && len(row) != 3 {
		return Version{}, fieldCountError(metadataSchema+".schema_version", "2 or 3", len(row))
	}

	var v Version
	if v.Major, err = versionField(row, 0); err != nil {
		return Version{}, err
	}
	if v.Minor, err = versionField(row, 1); err != nil {
		return Version{}, err
	}
	if len(row) == 3 {
		if v.Patch, err = versionField(row, 2); err != nil {
			return Version{}, err
		}
	}

	if v.Major != supportedMajor {
		return Version{}, &UnsupportedSchemaError{Version: v}
	}
	return v, nil
}

func versionField(row session.Row, i int) (int, error) {
	if row[i] == nil {
		return 0, nullValueError(metadataSchema + ".schema_version")
	}
	n, err := strconv.Atoi(*row[i])
	if err != nil {
		return 0, nullValueError(metadataSchema + ".schema_version")
	}
	return n, nil
}

// CheckMetadataSupport verifies the server carries metadata for exactly
// one cluster/replicaset pair that this group belongs to.
func CheckMetadataSupport(s session.Session) error {
	row, err := s.QueryOne(metadataSupportQuery)
	if err != nil {
		return err
	}
	if row == nil || len(row) != 2 {
		return fieldCountError("query for metadata support", "2", len(row))
	}
	if row.Str(0) != "1" {
		return fmt.Errorf("the provided server does not contain metadata for a single cluster")
	}
	return nil
}

// CheckGroupOnline verifies the bootstrap target itself is an online (or
// at least recovering) member of the replication group.
func CheckGroupOnline(s session.Session) error {
	row, err := s.QueryOne(groupOnlineQuery)
	if err != nil {
		return err
	}
	if row == nil || len(row) == 0 {
		return fmt.Errorf("the provided server is currently not a member of a replication group")
	}
	if len(row) != 1 {
		return fieldCountError("query for member_state", "1", len(row))
	}
	switch row.Str(0) {
	case "ONLINE", "RECOVERING":
		return nil
	default:
		return fmt.Errorf("the provided server is currently not in an ONLINE state (%s)", row.Str(0))
	}
}

// CheckQuorum reports online and total member counts. Quorum loss is data
// for the caller, not an error.
func CheckQuorum(s session.Session) (online, total int, err error) {
	row, err := s.QueryOne(quorumQuery)
	if err != nil {
		return 0, 0, err
	}
	if row == nil || len(row) != 2 {
		return 0, 0, fieldCountError("performance_schema.replication_group_members", "2", len(row))
	}
	online, err = strconv.Atoi(row.Str(0))
	if err != nil {
		return 0, 0, nullValueError("performance_schema.replication_group_members")
	}
	total, err = strconv.Atoi(row.Str(1))
	if err != nil {
		return 0, 0, nullValueError("performance_schema.replication_group_members")
	}
	return online, total, nil
}

// HasQuorum is the majority rule: strictly more than half the members
// must be online.
func HasQuorum(online, total int) bool {
	return online*2 > total
}
