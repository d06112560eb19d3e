package metadata

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
)

const metadataSchema = "mysql_innodb_cluster_metadata"

var dialect = goqu.Dialect("mysql")

// SELECT queries against known tables are built with goqu; status/show
// statements and the metadata support probe keep their historical literal
// form because the server only accepts them verbatim.
var (
	schemaVersionQuery = mustSQL(dialect.
		From(goqu.S(metadataSchema).Table("schema_version")))

	groupMembersQuery = mustSQL(dialect.
		From(goqu.S("performance_schema").Table("replication_group_members")).
		Select(
			goqu.C("member_id"),
			goqu.C("member_host"),
			goqu.C("member_port"),
			goqu.C("member_state"),
			goqu.L("@@group_replication_single_primary_mode"),
		).
		Where(goqu.C("channel_name").Eq("group_replication_applier")))

	bootstrapTargetsQuery = mustSQL(dialect.
		From(goqu.S(metadataSchema).Table("clusters").As("F")).
		Join(
			goqu.S(metadataSchema).Table("replicasets").As("R"),
			goqu.On(goqu.I("F.cluster_id").Eq(goqu.I("R.cluster_id"))),
		).
		Join(
			goqu.S(metadataSchema).Table("instances").As("I"),
			goqu.On(goqu.I("R.replicaset_id").Eq(goqu.I("I.replicaset_id"))),
		).
		Select(
			goqu.I("F.cluster_name"),
			goqu.I("R.replicaset_name"),
			goqu.I("R.topology_type"),
			goqu.L("JSON_UNQUOTE(JSON_EXTRACT(`I`.`addresses`, '$.mysqlClassic'))"),
		))
)

const (
	primaryMemberQuery = "show status like 'group_replication_primary_member'"

	metadataSupportQuery = "SELECT " +
		" ((SELECT count(*) FROM mysql_innodb_cluster_metadata.clusters) <= 1 " +
		" AND (SELECT count(*) FROM mysql_innodb_cluster_metadata.replicasets) <= 1) as has_one_replicaset, " +
		"(SELECT attributes->>'$.group_replication_group_name' FROM mysql_innodb_cluster_metadata.replicasets) " +
		" = @@group_replication_group_name as replicaset_is_ours"

	groupOnlineQuery = "SELECT member_state" +
		" FROM performance_schema.replication_group_members" +
		" WHERE member_id = @@server_uuid"

	quorumQuery = "SELECT SUM(IF(member_state = 'ONLINE', 1, 0)) as num_onlines, COUNT(*) as num_total" +
		" FROM performance_schema.replication_group_members"
)

func mustSQL(ds *goqu.SelectDataset) string {
	q, _, err := ds.ToSQL()
	if err != nil {
		panic(err)
	}
	return q
}
