package telemetry

// Topology resolution metrics
var (
	// TopologyRefreshTotal counts resolution passes by result (success, failed)
	TopologyRefreshTotal CounterVec = noopCounterVec{}

	// ClusterMembers tracks member count by state (ONLINE, OFFLINE, ...)
	ClusterMembers GaugeVec = noopGaugeVec{}

	// ClusterQuorumAvailable indicates whether quorum holds (1=yes, 0=no)
	ClusterQuorumAvailable Gauge = NoopStat{}
)

// Bootstrap metrics
var (
	// BootstrapRunsTotal counts bootstrap runs by result (success, failed)
	BootstrapRunsTotal CounterVec = noopCounterVec{}

	// AccountCreateAttemptsTotal counts CREATE USER attempts by kind (hashed, plain)
	AccountCreateAttemptsTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	TopologyRefreshTotal = NewCounterVec(
		"topology_refresh_total",
		"Topology resolution passes by result",
		[]string{"result"},
	)
	ClusterMembers = NewGaugeVec(
		"cluster_members",
		"Number of cluster members by state",
		[]string{"state"},
	)
	ClusterQuorumAvailable = NewGauge(
		"cluster_quorum_available",
		"Whether the cluster has quorum (1=yes, 0=no)",
	)
	BootstrapRunsTotal = NewCounterVec(
		"bootstrap_runs_total",
		"Bootstrap runs by result",
		[]string{"result"},
	)
	AccountCreateAttemptsTotal = NewCounterVec(
		"account_create_attempts_total",
		"CREATE USER attempts by kind",
		[]string{"kind"},
	)
}
