package topology

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clustergate/clustergate/metadata"
	"github.com/clustergate/clustergate/session"
	"github.com/clustergate/clustergate/telemetry"
)

// Cache runs the resolver on a fixed interval and publishes each
// completed snapshot atomically. Readers always observe a fully built
// snapshot; a failed polling cycle leaves the previous one in effect.
type Cache struct {
	sess     session.Session
	interval time.Duration

	current atomic.Pointer[Snapshot]

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCache builds a cache polling sess every interval. Call Start to
// begin refreshing.
func NewCache(sess session.Session, interval time.Duration) *Cache {
	return &Cache{
		sess:     sess,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Current returns the most recently published snapshot, or nil before the
// first successful refresh.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Refresh performs one resolution pass immediately and publishes the
// result. The swap is the only mutation; the snapshot itself is immutable.
func (c *Cache) Refresh() error {
	snap, err := Resolve(c.sess)
	if err != nil {
		telemetry.TopologyRefreshTotal.With("failed").Inc()
		return err
	}
	c.publish(snap)
	telemetry.TopologyRefreshTotal.With("success").Inc()
	return nil
}

// trackedStates lists every state the member gauge reports. A state
// absent from a snapshot must be written as zero, or its gauge keeps the
// previous cycle's value.
var trackedStates = []metadata.MemberState{
	metadata.StateOnline,
	metadata.StateOffline,
	metadata.StateUnreachable,
	metadata.StateRecovering,
	metadata.StateOther,
}

// memberStateCounts tallies snap's members per state, with an explicit
// zero for every tracked state not present.
func memberStateCounts(snap *Snapshot) map[string]int {
	counts := make(map[string]int, len(trackedStates))
	for _, st := range trackedStates {
		counts[st.String()] = 0
	}
	for _, m := range snap.Members {
		counts[m.State.String()]++
	}
	return counts
}

func (c *Cache) publish(snap *Snapshot) {
	c.current.Store(snap)

	if snap.HasQuorum() {
		telemetry.ClusterQuorumAvailable.Set(1)
	} else {
		telemetry.ClusterQuorumAvailable.Set(0)
	}
	for state, n := range memberStateCounts(snap) {
		telemetry.ClusterMembers.With(state).Set(float64(n))
	}
}

// Start launches the background refresh loop. One resolution pass runs
// per tick; there is no internal concurrency within a pass.
func (c *Cache) Start() {
	go func() {
		defer close(c.done)

		if err := c.Refresh(); err != nil {
			log.Warn().Err(err).Msg("Initial topology refresh failed")
		}

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				if err := c.Refresh(); err != nil {
					log.Warn().Err(err).Msg("Topology refresh failed, keeping previous snapshot")
				}
			}
		}
	}()
}

// Stop terminates the refresh loop and waits for it to exit.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}
