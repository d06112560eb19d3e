package topology

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Handler exposes the current topology over HTTP for operators.
type Handler struct {
	cache *Cache
}

// NewHandler creates a handler reading from the given cache.
func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

// HandleMembers handles GET /topology/members.
func (h *Handler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.cache.Current()
	if snap == nil {
		http.Error(w, "no topology resolved yet", http.StatusServiceUnavailable)
		return
	}

	members := make([]map[string]interface{}, 0, len(snap.Members))
	for _, m := range snap.Members {
		members = append(members, map[string]interface{}{
			"member_id": m.ID,
			"host":      m.Host,
			"port":      m.Port,
			"state":     m.State.String(),
			"role":      m.Role.String(),
		})
	}

	response := map[string]interface{}{
		"members":      members,
		"primary":      snap.PrimaryID,
		"multi_master": snap.MultiMaster,
		"online_count": snap.OnlineCount,
		"total_count":  snap.TotalCount,
		"has_quorum":   snap.HasQuorum(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode members response")
	}
}
