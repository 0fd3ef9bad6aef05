package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/raftkit/pkg/metrics"
	"github.com/cuemby/raftkit/pkg/raftnode"
)

// HealthServer provides HTTP health check endpoints alongside the
// admin gRPC service, for load balancers and orchestrators that expect
// plain HTTP rather than gRPC.
type HealthServer struct {
	node *raftnode.Node
	mux  *http.ServeMux
}

// NewHealthServer creates a health check HTTP server backed by node. A
// nil node is accepted so the process can serve /health before the
// node has finished recovering its log.
func NewHealthServer(node *raftnode.Node) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		node: node,
		mux:  mux,
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.Handle("/live", metrics.LivenessHandler())
	mux.Handle("/components", metrics.HealthHandler())
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start starts the health check HTTP server.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler implements the /health endpoint: a liveness check that
// returns 200 as long as the process is alive and answering HTTP.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// readyHandler implements the /ready endpoint: checks whether this
// node has a known leader, serving traffic without one is pointless
// since every write would fail.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.node != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		status, err := hs.node.GetStatus(ctx)
		cancel()
		switch {
		case err != nil:
			checks["raft"] = fmt.Sprintf("error: %v", err)
			ready = false
			message = "Raft node not responding"
		case status.Leader == "":
			checks["raft"] = "no leader elected"
			ready = false
			message = "Waiting for leader election"
		case status.Leader == status.ID:
			checks["raft"] = "leader"
		default:
			checks["raft"] = fmt.Sprintf("follower (leader: %s)", status.Leader)
		}
	} else {
		checks["raft"] = "not initialized"
		ready = false
		message = "Raft node not initialized"
	}
	metrics.UpdateComponent("raft", ready, checks["raft"])

	// Fold in whatever else the process registered (storage, admin API),
	// so a component that went unhealthy blocks readiness too.
	for name, state := range metrics.GetHealth().Components {
		if name == "raft" {
			continue
		}
		checks[name] = state
		if state != "healthy" {
			ready = false
			if message == "" {
				message = "Waiting for " + name
			}
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
