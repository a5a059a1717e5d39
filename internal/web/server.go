package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/lucasnoah/agentflow/internal/db"
	"github.com/lucasnoah/agentflow/internal/state"
)

// Server is the read-only status API over the run store and event log.
type Server struct {
	store *state.Store
	db    *db.DB
	port  int
}

// NewServer creates a Server.
func NewServer(store *state.Store, database *db.DB, port int) *Server {
	return &Server{store: store, db: database, port: port}
}

// Start serves the API until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("agentflow status API: http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.routeRun)
	return mux
}

func (s *Server) routeRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleRunDetail(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "events":
		s.handleRunEvents(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

// RunSummary is one row in the run listing.
type RunSummary struct {
	RunID     string `json:"run_id"`
	IssueRef  string `json:"issue_ref,omitempty"`
	Worktree  string `json:"worktree_path,omitempty"`
	LastPhase string `json:"last_phase,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	LastEvent string `json:"last_event,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runs, err := s.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, st := range runs {
		sum := RunSummary{
			RunID:     st.RunID,
			IssueRef:  st.IssueRef,
			Worktree:  st.WorktreePath,
			UpdatedAt: st.UpdatedAt,
		}
		if n := len(st.PhaseHistory); n > 0 {
			sum.LastPhase = st.PhaseHistory[n-1].Phase
			sum.Outcome = st.PhaseHistory[n-1].Outcome
		}
		if s.db != nil {
			if e, err := s.db.LatestEvent(st.RunID); err == nil && e != nil {
				sum.LastEvent = e.Event
			}
		}
		summaries = append(summaries, sum)
	}
	writeJSON(w, summaries)
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st, err := s.store.Load(runID)
	if errors.Is(err, state.ErrNotFound) || errors.Is(err, state.ErrInvalidIdentifier) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "event log not configured", http.StatusServiceUnavailable)
		return
	}

	events, err := s.db.RunHistory(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []db.PhaseEvent{}
	}
	writeJSON(w, events)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}
