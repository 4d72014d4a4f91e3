package presence

import (
	"encoding/json"
	"net/http"
)

type checklistsResponse struct {
	Checklists []string `json:"checklists"`
}

type membersResponse struct {
	ChecklistID string   `json:"checklist_id"`
	Clients     []string `json:"clients"`
}

// NewHandler serves the tracked presence as JSON.
func NewHandler(store *Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /presence", func(w http.ResponseWriter, r *http.Request) {
		ids, err := store.Checklists(r.Context())
		if err != nil {
			log.Printf("ERROR: %v", err)
			http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, checklistsResponse{Checklists: ids})
	})
	mux.HandleFunc("GET /presence/{checklistId}", func(w http.ResponseWriter, r *http.Request) {
		checklistID := r.PathValue("checklistId")
		clients, err := store.Members(r.Context(), checklistID)
		if err != nil {
			log.Printf("ERROR: %v", err)
			http.Error(w, "presence unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, membersResponse{ChecklistID: checklistID, Clients: clients})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
