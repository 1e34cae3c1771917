package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"fleetmaster/fleet"
)

// setupRoutes builds the HTTP surface: agent websocket, health/version,
// and the operator API for browsing clients and dispatching commands.
func setupRoutes(manager *fleet.Manager) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", handleHealth)

	// Version info
	mux.HandleFunc("/api/version", handleVersion)

	// Agent connection (websocket)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleAgentWebSocket(w, r, manager)
	})

	// Operator API
	mux.HandleFunc("/api/clients", func(w http.ResponseWriter, r *http.Request) {
		handleClientList(w, r, manager)
	})
	mux.HandleFunc("/api/clients/", func(w http.ResponseWriter, r *http.Request) {
		handleClientRoute(w, r, manager)
	})

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"build_type": BuildType,
	})
}

func handleClientList(w http.ResponseWriter, r *http.Request, manager *fleet.Manager) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	var (
		clients interface{}
		err     error
	)
	switch r.URL.Query().Get("status") {
	case "online":
		clients, err = manager.ListOnline(r.Context())
	case "offline":
		clients, err = manager.ListOffline(r.Context())
	case "", "all":
		clients, err = manager.ListClients(r.Context())
	default:
		http.Error(w, "Invalid status filter (use online, offline or all)", http.StatusBadRequest)
		return
	}
	if err != nil {
		logError("Failed to list clients", "error", err)
		http.Error(w, "Failed to list clients", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(clients)
}

// handleClientRoute dispatches /api/clients/{id}[/commands|/pages/{page}].
func handleClientRoute(w http.ResponseWriter, r *http.Request, manager *fleet.Manager) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/clients/"), "/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	clientID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		handleClientGet(w, r, manager, clientID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		handleClientDelete(w, r, manager, clientID)
	case len(parts) == 2 && parts[1] == "commands" && r.Method == http.MethodPost:
		handleClientCommand(w, r, manager, clientID)
	case len(parts) == 3 && parts[1] == "pages" && r.Method == http.MethodGet:
		handleClientPage(w, r, manager, clientID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func handleClientGet(w http.ResponseWriter, r *http.Request, manager *fleet.Manager, clientID string) {
	client, err := manager.Client(r.Context(), clientID)
	if err != nil {
		logError("Failed to load client", "client_id", clientID, "error", err)
		http.Error(w, "Failed to load client", http.StatusInternalServerError)
		return
	}
	if client == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"client":    client,
		"connected": manager.IsConnected(clientID),
	})
}

func handleClientDelete(w http.ResponseWriter, r *http.Request, manager *fleet.Manager, clientID string) {
	if err := manager.DeleteClient(r.Context(), clientID); err != nil {
		logError("Failed to delete client", "client_id", clientID, "error", err)
		http.Error(w, "Failed to delete client", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"client_id": clientID,
	})
}

func handleClientCommand(w http.ResponseWriter, r *http.Request, manager *fleet.Manager, clientID string) {
	var req struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	status, err := manager.SendCommand(r.Context(), clientID, req.Type, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, fleet.ErrUnknownCommand):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, fleet.ErrUnknownClient):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, fleet.ErrDuplicateQueued):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logError("Failed to dispatch command", "client_id", clientID, "type", req.Type, "error", err)
			http.Error(w, "Failed to dispatch command", http.StatusInternalServerError)
		}
		return
	}

	logInfo("Command dispatched", "client_id", clientID, "type", req.Type, "status", status)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
	})
}

func handleClientPage(w http.ResponseWriter, r *http.Request, manager *fleet.Manager, clientID, page string) {
	data, err := manager.GetPage(r.Context(), clientID, fleet.Page(page), r.URL.Query().Get("filter"))
	if err != nil {
		switch {
		case errors.Is(err, fleet.ErrUnknownClient), errors.Is(err, fleet.ErrUnknownPage):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			logError("Failed to build page", "client_id", clientID, "page", page, "error", err)
			http.Error(w, "Failed to build page", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
