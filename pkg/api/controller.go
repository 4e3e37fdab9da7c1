package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wg-fleet/pkg/extract"
	"wg-fleet/pkg/generate"
	"wg-fleet/pkg/keys"
	"wg-fleet/pkg/ledger"
	"wg-fleet/pkg/model"
	"wg-fleet/pkg/version"
	"wg-fleet/pkg/wgconf"
)

// RegisterRoutes wires the HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, led *ledger.Ledger, importer *extract.Importer, token string, hub *EventHub) {
	auth := authFunc(token)

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("wg-fleet controller"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"build": version.Build})
	})

	mux.HandleFunc("/api/v1/import", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Config == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if req.Source == "" {
			req.Source = "api"
		}
		_, report, err := importer.Import(req.Source, req.Config)
		if err != nil {
			status := http.StatusInternalServerError
			var se *wgconf.StructureError
			var ce *ledger.ConflictError
			switch {
			case errors.As(err, &se):
				status = http.StatusUnprocessableEntity
			case errors.As(err, &ce):
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		resp := ImportResponse{Report: report}
		if len(report.Results) > 0 && report.Results[0].OK {
			resp.Guid = report.Results[0].Guid
		}
		hub.Broadcast(Event{Type: "import", Target: resp.Guid, Payload: report})
		log.Printf("api import source=%s passed=%d failed=%d", req.Source, report.Passed, report.Failed)
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/api/v1/identities", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ids, err := led.Store().ListIdentities()
		if err != nil {
			http.Error(w, "failed to list identities", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, ids)
	})

	mux.HandleFunc("/api/v1/identity", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		guid := r.URL.Query().Get("guid")
		if guid == "" {
			http.Error(w, "guid is required", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			id, ok, err := led.Get(guid)
			if err != nil {
				http.Error(w, "lookup failed", http.StatusInternalServerError)
				return
			}
			if !ok {
				http.Error(w, "identity not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, id)
		case http.MethodDelete:
			if err := led.Store().DeleteIdentity(guid); err != nil {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			_ = led.Store().AppendAudit(model.AuditEntry{
				Actor: "api", Action: "remove", Target: guid, Timestamp: time.Now(),
			})
			hub.Broadcast(Event{Type: "remove", Target: guid})
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/rotations", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		guid := r.URL.Query().Get("guid")
		if guid == "" {
			http.Error(w, "guid is required", http.StatusBadRequest)
			return
		}
		hist, err := led.History(guid)
		if err != nil {
			http.Error(w, "failed to list rotations", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, hist)
	})

	mux.HandleFunc("/api/v1/rotate", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req RotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Guid == "" || req.NewKey == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		id, err := led.Rotate(req.Guid, req.NewKey, req.Reason)
		if err != nil {
			var ce *ledger.ConflictError
			if errors.As(err, &ce) {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = led.Store().AppendAudit(model.AuditEntry{
			Actor: "api", Action: "rotate", Target: id.PermanentGuid,
			Detail: req.Reason, Timestamp: time.Now(),
		})
		hub.Broadcast(Event{Type: "rotate", Target: id.PermanentGuid, Payload: id})
		log.Printf("rotated identity %s", id.Hostname)
		writeJSON(w, http.StatusOK, id)
	})

	mux.HandleFunc("/api/v1/export", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		guid := r.URL.Query().Get("guid")
		if guid == "" {
			http.Error(w, "guid is required", http.StatusBadRequest)
			return
		}
		device, ok, err := led.Store().GetDevice(guid)
		if err != nil {
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		refreshPeerKeys(led, &device)
		var text string
		switch device.Kind {
		case model.KindCoordinationServer, model.KindSubnetRouter:
			text = generate.ExportServer(device)
		default:
			text = generate.Generate(device)
		}
		_ = led.Store().AppendAudit(model.AuditEntry{
			Actor: "api", Action: "export", Target: guid, Timestamp: time.Now(),
		})
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
	})

	mux.HandleFunc("/api/v1/keypair", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		priv, pub, err := keys.GenerateKeypair()
		if err != nil {
			http.Error(w, "failed to generate keypair", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, KeypairResponse{PrivateKey: priv, PublicKey: pub})
	})

	mux.HandleFunc("/api/v1/audit", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := led.Store().ListAudit(limit)
		if err != nil {
			http.Error(w, "failed to list audit", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})
}

// refreshPeerKeys swaps in the current key for every peer that rotated since
// the device model was stored; the generator then documents the permanent
// identity in a comment.
func refreshPeerKeys(led *ledger.Ledger, device *model.Device) {
	for i := range device.Peers {
		id, ok, err := led.Get(device.Peers[i].PermanentGuid)
		if err != nil || !ok {
			continue
		}
		device.Peers[i].PublicKey = id.CurrentPublicKey
		if device.Peers[i].Hostname == "" {
			device.Peers[i].Hostname = id.Hostname
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func authFunc(token string) func(r *http.Request) bool {
	if token == "" {
		return func(_ *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			// also allow simple Bearer token
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		return h == token
	}
}
