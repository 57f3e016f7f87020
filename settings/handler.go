// Package settings exposes the app configuration (sheet script URL,
// timeout, default operator) and a connectivity probe.
package settings

import (
	"encoding/json"
	"log"
	"net/http"

	"rodlot/config"
	"rodlot/sheet"
)

// GetHandler returns the current configuration.
func GetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(config.GetConfig()); err != nil {
			log.Printf("ERROR: [Settings] failed to encode config: %v", err)
		}
	}
}

// SaveHandler persists a new configuration to disk.
func SaveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var newCfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := config.SaveConfig(newCfg); err != nil {
			log.Printf("ERROR: [Settings] save failed: %v", err)
			http.Error(w, "Failed to save config", http.StatusInternalServerError)
			return
		}
		log.Println("INFO: [Settings] configuration saved.")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}
}

// PingHandler probes the configured sheet URL with a minimal page query.
func PingHandler(sh *sheet.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reachable := true
		var msg string
		if _, err := sh.Page(r.Context(), 1, 1); err != nil {
			reachable = false
			msg = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"reachable": reachable,
			"error":     msg,
		})
	}
}
