package json

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes the response as JSON with the given status. The status has
// already gone out when encoding fails, so the fallback is best-effort only.
func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
