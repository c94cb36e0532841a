package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// decodeJSON decodes a request body, rejecting unknown fields so typos in
// requests surface instead of silently taking defaults.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
