package client

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// apiError mirrors the server's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		var e apiError
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Message != "" {
			return fmt.Errorf("request failed: status %d: %s", resp.StatusCode, e.Message)
		}
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
