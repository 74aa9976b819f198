package jellyfin

import (
	"encoding/json"
	"net/http"
)

// HTTPError is the problem details body Jellyfin returns on errors.
type HTTPError struct {
	Status  int                 `json:"status"`
	Type    string              `json:"type,omitempty"`
	Title   string              `json:"title,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
	TraceID string              `json:"traceId,omitempty"`
}

const rfc9110 = "https://tools.ietf.org/html/rfc9110#section-"

// problemSections are the RFC 9110 sections of the statuses we return.
var problemSections = map[int]string{
	http.StatusBadRequest:                   "15.5.1",
	http.StatusUnauthorized:                 "15.5.2",
	http.StatusForbidden:                    "15.5.4",
	http.StatusNotFound:                     "15.5.5",
	http.StatusMethodNotAllowed:             "15.5.6",
	http.StatusRequestTimeout:               "15.5.9",
	http.StatusConflict:                     "15.5.10",
	http.StatusRequestedRangeNotSatisfiable: "15.5.17",
	http.StatusInternalServerError:          "15.6.1",
	http.StatusNotImplemented:               "15.6.2",
	http.StatusBadGateway:                   "15.6.3",
	http.StatusServiceUnavailable:           "15.6.4",
	http.StatusGatewayTimeout:               "15.6.5",
}

// apierror writes a problem details response.
func apierror(w http.ResponseWriter, msg string, status int) {
	response := HTTPError{
		Status: status,
		Title:  msg,
	}
	if section, ok := problemSections[status]; ok {
		response.Type = rfc9110 + section
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
