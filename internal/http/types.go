package http

import (
	"github.com/fyrsmithlabs/detectd/internal/detect"
	"github.com/fyrsmithlabs/detectd/pkg/annotate"
)

// CircuitRequest is the JSON body for the circuit endpoints. The endpoints
// also accept the circuit as a text/plain body.
type CircuitRequest struct {
	Circuit string `json:"circuit"`
}

// FragmentsResponse is the response body for POST /api/v1/fragments.
type FragmentsResponse struct {
	Fragments int           `json:"fragments"`
	Nodes     []detect.Node `json:"nodes"`
	Warnings  []string      `json:"warnings,omitempty"`
}

// AnnotateResponse is the response body for POST /api/v1/annotate.
type AnnotateResponse struct {
	Circuit   string             `json:"circuit"`
	Fragments int                `json:"fragments"`
	Detectors []DetectorResponse `json:"detectors"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// DetectorResponse is one detector, with record offsets relative to the end
// of its fragment.
type DetectorResponse struct {
	annotate.Detector
	Records []int `json:"records"`
}

// NewAnnotateResponse converts an annotation result.
func NewAnnotateResponse(res *annotate.Result) AnnotateResponse {
	resp := AnnotateResponse{
		Circuit:   res.Circuit.String(),
		Fragments: res.Fragments,
		Detectors: make([]DetectorResponse, len(res.Detectors)),
	}
	for i, d := range res.Detectors {
		resp.Detectors[i] = DetectorResponse{Detector: d, Records: d.Offsets()}
	}
	for _, w := range res.Warnings {
		resp.Warnings = append(resp.Warnings, w.Message)
	}
	return resp
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string   `json:"status"`
	Version   string   `json:"version,omitempty"`
	Telemetry string   `json:"telemetry"` // "disabled", "ok" or "degraded"
	Problems  []string `json:"problems,omitempty"`
}

// ErrorResponse is the body of every 4xx/5xx answer from the API.
type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}
