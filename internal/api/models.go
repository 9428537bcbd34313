// Package api exposes the context aggregator and artifact generator over HTTP.
package api

import (
	"github.com/p-blackswan/contextd/internal/aggregator"
	"github.com/p-blackswan/contextd/internal/contextstore"
	"github.com/p-blackswan/contextd/internal/generator"
	"github.com/p-blackswan/contextd/internal/trigger"
)

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// --- Request DTOs ---

// IncrementRequest is the optional body of POST .../metrics/:metric.
type IncrementRequest struct {
	Amount *int `json:"amount,omitempty"`
}

// --- Response DTOs ---

type TriggerListResponse struct {
	Triggers []trigger.Definition `json:"triggers"`
}

type ProgressResponse struct {
	ProjectID string                `json:"project_id"`
	Progress  []aggregator.Progress `json:"progress"`
}

type IncrementResponse struct {
	Context *contextstore.Context `json:"context"`
	Fired   []trigger.Definition  `json:"fired"`
}

type CheckResponse struct {
	ProjectID string               `json:"project_id"`
	Fired     []trigger.Definition `json:"fired"`
}

type MarkRegeneratedResponse struct {
	ProjectID string `json:"project_id"`
	TriggerID string `json:"trigger_id"`
	Changed   bool   `json:"changed"`
}

type QualityResponse struct {
	ProjectID string `json:"project_id"`
	Score     int    `json:"score"`
}

type RegenerateResponse struct {
	*generator.Regenerated
	CompletedTriggers []string `json:"completed_triggers,omitempty"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
