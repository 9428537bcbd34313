package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/contextd/internal/aggregator"
	"github.com/p-blackswan/contextd/internal/contextstore"
	perrors "github.com/p-blackswan/contextd/internal/errors"
	"github.com/p-blackswan/contextd/internal/generator"
	"github.com/p-blackswan/contextd/internal/health"
	"github.com/p-blackswan/contextd/internal/project"
)

// Projects is the project record surface the API exposes.
type Projects interface {
	Create(ctx context.Context, input project.CreateInput) (*project.Record, error)
	Get(ctx context.Context, id string) (*project.Record, error)
	List(ctx context.Context, limit int) ([]*project.Record, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	projects   Projects
	aggregator *aggregator.Aggregator
	generator  *generator.Generator
	checker    *health.Checker
	logger     zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(projects Projects, agg *aggregator.Aggregator, gen *generator.Generator, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		projects:   projects,
		aggregator: agg,
		generator:  gen,
		checker:    checker,
		logger:     logger.With().Str("component", "handlers").Logger(),
	}
}

// decodeStrict unmarshals a JSON body, rejecting unknown fields. An empty
// body leaves v untouched.
func decodeStrict(body []byte, v any) error {
	return decode(body, v, true)
}

// decodeLoose is decodeStrict for free-form founder input: unknown fields
// are ignored.
func decodeLoose(body []byte, v any) error {
	return decode(body, v, false)
}

func decode(body []byte, v any, strict bool) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		return perrors.InvalidInput("invalid request body: %v", err)
	}
	return nil
}

// --- Probes ---

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	report := h.checker.RunAll(c.UserContext())
	checks := make(map[string]string, len(report.Checks))
	for name, s := range report.Checks {
		checks[name] = string(s)
	}
	if !report.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "not_ready", Checks: checks})
	}
	return c.JSON(HealthResponse{Status: "ready", Checks: checks})
}

// --- Catalog & projects ---

// ListTriggers handles GET /api/v1/triggers.
func (h *Handlers) ListTriggers(c *fiber.Ctx) error {
	return c.JSON(TriggerListResponse{Triggers: h.aggregator.Catalog().All()})
}

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(c *fiber.Ctx) error {
	var in project.CreateInput
	if err := decodeStrict(c.Body(), &in); err != nil {
		return h.errorResponse(c, err)
	}
	rec, err := h.projects.Create(c.UserContext(), in)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(c *fiber.Ctx) error {
	recs, err := h.projects.List(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"projects": recs})
}

// GetProject handles GET /api/v1/projects/:id.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	rec, err := h.projects.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(rec)
}

// --- Context ---

// GetContext handles GET /api/v1/projects/:id/context.
func (h *Handlers) GetContext(c *fiber.Ctx) error {
	ctx, err := h.aggregator.Context(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(ctx)
}

// PatchContext handles PATCH /api/v1/projects/:id/context.
func (h *Handlers) PatchContext(c *fiber.Ctx) error {
	var p contextstore.Partial
	if err := decodeStrict(c.Body(), &p); err != nil {
		return h.errorResponse(c, err)
	}
	id := c.Params("id")
	if err := h.aggregator.UpdateContext(c.UserContext(), id, p); err != nil {
		return h.errorResponse(c, err)
	}
	ctx, err := h.aggregator.Context(c.UserContext(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(ctx)
}

// IncrementMetric handles POST /api/v1/projects/:id/metrics/:metric.
func (h *Handlers) IncrementMetric(c *fiber.Ctx) error {
	var req IncrementRequest
	if err := decodeStrict(c.Body(), &req); err != nil {
		return h.errorResponse(c, err)
	}
	amount := 1
	if req.Amount != nil {
		amount = *req.Amount
	}

	id := c.Params("id")
	fired, err := h.aggregator.IncrementMetric(c.UserContext(), id, c.Params("metric"), amount)
	if err != nil {
		return h.errorResponse(c, err)
	}
	ctx, err := h.aggregator.Context(c.UserContext(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(IncrementResponse{Context: ctx, Fired: fired})
}

// --- Triggers ---

// TriggerProgress handles GET /api/v1/projects/:id/triggers.
func (h *Handlers) TriggerProgress(c *fiber.Ctx) error {
	id := c.Params("id")
	progress, err := h.aggregator.TriggerProgress(c.UserContext(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(ProgressResponse{ProjectID: id, Progress: progress})
}

// ReadyTriggers handles GET /api/v1/projects/:id/triggers/ready.
func (h *Handlers) ReadyTriggers(c *fiber.Ctx) error {
	ready, err := h.aggregator.ReadyTriggers(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(TriggerListResponse{Triggers: ready})
}

// CheckTriggers handles POST /api/v1/projects/:id/triggers/check.
func (h *Handlers) CheckTriggers(c *fiber.Ctx) error {
	id := c.Params("id")
	fired, err := h.aggregator.CheckTriggers(c.UserContext(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(CheckResponse{ProjectID: id, Fired: fired})
}

// MarkRegenerated handles POST /api/v1/projects/:id/triggers/:trigger/regenerated.
func (h *Handlers) MarkRegenerated(c *fiber.Ctx) error {
	id, triggerID := c.Params("id"), c.Params("trigger")
	changed, err := h.aggregator.MarkRegenerated(c.UserContext(), id, triggerID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(MarkRegeneratedResponse{ProjectID: id, TriggerID: triggerID, Changed: changed})
}

// Regenerations handles GET /api/v1/projects/:id/regenerations.
func (h *Handlers) Regenerations(c *fiber.Ctx) error {
	state, err := h.aggregator.FiredState(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(state)
}

// Quality handles GET /api/v1/projects/:id/quality.
func (h *Handlers) Quality(c *fiber.Ctx) error {
	id := c.Params("id")
	score, err := h.aggregator.ContextQualityScore(c.UserContext(), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(QualityResponse{ProjectID: id, Score: score})
}

// --- Artifacts ---

// GenerateArtifacts handles POST /api/v1/artifacts.
func (h *Handlers) GenerateArtifacts(c *fiber.Ctx) error {
	var in generator.Input
	if err := decodeLoose(c.Body(), &in); err != nil {
		return h.errorResponse(c, err)
	}
	set, err := h.generator.GenerateAll(c.UserContext(), in)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(set)
}

// LatestArtifacts handles GET /api/v1/projects/:id/artifacts.
func (h *Handlers) LatestArtifacts(c *fiber.Ctx) error {
	id := c.Params("id")
	set, ok := h.generator.Latest(id)
	if !ok {
		return problemResponse(c, fiber.StatusNotFound, "not_found", "Not Found",
			fmt.Sprintf("no artifacts generated for project %s", id))
	}
	return c.JSON(set)
}

// RegenerateArtifact handles POST /api/v1/projects/:id/artifacts/:type/regenerate.
// With ?complete=true every pending trigger for the artifact type is marked
// regenerated afterwards.
func (h *Handlers) RegenerateArtifact(c *fiber.Ctx) error {
	var in generator.Input
	if err := decodeLoose(c.Body(), &in); err != nil {
		return h.errorResponse(c, err)
	}
	id, artifactType := c.Params("id"), c.Params("type")

	out, err := h.generator.Regenerate(c.UserContext(), id, artifactType, in)
	if err != nil {
		return h.errorResponse(c, err)
	}

	resp := RegenerateResponse{Regenerated: out}
	if c.QueryBool("complete") {
		for _, d := range h.aggregator.Catalog().ForArtifact(artifactType) {
			changed, err := h.aggregator.MarkRegenerated(c.UserContext(), id, d.ID)
			if err != nil {
				return h.errorResponse(c, err)
			}
			if changed {
				resp.CompletedTriggers = append(resp.CompletedTriggers, d.ID)
			}
		}
	}
	return c.JSON(resp)
}
