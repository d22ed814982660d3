// Package server exposes the compiler over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/ravi-parthasarathy/flowc/pkg/compiler"
	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/forms"
	"github.com/ravi-parthasarathy/flowc/pkg/store"
	"github.com/ravi-parthasarathy/flowc/pkg/workflow"
)

// Server is the HTTP API. The flow routes need a store; without one they
// answer 503.
type Server struct {
	app   *fiber.App
	store store.Store
	log   *slog.Logger
}

// New builds the fiber app and registers the routes. st may be nil.
func New(st store.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		app:   fiber.New(fiber.Config{AppName: "flowc"}),
		store: st,
		log:   log,
	}
	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.Info("http server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// ── Compile ───────────────────────────────────────────────────────
	s.app.Post("/compile", s.compile)
	s.app.Post("/validate", s.validate)

	// ── Flows ─────────────────────────────────────────────────────────
	s.app.Post("/flows", s.saveFlow)
	s.app.Get("/flows/:id", s.getFlow)
	s.app.Get("/flows/:id/compile", s.compileFlow)
}

// compileRequest is a flow graph, optionally with the form definitions its
// form nodes reference.
type compileRequest struct {
	flow.Graph
	Forms []forms.Form `json:"forms,omitempty"`
}

func (r compileRequest) catalog() forms.Catalog {
	c := make(forms.Catalog, len(r.Forms))
	for _, f := range r.Forms {
		c.Add(f)
	}
	return c
}

func (s *Server) compile(c fiber.Ctx) error {
	var req compileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	return s.respondCompiled(c, &req.Graph, req.catalog())
}

func (s *Server) validate(c fiber.Ctx) error {
	var req compileRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	res, err := compiler.Compile(&req.Graph, compiler.WithForms(req.catalog()))
	if errors.Is(err, compiler.ErrEmptyGraph) {
		return c.JSON(workflow.Validation{Valid: false, Errors: []string{err.Error()}})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res.Validation)
}

func (s *Server) saveFlow(c fiber.Ctx) error {
	if s.store == nil {
		return noStore(c)
	}
	var f store.Flow
	if err := c.Bind().JSON(&f); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	saved, err := s.store.SaveFlow(c.Context(), &f)
	if err != nil {
		s.log.Error("save flow failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) getFlow(c fiber.Ctx) error {
	if s.store == nil {
		return noStore(c)
	}
	f, err := s.store.GetFlow(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if f == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "flow not found"})
	}
	return c.JSON(f)
}

func (s *Server) compileFlow(c fiber.Ctx) error {
	if s.store == nil {
		return noStore(c)
	}
	f, err := s.store.GetFlow(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if f == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "flow not found"})
	}
	catalog, err := s.store.LoadForms(c.Context(), f.Graph.FormIDs())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return s.respondCompiled(c, &f.Graph, catalog)
}

func (s *Server) respondCompiled(c fiber.Ctx, g *flow.Graph, catalog forms.Catalog) error {
	res, err := compiler.Compile(g, compiler.WithForms(catalog))
	if errors.Is(err, compiler.ErrEmptyGraph) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !res.Validation.Valid {
		s.log.Info("compiled workflow is invalid", "errors", len(res.Validation.Errors))
	}
	return c.JSON(res)
}

func noStore(c fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no flow store configured"})
}
