// Package api implements the REST parse service: models are uploaded as YAML
// and request URIs are parsed against them.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/config"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/store"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/types"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uriparser"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uripath"
)

// Option configures a Server.
type Option func(*Server)

// WithSettings sets the parser settings used for every request.
func WithSettings(s *config.Settings) Option {
	return func(srv *Server) {
		if s != nil {
			srv.settings = s
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) {
		if l != nil {
			srv.logger = l
		}
	}
}

// WithAccessLog enables per-request access logging.
func WithAccessLog() Option {
	return func(srv *Server) { srv.accessLog = true }
}

// Server is the API server for the parse service.
type Server struct {
	app       *fiber.App
	store     *store.Store
	settings  *config.Settings
	logger    *slog.Logger
	accessLog bool
}

// New creates a new API server.
func New(s *store.Store, opts ...Option) *Server {
	srv := &Server{store: s, settings: config.Default(), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(srv)
	}
	srv.logger = srv.logger.With("component", "api")

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	if srv.accessLog {
		app.Use(logger.New(logger.Config{Output: os.Stderr}))
	}

	app.Get("/v1/models", srv.listModels)
	app.Get("/v1/models/:name", srv.getModel)
	app.Put("/v1/models/:name", srv.putModel)
	app.Delete("/v1/models/:name", srv.deleteModel)
	app.Get("/v1/models/:name/parse", srv.parse)

	srv.app = app
	return srv
}

// Listen starts the HTTP server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// --- Model Handlers ---

func (s *Server) listModels(c *fiber.Ctx) error {
	entries := s.store.List()
	items := make([]fiber.Map, len(entries))
	for i, e := range entries {
		items[i] = modelToJSON(e)
	}
	return c.JSON(fiber.Map{"models": items})
}

func (s *Server) getModel(c *fiber.Ctx) error {
	e, err := s.store.Get(c.Params("name"))
	if err != nil {
		return errorJSON(c, 404, err.Error())
	}
	out := modelToJSON(e)
	out["entitySets"] = sourceNames(e.Model.Container.EntitySets)
	out["singletons"] = sourceNames(e.Model.Container.Singletons)
	imports := make([]string, 0, len(e.Model.Container.OperationImports))
	for _, imp := range e.Model.Container.OperationImports {
		imports = append(imports, imp.Name)
	}
	out["operationImports"] = imports
	return c.JSON(out)
}

func (s *Server) putModel(c *fiber.Ctx) error {
	name := c.Params("name")
	body := c.Body()
	if len(body) == 0 {
		return errorJSON(c, 400, "request body must be a YAML model")
	}
	e, created, err := s.store.Put(name, body)
	if err != nil {
		return errorJSON(c, 400, err.Error())
	}
	s.logger.Info("model stored", "name", name, "revision", e.RevisionID, "created", created)
	status := 200
	if created {
		status = 201
	}
	return c.Status(status).JSON(modelToJSON(e))
}

func (s *Server) deleteModel(c *fiber.Ctx) error {
	if err := s.store.Delete(c.Params("name")); err != nil {
		return errorJSON(c, 404, err.Error())
	}
	return c.JSON(fiber.Map{})
}

// --- Parse Handler ---

func (s *Server) parse(c *fiber.Ctx) error {
	e, err := s.store.Get(c.Params("name"))
	if err != nil {
		return errorJSON(c, 404, err.Error())
	}
	uri := c.Query("uri")
	if uri == "" {
		return errorJSON(c, 400, "uri query parameter is required")
	}

	p, err := uriparser.New(e.Model, c.Query("serviceRoot"), uri,
		uriparser.WithSettings(s.settings), uriparser.WithLogger(s.logger))
	if err != nil {
		return parseErrorJSON(c, err)
	}
	u, err := p.Parse()
	if err != nil {
		return parseErrorJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"model":    e.Name,
		"revision": e.RevisionID,
		"segments": segmentsToJSON(u.Path),
		"clauses":  u.Clauses(),
	})
}

// --- Directory Loading ---

// LoadDir stores every .yaml/.yml model file in dir. The file name without
// extension becomes the model name. Files that fail to load are skipped.
func (s *Server) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading models directory: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		ext := filepath.Ext(file)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(file, ext)
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			s.logger.Warn("could not read model file", "file", file, "error", err)
			continue
		}
		if _, _, err := s.store.Put(name, data); err != nil {
			s.logger.Warn("could not load model", "file", file, "error", err)
			continue
		}
		loaded++
		s.logger.Info("loaded model", "name", name, "file", file)
	}
	s.logger.Info("models directory loaded", "dir", dir, "count", loaded)
	return loaded, nil
}

// --- Helpers ---

func errorJSON(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
			"status":  statusName(code),
		},
	})
}

// parseErrorJSON maps a parse failure to its HTTP class and includes where
// path resolution stopped.
func parseErrorJSON(c *fiber.Ctx, err error) error {
	code := types.StatusOf(err)
	body := fiber.Map{
		"code":    code,
		"message": err.Error(),
		"status":  statusName(code),
	}
	var pe *types.ParseError
	if errors.As(err, &pe) {
		body["kind"] = string(pe.Kind)
		if pe.Position >= 0 && pe.Kind == types.KindSyntax {
			body["position"] = pe.Position
		}
		if pe.Path != nil {
			body["path"] = fiber.Map{
				"parsed":    pe.Path.Parsed,
				"segment":   pe.Path.Segment,
				"remaining": pe.Path.Remaining,
			}
		}
	}
	return c.Status(code).JSON(fiber.Map{"error": body})
}

func statusName(code int) string {
	switch code {
	case 400:
		return "INVALID_ARGUMENT"
	case 404:
		return "NOT_FOUND"
	case 409:
		return "ALREADY_EXISTS"
	}
	return "INTERNAL"
}

func modelToJSON(e *store.Entry) fiber.Map {
	return fiber.Map{
		"name":       e.Name,
		"namespace":  e.Namespace,
		"revisionId": e.RevisionID,
		"createTime": e.CreateTime.Format(time.RFC3339),
		"updateTime": e.UpdateTime.Format(time.RFC3339),
	}
}

func sourceNames(sources []*edm.NavigationSource) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = src.Name
	}
	return out
}

func segmentsToJSON(path *uripath.Path) []fiber.Map {
	if path == nil {
		return []fiber.Map{}
	}
	out := make([]fiber.Map, len(path.Segments))
	for i, seg := range path.Segments {
		m := fiber.Map{
			"kind":       seg.Kind.String(),
			"identifier": seg.String(),
			"target":     seg.Target.String(),
			"collection": seg.Collection,
		}
		if seg.Type != nil {
			m["type"] = seg.Type.FullName()
		}
		if seg.Source != nil {
			m["navigationSource"] = seg.Source.Name
		}
		out[i] = m
	}
	return out
}
