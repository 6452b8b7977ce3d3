// Package server exposes the interactive chart over HTTP: the page with the
// province selector, the current SVG, and a small API the page script uses to
// report selections and container resizes.
package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/dataset"
	"github.com/user/voterchart/internal/models"
	"github.com/user/voterchart/internal/session"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var errBadParam = errors.New("bad parameter")

// Server serves a single session.Controller.
type Server struct {
	ctrl   *session.Controller
	logger *slog.Logger
	page   *template.Template
	tracer trace.Tracer
}

// New parses the page template and returns a Server for ctrl.
func New(ctrl *session.Controller, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	page, err := template.New("index.html.tmpl").ParseFS(templateFS, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return &Server{
		ctrl:   ctrl,
		logger: logger,
		page:   page,
		tracer: otel.Tracer("github.com/user/voterchart/internal/server"),
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/", s.handleIndex)
	r.Get("/chart.svg", s.handleChart)
	r.Route("/api", func(r chi.Router) {
		r.Post("/select", s.handleSelect)
		r.Post("/resize", s.handleResize)
		r.Get("/events", s.handleEvents)
		r.Get("/provinces", s.handleProvinces)
		r.Get("/rows", s.handleRows)
	})
	return r
}

type pageData struct {
	ContainerID   string
	SelectID      string
	DropdownStyle template.CSS
	StyleSheet    template.CSS
	Categories    []string
	Selected      string
	SVG           template.HTML
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "server.index")
	defer span.End()

	snap := s.ctrl.Snapshot()
	if snap.State != session.Rendered {
		s.fail(w, r, session.ErrNotLoaded)
		return
	}
	svg, err := snap.Scene.InlineSVG(chart.SVGOptions{})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = s.page.Execute(&buf, pageData{
		ContainerID:   chart.ContainerID,
		SelectID:      chart.SelectID,
		DropdownStyle: template.CSS(chart.DropdownStyle),
		StyleSheet:    template.CSS(chart.StyleSheet()),
		Categories:    snap.Categories,
		Selected:      snap.Category,
		SVG:           template.HTML(svg), //nolint:gosec // generated by svgo with escaped attributes
	})
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to execute page template: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleChart returns the current scene, or a fresh render when province or
// width is given. A fresh render does not change the session.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "server.chart")
	defer span.End()

	snap := s.ctrl.Snapshot()
	if snap.State != session.Rendered {
		s.fail(w, r, session.ErrNotLoaded)
		return
	}

	q := r.URL.Query()
	opts := chart.SVGOptions{Static: q.Get("static") == "1"}
	scene := snap.Scene
	if q.Has("province") || q.Has("width") {
		province := snap.Category
		if q.Has("province") {
			province = q.Get("province")
		}
		width := snap.Width
		if q.Has("width") {
			var err error
			if width, err = parseWidth(q.Get("width")); err != nil {
				s.fail(w, r, err)
				return
			}
		}
		ds := s.ctrl.Dataset()
		if !ds.HasCategory(province) {
			s.fail(w, r, fmt.Errorf("%w: %q", session.ErrUnknownCategory, province))
			return
		}
		span.SetAttributes(attribute.String("province", province), attribute.Float64("width", width))

		var err error
		if scene, err = chart.RenderContext(ctx, ds.Rows, province, width); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	var buf bytes.Buffer
	if err := scene.WriteSVG(&buf, opts); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

type stateResponse struct {
	State     string   `json:"state"`
	Province  string   `json:"province"`
	Width     float64  `json:"width"`
	Mobile    bool     `json:"mobile"`
	Renders   uint64   `json:"renders"`
	Bars      int      `json:"bars"`
	Bandwidth float64  `json:"bandwidth"`
	Provinces []string `json:"provinces"`
}

func newStateResponse(snap session.Snapshot) stateResponse {
	resp := stateResponse{
		State:     snap.State.String(),
		Province:  snap.Category,
		Width:     snap.Width,
		Renders:   snap.Renders,
		Provinces: snap.Categories,
	}
	if snap.Scene != nil {
		resp.Mobile = snap.Scene.Layout.IsMobile
		resp.Bars = len(snap.Scene.Bars)
		resp.Bandwidth = snap.Scene.Bandwidth
	}
	return resp
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "server.select")
	defer span.End()

	if err := r.ParseForm(); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadParam, err))
		return
	}
	province := r.FormValue("province")
	span.SetAttributes(attribute.String("province", province))

	var err error
	if raw := r.FormValue("width"); raw != "" {
		var width float64
		if width, err = parseWidth(raw); err != nil {
			s.fail(w, r, err)
			return
		}
		err = s.ctrl.SelectAt(ctx, province, width)
	} else {
		err = s.ctrl.Select(ctx, province)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, newStateResponse(s.ctrl.Snapshot()))
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", errBadParam, err))
		return
	}
	width, err := parseWidth(r.FormValue("width"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.ctrl.Resize(width)
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents streams a "render" event after every redraw.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, r, errors.New("streaming unsupported"))
		return
	}

	updates, unsubscribe := s.ctrl.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if snap := s.ctrl.Snapshot(); snap.State == session.Rendered {
		if err := writeEvent(w, snap); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := writeEvent(w, snap); err != nil {
				s.logger.Debug("event stream closed", "err", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, snap session.Snapshot) error {
	data, err := json.Marshal(newStateResponse(snap))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: render\ndata: %s\n\n", data)
	return err
}

func (s *Server) handleProvinces(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	if snap.State != session.Rendered {
		s.fail(w, r, session.ErrNotLoaded)
		return
	}
	s.writeJSON(w, r, http.StatusOK, struct {
		Provinces []string `json:"provinces"`
		Selected  string   `json:"selected"`
	}{snap.Categories, snap.Category})
}

// handleRows lists the selected province's rows, as JSON or, with
// format=csv, in the input file layout.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	ds := s.ctrl.Dataset()
	if ds == nil {
		s.fail(w, r, session.ErrNotLoaded)
		return
	}
	province := r.URL.Query().Get("province")
	if province == "" {
		province = s.ctrl.Snapshot().Category
	}
	if !ds.HasCategory(province) {
		s.fail(w, r, fmt.Errorf("%w: %q", session.ErrUnknownCategory, province))
		return
	}
	rows := models.Filter(ds.Rows, province)

	if r.URL.Query().Get("format") == "csv" {
		data, err := dataset.EncodeCSV(rows)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write(data)
		return
	}
	s.writeJSON(w, r, http.StatusOK, rows)
}

func parseWidth(raw string) (float64, error) {
	width, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: width %q", errBadParam, raw)
	}
	if !(width > 0) || math.IsInf(width, 1) {
		return 0, fmt.Errorf("%w: width %v", chart.ErrInvalidContainer, width)
	}
	return width, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrUnknownCategory),
		errors.Is(err, chart.ErrInvalidContainer),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	trace.SpanFromContext(r.Context()).RecordError(err)
	http.Error(w, err.Error(), status)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to encode response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
