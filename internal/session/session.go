// Package session owns the interactive chart state: the loaded dataset, the
// selected province and the container width, and redraws the chart whenever
// one of them changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/debounce"
	"github.com/user/voterchart/internal/models"
)

var (
	ErrNotLoaded       = errors.New("no dataset loaded")
	ErrUnknownCategory = errors.New("unknown province")
)

// State is the controller's lifecycle state.
type State int

const (
	Idle State = iota
	Rendered
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendered:
		return "rendered"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is a consistent view of the controller after a render.
type Snapshot struct {
	State      State
	Category   string
	Width      float64
	Categories []string
	Scene      *chart.Scene
	Renders    uint64
}

// Controller is the single owner of the selection state. All methods are
// safe for concurrent use; renders never overlap.
type Controller struct {
	mu       sync.Mutex
	logger   *slog.Logger
	resize   *debounce.Debouncer
	dataset  *models.Dataset
	selected string
	width    float64
	scene    *chart.Scene
	state    State
	renders  uint64

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDebouncer replaces the resize debouncer.
func WithDebouncer(d *debounce.Debouncer) Option {
	return func(c *Controller) { c.resize = d }
}

// New returns an Idle controller that will lay the chart out for width.
func New(width float64, opts ...Option) *Controller {
	c := &Controller{
		logger:      slog.Default(),
		resize:      debounce.New(debounce.DefaultDelay),
		width:       width,
		subscribers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load installs a dataset and redraws. The current selection survives a
// reload when the new dataset still has it; otherwise the first province is
// selected.
func (c *Controller) Load(ctx context.Context, ds *models.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	category := ds.DefaultCategory()
	if c.state == Rendered && ds.HasCategory(c.selected) {
		category = c.selected
	}
	return c.renderLocked(ctx, ds, category, c.width)
}

// Select switches province and redraws immediately.
func (c *Controller) Select(ctx context.Context, category string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dataset == nil {
		return ErrNotLoaded
	}
	if !c.dataset.HasCategory(category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return c.renderLocked(ctx, c.dataset, category, c.width)
}

// SelectAt switches province and width together with a single redraw. Nothing
// changes when either is rejected.
func (c *Controller) SelectAt(ctx context.Context, category string, width float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dataset == nil {
		return ErrNotLoaded
	}
	if !c.dataset.HasCategory(category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return c.renderLocked(ctx, c.dataset, category, width)
}

// Resize records a new container width and schedules a redraw after the
// debounce window. A burst of calls redraws once, using the last width.
func (c *Controller) Resize(width float64) {
	c.resize.Trigger(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.dataset == nil {
			c.width = width
			return
		}
		if err := c.renderLocked(context.Background(), c.dataset, c.selected, width); err != nil {
			c.logger.Warn("resize render failed", "width", width, "err", err)
		}
	})
}

// SetWidth changes the width and redraws immediately, bypassing the debouncer.
func (c *Controller) SetWidth(ctx context.Context, width float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dataset == nil {
		c.width = width
		return nil
	}
	return c.renderLocked(ctx, c.dataset, c.selected, width)
}

// renderLocked performs a full redraw of ds and installs it. State changes
// only when the render succeeds, so a failed render keeps the previous chart
// and dataset.
func (c *Controller) renderLocked(ctx context.Context, ds *models.Dataset, category string, width float64) error {
	scene, err := chart.RenderContext(ctx, ds.Rows, category, width)
	if err != nil {
		return fmt.Errorf("render %q at width %v: %w", category, width, err)
	}

	c.dataset = ds
	c.scene = scene
	c.selected = category
	c.width = width
	c.state = Rendered
	c.renders++
	c.logger.Debug("chart rendered", "province", category, "width", width, "bars", len(scene.Bars), "renders", c.renders)

	c.publish(c.snapshotLocked())
	return nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    c.state,
		Category: c.selected,
		Width:    c.width,
		Scene:    c.scene,
		Renders:  c.renders,
	}
	if c.dataset != nil {
		s.Categories = append([]string(nil), c.dataset.Categories...)
	}
	return s
}

// Dataset returns the loaded dataset, or nil while Idle.
func (c *Controller) Dataset() *models.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataset
}

// Subscribe returns a channel receiving a snapshot after each render, and a
// function that unsubscribes. Slow subscribers miss intermediate snapshots.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subscribers, ch)
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) publish(s Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- s:
		default:
			// Replace the stale snapshot with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Close cancels any pending resize redraw.
func (c *Controller) Close() {
	c.resize.Cancel()
}
