package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/user/voterchart/internal/chart"
	"github.com/user/voterchart/internal/debounce"
	"github.com/user/voterchart/internal/debounce/debouncetest"
	"github.com/user/voterchart/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testDataset() *models.Dataset {
	return models.NewDataset("mem", []models.Row{
		{Province: "A", Municipality: "X", ChangeFrom2019: 100},
		{Province: "A", Municipality: "Y", ChangeFrom2019: -50},
		{Province: "B", Municipality: "Z", ChangeFrom2019: 0},
	})
}

func newTestController(t *testing.T, width float64) (*Controller, *debouncetest.Clock) {
	t.Helper()
	clock := debouncetest.NewClock()
	c := New(width, WithDebouncer(debounce.NewWithAfterFunc(debounce.DefaultDelay, clock.AfterFunc)))
	t.Cleanup(c.Close)
	return c, clock
}

func TestIdleUntilLoaded(t *testing.T) {
	c, _ := newTestController(t, 1000)
	snap := c.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.Scene)

	err := c.Select(context.Background(), "A")
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadRendersFirstCategory(t *testing.T) {
	c, _ := newTestController(t, 1000)
	require.NoError(t, c.Load(context.Background(), testDataset()))

	snap := c.Snapshot()
	assert.Equal(t, Rendered, snap.State)
	assert.Equal(t, "A", snap.Category)
	assert.Equal(t, []string{"A", "B"}, snap.Categories)
	require.NotNil(t, snap.Scene)
	assert.Len(t, snap.Scene.Bars, 2)
	assert.Equal(t, uint64(1), snap.Renders)
}

func TestSelect(t *testing.T) {
	c, _ := newTestController(t, 1000)
	require.NoError(t, c.Load(context.Background(), testDataset()))

	require.NoError(t, c.Select(context.Background(), "B"))
	snap := c.Snapshot()
	assert.Equal(t, "B", snap.Category)
	assert.Len(t, snap.Scene.Bars, 1)

	err := c.Select(context.Background(), "C")
	require.ErrorIs(t, err, ErrUnknownCategory)
	assert.Equal(t, "B", c.Snapshot().Category, "a rejected selection keeps the chart")
}

func TestResizeBurstRendersOnceAtLastWidth(t *testing.T) {
	c, clock := newTestController(t, 1000)
	require.NoError(t, c.Load(context.Background(), testDataset()))
	before := c.Snapshot().Renders

	for _, w := range []float64{950, 900, 700, 640} {
		c.Resize(w)
		clock.Advance(50 * time.Millisecond)
	}
	assert.Equal(t, before, c.Snapshot().Renders)

	clock.Advance(debounce.DefaultDelay)
	snap := c.Snapshot()
	assert.Equal(t, before+1, snap.Renders)
	assert.Equal(t, 640.0, snap.Width)
	assert.True(t, snap.Scene.Layout.IsMobile)
}

func TestResizeWithInvalidWidthKeepsChart(t *testing.T) {
	c, clock := newTestController(t, 1000)
	require.NoError(t, c.Load(context.Background(), testDataset()))

	c.Resize(0)
	clock.Advance(debounce.DefaultDelay)

	snap := c.Snapshot()
	assert.Equal(t, 1000.0, snap.Width)
	assert.Equal(t, Rendered, snap.State)
}

func TestReloadKeepsSelection(t *testing.T) {
	c, _ := newTestController(t, 1000)
	require.NoError(t, c.Load(context.Background(), testDataset()))
	require.NoError(t, c.Select(context.Background(), "B"))

	require.NoError(t, c.Load(context.Background(), testDataset()))
	assert.Equal(t, "B", c.Snapshot().Category)

	onlyA := models.NewDataset("mem", []models.Row{{Province: "A", Municipality: "X", ChangeFrom2019: 1}})
	require.NoError(t, c.Load(context.Background(), onlyA))
	assert.Equal(t, "A", c.Snapshot().Category)
}

func TestLoadWithInvalidWidthStaysIdle(t *testing.T) {
	c, _ := newTestController(t, 0)
	err := c.Load(context.Background(), testDataset())
	require.ErrorIs(t, err, chart.ErrInvalidContainer)
	assert.Equal(t, Idle, c.Snapshot().State)
	assert.Nil(t, c.Dataset())
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	c, _ := newTestController(t, 1000)
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	require.NoError(t, c.Load(context.Background(), testDataset()))
	require.NoError(t, c.Select(context.Background(), "B"))

	snap := <-ch
	assert.Equal(t, "B", snap.Category, "only the newest snapshot is buffered")

	unsubscribe()
	require.NoError(t, c.Select(context.Background(), "A"))
	select {
	case s := <-ch:
		t.Fatalf("unexpected snapshot after unsubscribe: %+v", s)
	default:
	}
}

func TestSubscribeSeesLoadedCategories(t *testing.T) {
	c, _ := newTestController(t, 1000)
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	require.NoError(t, c.Load(context.Background(), testDataset()))
	snap := <-ch
	assert.Equal(t, "A", snap.Category)
	assert.Equal(t, []string{"A", "B"}, snap.Categories)

	reloaded := models.NewDataset("mem", []models.Row{
		{Province: "C", Municipality: "Q", ChangeFrom2019: 7},
	})
	require.NoError(t, c.Load(context.Background(), reloaded))
	snap = <-ch
	assert.Equal(t, "C", snap.Category)
	assert.Equal(t, []string{"C"}, snap.Categories)
	assert.Same(t, reloaded, c.Dataset())
}

func TestSelectAtRendersOnce(t *testing.T) {
	c, _ := newTestController(t, 1000)
	require.NoError(t, c.Load(context.Background(), testDataset()))
	before := c.Snapshot().Renders

	require.NoError(t, c.SelectAt(context.Background(), "B", 600))
	snap := c.Snapshot()
	assert.Equal(t, before+1, snap.Renders)
	assert.Equal(t, "B", snap.Category)
	assert.Equal(t, 600.0, snap.Width)
	assert.True(t, snap.Scene.Layout.IsMobile)

	err := c.SelectAt(context.Background(), "A", 0)
	require.ErrorIs(t, err, chart.ErrInvalidContainer)
	err = c.SelectAt(context.Background(), "Z", 800)
	require.ErrorIs(t, err, ErrUnknownCategory)
	snap = c.Snapshot()
	assert.Equal(t, before+1, snap.Renders)
	assert.Equal(t, "B", snap.Category)
	assert.Equal(t, 600.0, snap.Width)
}

func TestSelectAtBeforeLoad(t *testing.T) {
	c, _ := newTestController(t, 1000)
	require.ErrorIs(t, c.SelectAt(context.Background(), "A", 800), ErrNotLoaded)
}

func TestSetWidth(t *testing.T) {
	c, _ := newTestController(t, 1000)
	require.NoError(t, c.SetWidth(context.Background(), 500))
	require.NoError(t, c.Load(context.Background(), testDataset()))
	assert.True(t, c.Snapshot().Scene.Layout.IsMobile)

	require.NoError(t, c.SetWidth(context.Background(), 1200))
	assert.False(t, c.Snapshot().Scene.Layout.IsMobile)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "rendered", Rendered.String())
}
