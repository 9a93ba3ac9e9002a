package bom_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrp/internal/bom"
)

// Products: 1 board kit, 2 main board, 3 power module.
// Parts: 100 resistor, 101 capacitor, 102 connector.
func sampleGraph(t *testing.T) *bom.Graph {
	t.Helper()
	g := bom.NewGraph()
	require.NoError(t, g.AddPart(1, 102, 2))
	require.NoError(t, g.AddComponent(1, 2, 1))
	require.NoError(t, g.AddComponent(1, 3, 2))
	require.NoError(t, g.AddPart(2, 100, 10))
	require.NoError(t, g.AddPart(2, 101, 4))
	require.NoError(t, g.AddComponent(2, 3, 1))
	require.NoError(t, g.AddPart(3, 100, 3))
	require.NoError(t, g.AddPart(3, 101, 1))
	return g
}

func TestExplodeMultipliesAlongPaths(t *testing.T) {
	req, err := bom.Explode(sampleGraph(t), 1, 1)
	require.NoError(t, err)

	// resistor: board 10 + power via board 1*3 + power direct 2*3
	assert.Equal(t, int64(19), req.Parts[100])
	// capacitor: board 4 + power via board 1 + power direct 2
	assert.Equal(t, int64(7), req.Parts[101])
	assert.Equal(t, int64(2), req.Parts[102])

	assert.Equal(t, int64(1), req.Products[2])
	assert.Equal(t, int64(3), req.Products[3])
	_, hasRoot := req.Products[1]
	assert.False(t, hasRoot, "root must not appear as an intermediate product")
}

func TestExplodeScalesByQuantity(t *testing.T) {
	req, err := bom.Explode(sampleGraph(t), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(95), req.Parts[100])
	assert.Equal(t, int64(15), req.Products[3])
}

func TestExplodeUnknownRoot(t *testing.T) {
	req, err := bom.Explode(sampleGraph(t), 42, 1)
	require.NoError(t, err)
	assert.Empty(t, req.Parts)
	assert.Empty(t, req.Products)
}

func TestExplodeDeepChain(t *testing.T) {
	g := bom.NewGraph()
	const depth = 500
	for i := int64(1); i < depth; i++ {
		require.NoError(t, g.AddComponent(i, i+1, 1))
	}
	require.NoError(t, g.AddPart(depth, 9000, 2))

	req, err := bom.Explode(g, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(6), req.Parts[9000])
	assert.Len(t, req.Products, depth-1)
}

func TestExplodeSharedSubassemblies(t *testing.T) {
	// A diamond repeated many levels deep would be exponential without memoization.
	g := bom.NewGraph()
	const levels = 40
	for i := int64(0); i < levels; i++ {
		a, b, next := 2*i+1, 2*i+2, 2*i+3
		require.NoError(t, g.AddComponent(a, b, 1))
		require.NoError(t, g.AddComponent(a, next, 1))
		require.NoError(t, g.AddComponent(b, next, 1))
	}
	require.NoError(t, g.AddPart(2*levels+1, 7, 1))

	req, err := bom.Explode(g, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1)<<levels, req.Parts[7])
}

func TestExplodeDetectsCycle(t *testing.T) {
	g := sampleGraph(t)
	require.NoError(t, g.AddComponent(3, 1, 1))

	_, err := bom.Explode(g, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bom.ErrCycleDetected))

	var cycle *bom.CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
	assert.Contains(t, cycle.Path, int64(3))
}

func TestExplodeSelfReference(t *testing.T) {
	g := bom.NewGraph()
	require.NoError(t, g.AddComponent(4, 4, 1))
	_, err := bom.Explode(g, 4, 1)
	assert.ErrorIs(t, err, bom.ErrCycleDetected)
}

func TestCycleOutsideRootIsIgnoredByExplode(t *testing.T) {
	g := sampleGraph(t)
	require.NoError(t, g.AddComponent(10, 11, 1))
	require.NoError(t, g.AddComponent(11, 10, 1))

	_, err := bom.Explode(g, 1, 1)
	assert.NoError(t, err)
	assert.ErrorIs(t, bom.DetectCycle(g), bom.ErrCycleDetected)
}

func TestDetectCycleAcyclic(t *testing.T) {
	assert.NoError(t, bom.DetectCycle(sampleGraph(t)))
}

func TestWouldCreateCycle(t *testing.T) {
	g := sampleGraph(t)

	err := bom.WouldCreateCycle(g, 3, 1)
	require.Error(t, err)
	var cycle *bom.CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []int64{3, 1, 2, 3}, cycle.Path)

	assert.ErrorIs(t, bom.WouldCreateCycle(g, 2, 2), bom.ErrCycleDetected)
	assert.NoError(t, bom.WouldCreateCycle(g, 1, 3))
	assert.NoError(t, bom.WouldCreateCycle(g, 4, 1))
}

func TestInvalidAmounts(t *testing.T) {
	g := bom.NewGraph()
	assert.ErrorIs(t, g.AddPart(1, 2, 0), bom.ErrInvalidAmount)
	assert.ErrorIs(t, g.AddComponent(1, 2, -1), bom.ErrInvalidAmount)

	_, err := bom.ExplodeOrder(g, []bom.Line{{ProductID: 1, Amount: 0}})
	assert.ErrorIs(t, err, bom.ErrInvalidAmount)
}

func TestExplodeOrderSumsLines(t *testing.T) {
	req, err := bom.ExplodeOrder(sampleGraph(t), []bom.Line{
		{ProductID: 1, Amount: 1},
		{ProductID: 3, Amount: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(19+12), req.Parts[100])
	// product 3 is a root on the second line, so only the first line counts it
	assert.Equal(t, int64(3), req.Products[3])
}

func TestShortfalls(t *testing.T) {
	req, err := bom.Explode(sampleGraph(t), 1, 1)
	require.NoError(t, err)

	report := bom.Shortfalls(req, bom.Stock{
		Parts:    map[int64]int64{100: 25, 101: 5},
		Products: map[int64]int64{3: 1},
	})

	require.Len(t, report.Parts, 3)
	assert.Equal(t, bom.Shortfall{ID: 100, Needed: 19, OnHand: 25, Short: 0}, report.Parts[0])
	assert.Equal(t, bom.Shortfall{ID: 101, Needed: 7, OnHand: 5, Short: 2}, report.Parts[1])
	assert.Equal(t, bom.Shortfall{ID: 102, Needed: 2, OnHand: 0, Short: 2}, report.Parts[2])

	require.Len(t, report.Products, 2)
	assert.Equal(t, bom.Shortfall{ID: 2, Needed: 1, OnHand: 0, Short: 1}, report.Products[0])
	assert.Equal(t, bom.Shortfall{ID: 3, Needed: 3, OnHand: 1, Short: 2}, report.Products[1])
	assert.True(t, report.Short())

	covered := bom.Shortfalls(req, bom.Stock{
		Parts:    map[int64]int64{100: 19, 101: 7, 102: 2},
		Products: map[int64]int64{2: 1, 3: 3},
	})
	assert.False(t, covered.Short())
}

func TestExplodeRejectsQuantityOverflow(t *testing.T) {
	g := bom.NewGraph()
	require.NoError(t, g.AddComponent(1, 2, 1_000_000))
	require.NoError(t, g.AddComponent(2, 3, 1_000_000))
	require.NoError(t, g.AddComponent(3, 4, 1_000_000))
	require.NoError(t, g.AddPart(4, 100, 1_000_000))

	_, err := bom.Explode(g, 1, 1)
	assert.ErrorIs(t, err, bom.ErrQuantityOverflow)

	// product 2 needs 1e18 of part 100 per unit, which fits; ten units do not
	req, err := bom.Explode(g, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000_000_000_000), req.Parts[100])

	_, err = bom.ExplodeOrder(g, []bom.Line{{ProductID: 2, Amount: 10}})
	assert.ErrorIs(t, err, bom.ErrQuantityOverflow)
}
