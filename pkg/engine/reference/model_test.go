package reference

import (
	"context"
	"testing"

	"github.com/harun/echosweep/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(network string) engine.RunConfig {
	return engine.RunConfig{
		Population:      50,
		Precision:       1,
		VarD:            0.5,
		UpdateType:      UpdateBayes,
		NetworkType:     network,
		Density:         0.1,
		Pref:            2,
		InitialSampling: SamplingBivariate,
		TrueMean:        0,
		TrueVariance:    1,
		Beta:            1,
		Dist:            2,
	}
}

func TestModel_Ordering(t *testing.T) {
	m := New(1)

	assert.ErrorIs(t, m.Setup(), engine.ErrNotConfigured)
	assert.ErrorIs(t, m.Step(), engine.ErrNotSetUp)
	_, err := m.Query(engine.QueryMean)
	assert.ErrorIs(t, err, engine.ErrNotSetUp)

	require.NoError(t, m.Configure(testConfig("random")))
	require.NoError(t, m.Setup())
	require.NoError(t, m.Step())

	_, err = m.Query("opinion")
	assert.ErrorIs(t, err, engine.ErrUnknownQuery)

	// a new configuration requires a new setup
	require.NoError(t, m.Configure(testConfig("random")))
	assert.ErrorIs(t, m.Step(), engine.ErrNotSetUp)
}

func TestModel_RejectsInvalidConfig(t *testing.T) {
	m := New(1)
	cfg := testConfig("lattice")
	assert.ErrorIs(t, m.Configure(cfg), engine.ErrInvalidRunConfig)

	cfg = testConfig("random")
	cfg.Population = 0
	assert.ErrorIs(t, m.Configure(cfg), engine.ErrInvalidRunConfig)
}

func TestModel_DeterministicForSeed(t *testing.T) {
	run := func() ([]float64, []engine.Edge) {
		m := New(42)
		require.NoError(t, m.Configure(testConfig("scale-free")))
		require.NoError(t, m.Setup())
		for i := 0; i < 5; i++ {
			require.NoError(t, m.Step())
		}
		mu, err := m.Query(engine.QueryMean)
		require.NoError(t, err)
		edges, err := m.Edges()
		require.NoError(t, err)
		return mu, edges
	}

	mu1, edges1 := run()
	mu2, edges2 := run()
	assert.Equal(t, mu1, mu2)
	assert.Equal(t, edges1, edges2)
}

func TestModel_ScaleFreeNetwork(t *testing.T) {
	m := New(7)
	require.NoError(t, m.Configure(testConfig("scale-free")))
	require.NoError(t, m.Setup())

	edges, err := m.Edges()
	require.NoError(t, err)

	// every agent after the first links to min(pref, i) earlier agents, both ways
	want := 2 * (1 + 2*48)
	assert.Len(t, edges, want)

	seen := map[engine.Edge]bool{}
	for _, e := range edges {
		assert.NotEqual(t, e.Source, e.Target)
		assert.False(t, seen[e], "duplicate edge %v", e)
		seen[e] = true
	}
	for e := range seen {
		assert.True(t, seen[engine.Edge{Source: e.Target, Target: e.Source}], "missing reverse of %v", e)
	}
}

func TestModel_BayesShrinksVariance(t *testing.T) {
	m := New(3)
	require.NoError(t, m.Configure(testConfig("random")))
	require.NoError(t, m.Setup())

	var0, err := m.Query(engine.QueryInitialVariance)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Step())
	}
	variance, err := m.Query(engine.QueryVariance)
	require.NoError(t, err)

	for i := range variance {
		assert.Less(t, variance[i], var0[i])
	}
}

func TestModel_InitialBeliefsArePreserved(t *testing.T) {
	m := New(5)
	require.NoError(t, m.Configure(testConfig("random")))
	require.NoError(t, m.Setup())

	mu0, err := m.Query(engine.QueryInitialMean)
	require.NoError(t, err)
	require.NoError(t, m.Step())

	after, err := m.Query(engine.QueryInitialMean)
	require.NoError(t, err)
	assert.Equal(t, mu0, after)

	// callers get copies
	mu0[0] = 1e9
	again, _ := m.Query(engine.QueryInitialMean)
	assert.NotEqual(t, 1e9, again[0])
}

func TestLocalFactory(t *testing.T) {
	f := engine.LocalFactory{New: func() engine.Engine { return New(9) }}

	h, err := f.Open(context.Background())
	require.NoError(t, err)
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Configure(ctx, testConfig("random")))
	require.NoError(t, h.Setup(ctx))
	require.NoError(t, h.Step(ctx))

	mu, err := h.Query(ctx, engine.QueryMean)
	require.NoError(t, err)
	assert.Len(t, mu, 50)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.Open(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
