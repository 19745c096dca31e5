package engine

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEngine is an in-process Engine for exercising the RPC transport
type recordingEngine struct {
	model      string
	configured []RunConfig
	steps      int
}

func (e *recordingEngine) LoadModel(path string) error {
	if path == "" {
		return errors.New("empty model path")
	}
	e.model = path
	return nil
}

func (e *recordingEngine) Configure(cfg RunConfig) error {
	e.configured = append(e.configured, cfg)
	e.steps = 0
	return nil
}

func (e *recordingEngine) Setup() error { return nil }

func (e *recordingEngine) Step() error {
	e.steps++
	return nil
}

func (e *recordingEngine) Query(name string) ([]float64, error) {
	switch name {
	case QueryMean, QueryInitialMean:
		return []float64{float64(e.steps), 1}, nil
	case QueryVariance, QueryInitialVariance:
		return []float64{1, 1}, nil
	}
	return nil, ErrUnknownQuery
}

func (e *recordingEngine) Edges() ([]Edge, error) {
	return []Edge{{Source: 0, Target: 1}, {Source: 1, Target: 0}}, nil
}

func dispenseEngine(t *testing.T, impl Engine) Engine {
	t.Helper()

	client, _ := plugin.TestPluginRPCConn(t, map[string]plugin.Plugin{
		PluginName: &EnginePlugin{Impl: impl},
	}, nil)
	t.Cleanup(func() { client.Close() })

	raw, err := client.Dispense(PluginName)
	require.NoError(t, err)

	eng, ok := raw.(Engine)
	require.True(t, ok)
	return eng
}

func TestRPC_RoundTrip(t *testing.T) {
	impl := &recordingEngine{}
	eng := dispenseEngine(t, impl)

	require.NoError(t, eng.LoadModel("./EC3.0.nlogo"))
	assert.Equal(t, "./EC3.0.nlogo", impl.model)

	cfg := testRunConfig(2).WithPoint(1.5, 0.25)
	require.NoError(t, eng.Configure(cfg))
	require.NoError(t, eng.Setup())
	require.NoError(t, eng.Step())
	require.NoError(t, eng.Step())

	mean, err := eng.Query(QueryMean)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, mean)

	edges, err := eng.Edges()
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	require.Len(t, impl.configured, 1)
	assert.Equal(t, 1.5, impl.configured[0].Beta)
	assert.Equal(t, 0.25, impl.configured[0].Dist)
}

func TestRPC_EnforcesOrdering(t *testing.T) {
	eng := dispenseEngine(t, &recordingEngine{})

	t.Run("setup before configure fails", func(t *testing.T) {
		err := eng.Setup()
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrNotConfigured.Error())
	})

	t.Run("step before setup fails", func(t *testing.T) {
		require.NoError(t, eng.Configure(testRunConfig(2)))
		err := eng.Step()
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrNotSetUp.Error())
	})

	t.Run("configure resets a running engine", func(t *testing.T) {
		require.NoError(t, eng.Configure(testRunConfig(2)))
		require.NoError(t, eng.Setup())
		require.NoError(t, eng.Step())

		require.NoError(t, eng.Configure(testRunConfig(2)))
		_, err := eng.Query(QueryMean)
		require.Error(t, err)
	})

	t.Run("engine errors cross the wire", func(t *testing.T) {
		require.NoError(t, eng.Configure(testRunConfig(2)))
		require.NoError(t, eng.Setup())
		_, err := eng.Query("lonely")
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrUnknownQuery.Error())
	})
}

func TestRunConfig_Params(t *testing.T) {
	cfg := testRunConfig(1000).WithPoint(2, 0.5)
	cfg.Precision = 10
	cfg.UpdateType = 2

	params := cfg.Params()
	byName := make(map[string]string, len(params))
	for _, p := range params {
		byName[p.Name] = p.Value
	}

	assert.Equal(t, "N", params[0].Name)
	assert.Equal(t, "1000", byName["N"])
	assert.Equal(t, "2.0", byName["beta"])
	assert.Equal(t, "0.5", byName["dist"])
	assert.Equal(t, "10.0", byName["var-c"])
	assert.Equal(t, "2", byName["update-type"])
	assert.Equal(t, `"scale-free"`, byName["network-type"])
	assert.Equal(t, `"bivariate"`, byName["initial-sampling"])
}

func TestRunConfig_WithPointCopies(t *testing.T) {
	base := testRunConfig(10)
	a := base.WithPoint(1, 2)
	b := base.WithPoint(3, 4)

	assert.Equal(t, 0.0, base.Beta)
	assert.Equal(t, 1.0, a.Beta)
	assert.Equal(t, 3.0, b.Beta)
}
