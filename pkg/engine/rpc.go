package engine

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is used to verify that the engine process and the sweep are compatible
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ECHOSWEEP_ENGINE",
	MagicCookieValue: "echosweep-engine-v1",
}

// PluginName is the name the engine is dispensed under
const PluginName = "engine"

// PluginMap is the map of plugins the sweep can dispense
var PluginMap = map[string]plugin.Plugin{
	PluginName: &EnginePlugin{},
}

// Engine is implemented by simulation engines served out of process with
// Serve. Implementations are driven by a single caller and need no locking.
type Engine interface {
	LoadModel(path string) error
	Configure(cfg RunConfig) error
	Setup() error
	Step() error
	Query(name string) ([]float64, error)
	Edges() ([]Edge, error)
}

// Serve runs impl as an engine process. It blocks until the sweep
// disconnects and should be called from the engine binary's main.
func Serve(impl Engine) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &EnginePlugin{Impl: impl},
		},
	})
}

// EnginePlugin is the implementation of plugin.Plugin for the engine RPC
type EnginePlugin struct {
	Impl Engine
}

func (p *EnginePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *EnginePlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// RPCServer is the RPC server that RPCClient talks to. It enforces the
// configure -> setup -> step ordering so engines cannot be driven out of
// sequence, and resets that state on every Configure.
type RPCServer struct {
	Impl Engine

	configured bool
	ready      bool
}

func (s *RPCServer) LoadModel(path string, resp *bool) error {
	if err := s.Impl.LoadModel(path); err != nil {
		return err
	}
	s.configured, s.ready = false, false
	*resp = true
	return nil
}

func (s *RPCServer) Configure(cfg RunConfig, resp *bool) error {
	s.configured, s.ready = false, false
	if err := s.Impl.Configure(cfg); err != nil {
		return err
	}
	s.configured = true
	*resp = true
	return nil
}

func (s *RPCServer) Setup(_ int, resp *bool) error {
	if !s.configured {
		return ErrNotConfigured
	}
	if err := s.Impl.Setup(); err != nil {
		return err
	}
	s.ready = true
	*resp = true
	return nil
}

func (s *RPCServer) Step(_ int, resp *bool) error {
	if !s.ready {
		return ErrNotSetUp
	}
	if err := s.Impl.Step(); err != nil {
		return err
	}
	*resp = true
	return nil
}

func (s *RPCServer) Query(name string, resp *[]float64) error {
	if !s.ready {
		return ErrNotSetUp
	}
	values, err := s.Impl.Query(name)
	if err != nil {
		return err
	}
	*resp = values
	return nil
}

func (s *RPCServer) Edges(_ int, resp *[]Edge) error {
	if !s.ready {
		return ErrNotSetUp
	}
	edges, err := s.Impl.Edges()
	if err != nil {
		return err
	}
	*resp = edges
	return nil
}

// RPCClient is the RPC client that talks to RPCServer
type RPCClient struct {
	client *rpc.Client
}

func (c *RPCClient) LoadModel(path string) error {
	var ok bool
	return c.client.Call("Plugin.LoadModel", path, &ok)
}

func (c *RPCClient) Configure(cfg RunConfig) error {
	var ok bool
	return c.client.Call("Plugin.Configure", cfg, &ok)
}

func (c *RPCClient) Setup() error {
	var ok bool
	return c.client.Call("Plugin.Setup", 0, &ok)
}

func (c *RPCClient) Step() error {
	var ok bool
	return c.client.Call("Plugin.Step", 0, &ok)
}

func (c *RPCClient) Query(name string) ([]float64, error) {
	var values []float64
	if err := c.client.Call("Plugin.Query", name, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (c *RPCClient) Edges() ([]Edge, error) {
	var edges []Edge
	if err := c.client.Call("Plugin.Edges", 0, &edges); err != nil {
		return nil, err
	}
	return edges, nil
}
