package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// LauncherConfig describes how to start an engine process
type LauncherConfig struct {
	// Path is the engine executable
	Path string

	// Args are passed to the engine executable
	Args []string

	// ModelPath is loaded into every engine right after it starts
	ModelPath string

	// StartTimeout bounds the handshake with a freshly started engine
	StartTimeout time.Duration

	// CallTimeout bounds every engine call on the returned handles
	CallTimeout time.Duration
}

// Launcher is a Factory that starts one engine process per handle
type Launcher struct {
	config LauncherConfig
	logger zerolog.Logger
}

// NewLauncher creates a launcher for the configured engine executable
func NewLauncher(cfg LauncherConfig, logger zerolog.Logger) (*Launcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("engine path is required")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("engine executable not found: %s", cfg.Path)
	}
	return &Launcher{
		config: cfg,
		logger: logger.With().Str("component", "engine-launcher").Logger(),
	}, nil
}

// Open starts an engine process, loads the model and returns a guarded handle.
func (l *Launcher) Open(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	instanceID, _ := gonanoid.New()
	logger := l.logger.With().Str("engine_id", instanceID).Logger()

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              exec.Command(l.config.Path, l.config.Args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		StartTimeout:     l.config.StartTimeout,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "engine." + instanceID,
			Output: logger,
			Level:  hclog.Warn,
		}),
	})

	// Connect to engine
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, &ProtocolError{Op: "start", Err: err, Fatal: true}
	}

	// Dispense engine
	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, &ProtocolError{Op: "dispense", Err: err, Fatal: true}
	}

	eng, ok := raw.(Engine)
	if !ok {
		client.Kill()
		return nil, &ProtocolError{Op: "dispense", Err: fmt.Errorf("unexpected engine type %T", raw), Fatal: true}
	}

	h := &processHandle{engine: eng, kill: func() {
		client.Kill()
		logger.Debug().Msg("Engine stopped")
	}}
	guarded := NewGuard(h, l.config.CallTimeout)

	if l.config.ModelPath != "" {
		err := guarded.call(ctx, "load model", func(context.Context) error {
			return eng.LoadModel(l.config.ModelPath)
		})
		if err != nil {
			guarded.Close()
			return nil, err
		}
	}

	logger.Debug().
		Str("path", l.config.Path).
		Str("model", l.config.ModelPath).
		Msg("Engine started")

	return guarded, nil
}

// processHandle adapts the RPC engine client to Handle. Cancellation is
// enforced by the surrounding Guard.
type processHandle struct {
	engine Engine
	kill   func()
	once   sync.Once
}

func (h *processHandle) Configure(_ context.Context, cfg RunConfig) error {
	return h.engine.Configure(cfg)
}

func (h *processHandle) Setup(context.Context) error {
	return h.engine.Setup()
}

func (h *processHandle) Step(context.Context) error {
	return h.engine.Step()
}

func (h *processHandle) Query(_ context.Context, name string) ([]float64, error) {
	return h.engine.Query(name)
}

func (h *processHandle) Edges(context.Context) ([]Edge, error) {
	return h.engine.Edges()
}

func (h *processHandle) Close() error {
	h.once.Do(h.kill)
	return nil
}
