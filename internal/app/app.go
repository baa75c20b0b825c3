package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/devmgr/internal/ctxlog"
	"github.com/specialistvlad/devmgr/internal/devtree"
	"github.com/specialistvlad/devmgr/internal/events"
	"github.com/specialistvlad/devmgr/internal/firmware"
	"github.com/specialistvlad/devmgr/internal/lifecycle"
	"github.com/specialistvlad/devmgr/internal/manifest"
	"github.com/specialistvlad/devmgr/internal/metrics"
	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/resource"
)

// recentEvents is how many events the in-memory recorder keeps for the
// /events endpoint and the console.
const recentEvents = 512

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config

	registry    *registry.Registry
	tree        *devtree.Tree
	coordinator *lifecycle.Coordinator
	resources   *resource.Supplier
	board       []manifest.Device

	bus       *events.Bus
	recorder  *events.Recorder
	metrics   *metrics.Collector
	journal   *events.Journal
	publisher *events.Publisher

	httpServer *http.Server
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App whose drivers are validated but not yet registered.
// Configuration and manifest errors are startup failures and panic.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	tree := devtree.New()
	reg := registry.New(tree)
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All driver modules registered.", "count", len(modules))

	if cfg.ManifestsPath != "" {
		defs, err := manifest.LoadDrivers(ctx, cfg.ManifestsPath)
		if err != nil {
			panic(fmt.Errorf("failed to load driver manifests: %w", err))
		}
		reg.PopulateDefinitions(defs)
		logger.Debug("Driver manifests loaded.", "count", len(defs))
	}
	if err := reg.ValidateRegistry(ctx); err != nil {
		// Compiled-in drivers and manifests disagree; nothing can run.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	var board []manifest.Device
	if cfg.BoardPath != "" {
		var err error
		if board, err = manifest.LoadBoard(ctx, cfg.BoardPath); err != nil {
			panic(fmt.Errorf("failed to load board: %w", err))
		}
		logger.Debug("Board loaded.", "devices", len(board))
	}

	a := &App{
		outW:      outW,
		logger:    logger,
		config:    cfg,
		registry:  reg,
		tree:      tree,
		resources: resource.NewSupplier(),
		board:     board,
		recorder:  events.NewRecorder(recentEvents),
	}
	a.bus = events.NewBus(a.recorder)

	collector, err := metrics.NewCollector(metrics.Config{})
	if err != nil {
		panic(fmt.Errorf("failed to create metrics collector: %w", err))
	}
	a.metrics = collector
	a.bus.Attach(collector)

	if cfg.JournalPath != "" {
		j, err := events.OpenJournal(cfg.JournalPath)
		if err != nil {
			panic(err)
		}
		a.journal = j
		a.bus.Attach(j)
		logger.Debug("Event journal opened.", "path", cfg.JournalPath)
	}

	loader, err := a.firmwareLoader(ctx)
	if err != nil {
		panic(err)
	}

	a.coordinator = lifecycle.New(ctx, tree, reg, lifecycle.Options{
		Workers:   cfg.Workers,
		Firmware:  loader,
		Events:    a.bus,
		Resources: a.resources,
	})
	return a
}

// firmwareLoader chains the configured firmware sources: local directories
// first, then the bucket. It returns nil when none is configured.
func (a *App) firmwareLoader(ctx context.Context) (firmware.Loader, error) {
	var chain firmware.Chain
	if len(a.config.FirmwareDirs) > 0 {
		chain = append(chain, firmware.NewDirLoader(a.resources, a.config.FirmwareDirs...))
	}
	if a.config.FirmwareBucket != "" {
		s3l, err := firmware.NewS3Loader(ctx, a.resources, firmware.S3Config{
			Bucket:         a.config.FirmwareBucket,
			Prefix:         a.config.FirmwarePrefix,
			Region:         a.config.FirmwareRegion,
			Endpoint:       a.config.FirmwareEndpoint,
			ForcePathStyle: a.config.FirmwareEndpoint != "",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create firmware bucket loader: %w", err)
		}
		chain = append(chain, s3l)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

// Registry returns the application's registry.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Coordinator returns the lifecycle coordinator.
func (a *App) Coordinator() *lifecycle.Coordinator {
	return a.coordinator
}

// Recorder returns the in-memory log of recent lifecycle events.
func (a *App) Recorder() *events.Recorder {
	return a.recorder
}
