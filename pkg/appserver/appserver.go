package appserver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"testbay/internal/config"
	"testbay/pkg/containerizer"
	"testbay/pkg/logging"
	"testbay/pkg/orchestrator"
)

const subsystem = "AppServer"

const (
	// DefaultName is the container name of the application.
	DefaultName = "app"

	DebugPort = "5005"
	// DebugStartupTimeout leaves time to attach a debugger, the JVM waits for it.
	DebugStartupTimeout = 120 * time.Second
	debugJVMArgs        = "-agentlib:jdwp=transport=dt_socket,server=y,suspend=y,address=*:" + DebugPort
)

// Options describe the application under test.
type Options struct {
	Name string

	// Runtime selects the server; empty falls back to the runtime setting
	// (TESTBAY_RUNTIME or testbay.yaml).
	Runtime string
	// Version is a base image tag or a complete image reference.
	Version string

	// Image runs a prebuilt image and skips the build.
	Image string

	// ProjectDir holds target/ and runtime config files, "." by default.
	ProjectDir string
	// WarFile overrides the archive search below ProjectDir/target.
	WarFile string
	// CustomBuildDir contributes extra context files and, optionally, a
	// Dockerfile whose content replaces the FROM line.
	CustomBuildDir string

	Env map[string]string
	// Volumes are host/container directory pairs. Host paths are made absolute.
	Volumes []string

	Debug          bool
	LiveLogging    bool
	StartupTimeout time.Duration
}

// Application is the orchestrator component of the application container.
// It owns the temporary build context and removes it when the run stops.
type Application struct {
	opts     Options
	strategy Strategy

	mu       sync.Mutex
	buildDir string
}

// New resolves the runtime and validates opts. Settings fill in what opts
// leave open.
func New(opts Options) (*Application, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}

	settings, err := config.Load(opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	if opts.Runtime == "" {
		opts.Runtime = settings.Runtime
	}
	opts.Debug = opts.Debug || settings.Debug
	opts.LiveLogging = opts.LiveLogging || settings.LiveLogging

	if opts.Runtime == "" {
		return nil, &orchestrator.ConfigurationError{
			Container: opts.Name,
			Message:   fmt.Sprintf("no runtime selected, set Options.Runtime or %s_RUNTIME (%s)", config.EnvPrefix, strings.Join(Runtimes(), ", ")),
		}
	}
	s, err := Lookup(opts.Runtime)
	if err != nil {
		return nil, &orchestrator.ConfigurationError{Container: opts.Name, Message: err.Error()}
	}
	if opts.Debug && !s.SupportsDebug() {
		return nil, &orchestrator.ConfigurationError{Container: opts.Name, Message: fmt.Sprintf("debug mode is not supported with %s", s.Runtime())}
	}
	if _, err := volumeMounts(opts.Volumes); err != nil {
		return nil, &orchestrator.ConfigurationError{Container: opts.Name, Message: err.Error()}
	}
	return &Application{opts: opts, strategy: s}, nil
}

// Strategy returns the resolved runtime strategy.
func (a *Application) Strategy() Strategy {
	return a.strategy
}

// Spec builds the application container spec. Unless a prebuilt image is
// configured this assembles the image build context.
func (a *Application) Spec() (orchestrator.ContainerSpec, error) {
	s := a.strategy
	volumes, err := volumeMounts(a.opts.Volumes)
	if err != nil {
		return orchestrator.ContainerSpec{}, err
	}

	cfg := containerizer.ContainerConfig{
		Name:           a.opts.Name,
		Env:            make(map[string]string, len(a.opts.Env)+1),
		ExposedPorts:   append([]string{s.Port()}, s.ExtraPorts()...),
		Volumes:        volumes,
		Probe:          s.ReadinessProbe(),
		StartupTimeout: a.opts.StartupTimeout,
		LiveLogging:    a.opts.LiveLogging,
	}
	for k, v := range a.opts.Env {
		cfg.Env[k] = v
	}

	if a.opts.Debug {
		cfg.FixedPorts = append(cfg.FixedPorts, containerizer.PortBinding{HostPort: DebugPort, ContainerPort: DebugPort})
		cfg.Env["JVM_ARGS"] = debugJVMArgs
		cfg.StartupTimeout = DebugStartupTimeout
		logging.Info(subsystem, "Debug mode: attach a debugger to localhost:%s, the server waits for it", DebugPort)
	}

	if a.opts.Image != "" {
		cfg.Image = a.opts.Image
	} else {
		war := a.opts.WarFile
		if war == "" {
			if war, err = FindAppFile(a.opts.ProjectDir); err != nil {
				return orchestrator.ContainerSpec{}, err
			}
		}
		build, err := buildContext(s, a.opts, war)
		if err != nil {
			return orchestrator.ContainerSpec{}, err
		}
		a.mu.Lock()
		old := a.buildDir
		a.buildDir = build.ContextDir
		a.mu.Unlock()
		if old != "" {
			_ = os.RemoveAll(old)
		}
		cfg.Build = build
	}

	return orchestrator.ContainerSpec{
		ContainerConfig: cfg,
		Role:            orchestrator.RoleApplication,
		StartMode:       orchestrator.StartConcurrent,
		BasePath:        s.DeployRoot(),
		Component:       a,
	}, nil
}

// Close removes the build context.
func (a *Application) Close() error {
	a.mu.Lock()
	dir := a.buildDir
	a.buildDir = ""
	a.mu.Unlock()
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

// ApplicationSpec is New followed by Spec.
func ApplicationSpec(opts Options) (orchestrator.ContainerSpec, error) {
	app, err := New(opts)
	if err != nil {
		return orchestrator.ContainerSpec{}, err
	}
	return app.Spec()
}

// volumeMounts pairs up host and container directories. A single blank
// entry means no volumes.
func volumeMounts(pairs []string) ([]containerizer.VolumeMount, error) {
	if len(pairs) == 1 && strings.TrimSpace(pairs[0]) == "" {
		return nil, nil
	}
	if len(pairs)%2 == 1 {
		return nil, fmt.Errorf("volume mapping must be pairs of directories, got %d entries", len(pairs))
	}
	var mounts []containerizer.VolumeMount
	for i := 0; i < len(pairs); i += 2 {
		host, err := filepath.Abs(pairs[i])
		if err != nil {
			return nil, fmt.Errorf("failed to resolve volume %s: %w", pairs[i], err)
		}
		mounts = append(mounts, containerizer.VolumeMount{HostPath: host, ContainerPath: pairs[i+1]})
	}
	return mounts, nil
}
