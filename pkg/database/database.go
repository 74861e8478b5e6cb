package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"testbay/internal/config"
	"testbay/internal/dataset"
	"testbay/pkg/containerizer"
	"testbay/pkg/logging"
	"testbay/pkg/orchestrator"
)

const subsystem = "Database"

// DefaultAlias is the network alias of the database container.
const DefaultAlias = "db"

const (
	DefaultSchemaScript = "create-tables.sql"
	DefaultDataset      = "data.yaml"
	DefaultResourceDir  = "testdata"
	DefaultUsername     = "test"
	DefaultPassword     = "test"
)

// EnvNames are the environment variables through which the application
// learns where the database is.
type EnvNames struct {
	URL      string
	Username string
	Password string
}

// DefaultEnvNames are used when Options.EnvNames is left empty.
var DefaultEnvNames = EnvNames{URL: "ds_url", Username: "ds_username", Password: "ds_password"}

// Options configure the database companion.
type Options struct {
	Kind  Kind
	Image string // tag or full image reference, see Definition.ImageFor

	Username string
	Password string

	// ResourceDir is the base for relative script and dataset paths.
	ResourceDir  string
	SchemaScript string
	Dataset      string
	SkipSchema   bool
	SkipDataset  bool

	// Sequential starts the database before every other container instead
	// of alongside them.
	Sequential bool

	EnvNames EnvNames

	// ProjectDir is where settings are read from, the working directory by default.
	ProjectDir string

	// JNDIName is handed to the application as jndi_name when set (WildFly).
	JNDIName string

	StartupTimeout time.Duration
	LiveLogging    bool

	// ConnectTimeout bounds connection attempts once the container is ready.
	ConnectTimeout time.Duration

	// Dialector overrides how the host-side connection is opened.
	Dialector func(host, port, user, password string) gorm.Dialector
}

// Database is the orchestrator component for a SQL database container. It
// runs the schema script once the container is ready, loads the dataset, and
// replaces the dataset tables' content around every test.
type Database struct {
	opts Options
	def  Definition

	mu     sync.RWMutex
	db     *gorm.DB
	ds     *dataset.Dataset
	closed bool
}

// New validates opts and fills in defaults. Env names, the JNDI name and live
// logging left unset come from the settings of ProjectDir.
func New(opts Options) (*Database, error) {
	settings, err := config.Load(opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	if opts.EnvNames.URL == "" {
		opts.EnvNames.URL = settings.Database.Env.URL
	}
	if opts.EnvNames.Username == "" {
		opts.EnvNames.Username = settings.Database.Env.Username
	}
	if opts.EnvNames.Password == "" {
		opts.EnvNames.Password = settings.Database.Env.Password
	}
	if opts.JNDIName == "" {
		opts.JNDIName = settings.Database.JNDI
	}
	opts.LiveLogging = opts.LiveLogging || settings.LiveLogging

	if opts.Kind == "" {
		opts.Kind = Postgres
	}
	def, err := Lookup(string(opts.Kind))
	if err != nil {
		return nil, err
	}
	if opts.Username == "" {
		opts.Username = DefaultUsername
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.ResourceDir == "" {
		opts.ResourceDir = DefaultResourceDir
	}
	if opts.SchemaScript == "" {
		opts.SchemaScript = DefaultSchemaScript
	}
	if opts.Dataset == "" {
		opts.Dataset = DefaultDataset
	}
	if opts.EnvNames.URL == "" {
		opts.EnvNames.URL = DefaultEnvNames.URL
	}
	if opts.EnvNames.Username == "" {
		opts.EnvNames.Username = DefaultEnvNames.Username
	}
	if opts.EnvNames.Password == "" {
		opts.EnvNames.Password = DefaultEnvNames.Password
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Dialector == nil {
		opts.Dialector = def.dialector
	}
	return &Database{opts: opts, def: def}, nil
}

// Definition returns the definition of the configured database kind.
func (d *Database) Definition() Definition {
	return d.def
}

// Spec returns the container spec with the database as its component.
func (d *Database) Spec() orchestrator.ContainerSpec {
	mode := orchestrator.StartConcurrent
	if d.opts.Sequential {
		mode = orchestrator.StartSequential
	}
	return orchestrator.ContainerSpec{
		ContainerConfig: containerizer.ContainerConfig{
			Name:           DefaultAlias,
			Image:          d.def.ImageFor(d.opts.Image),
			Env:            d.def.env(d.opts.Username, d.opts.Password),
			ExposedPorts:   []string{d.def.Port},
			NetworkAliases: []string{DefaultAlias},
			Probe: containerizer.Probe{
				Kind:       containerizer.ProbeLog,
				Pattern:    d.def.ReadyPattern,
				Occurrence: d.def.ReadyOccurrence,
			},
			StartupTimeout: d.opts.StartupTimeout,
			LiveLogging:    d.opts.LiveLogging,
		},
		Role:      orchestrator.RoleDatabase,
		StartMode: mode,
		Component: d,
	}
}

// ApplicationEnv implements orchestrator.EnvProvider.
func (d *Database) ApplicationEnv() map[string]string {
	env := map[string]string{
		d.opts.EnvNames.URL:      d.def.JDBCURL(DefaultAlias),
		d.opts.EnvNames.Username: d.opts.Username,
		d.opts.EnvNames.Password: d.opts.Password,
	}
	if d.opts.JNDIName != "" {
		env["jndi_name"] = d.opts.JNDIName
	}
	return env
}

// Initialize implements orchestrator.Initializer: connect, run the schema
// script and read the dataset.
func (d *Database) Initialize(ctx context.Context, c containerizer.Container) error {
	host, err := c.Host(ctx)
	if err != nil {
		return err
	}
	port, err := c.MappedPort(ctx, d.def.Port)
	if err != nil {
		return err
	}

	db, err := d.connect(ctx, host, port)
	if err != nil {
		return fmt.Errorf("failed to connect to %s at %s:%s: %w", d.def.Kind, host, port, err)
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		closePool(db)
		return errors.New("database was closed while connecting")
	}
	d.db = db
	d.mu.Unlock()

	if !d.opts.SkipSchema {
		path := d.resource(d.opts.SchemaScript)
		stmts, err := dataset.LoadScript(path)
		if err != nil {
			return &orchestrator.DataError{Container: c.Name(), Op: "schema script", Err: err}
		}
		if err := dataset.ExecScript(ctx, db, stmts); err != nil {
			return &orchestrator.DataError{Container: c.Name(), Op: "schema script " + path, Err: err}
		}
		logging.Info(subsystem, "Executed %d statements of %s", len(stmts), path)
	}

	if !d.opts.SkipDataset {
		ds, err := dataset.Load(d.resource(d.opts.Dataset))
		if err != nil {
			return &orchestrator.DataError{Container: c.Name(), Op: "dataset load", Err: err}
		}
		d.mu.Lock()
		d.ds = ds
		d.mu.Unlock()
		logging.Debug(subsystem, "Loaded dataset with tables %v", ds.TableNames())
	}
	return nil
}

func (d *Database) connect(ctx context.Context, host, port string) (*gorm.DB, error) {
	dialector := d.opts.Dialector(host, port, d.opts.Username, d.opts.Password)
	return backoff.Retry(ctx, func() (*gorm.DB, error) {
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			closePool(db)
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(d.opts.ConnectTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Debug(subsystem, "Database not reachable yet (%v), retrying in %s", err, next)
		}),
	)
}

func (d *Database) resource(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.opts.ResourceDir, name)
}

// DB returns the connection, nil before Initialize.
func (d *Database) DB() *gorm.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Refresh implements orchestrator.StateManager with a clean insert of the dataset.
func (d *Database) Refresh(ctx context.Context) error {
	db, ds, err := d.state()
	if err != nil || ds == nil {
		return err
	}
	return dataset.CleanInsert(ctx, db, ds)
}

// Clear implements orchestrator.StateManager by emptying the dataset tables.
func (d *Database) Clear(ctx context.Context) error {
	db, ds, err := d.state()
	if err != nil || ds == nil {
		return err
	}
	return dataset.DeleteAll(ctx, db, ds)
}

func (d *Database) state() (*gorm.DB, *dataset.Dataset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, nil, errors.New("database is not initialized")
	}
	return d.db, d.ds, nil
}

// Close implements io.Closer. A connection that Initialize opens afterwards
// is closed right away.
func (d *Database) Close() error {
	d.mu.Lock()
	db := d.db
	d.db = nil
	d.closed = true
	d.mu.Unlock()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func closePool(db *gorm.DB) {
	if db == nil || db.ConnPool == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
