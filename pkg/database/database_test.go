package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"testbay/pkg/containerizer"
	"testbay/pkg/orchestrator"
)

const schema = `
CREATE TABLE person (id INTEGER PRIMARY KEY, name VARCHAR(50));
CREATE TABLE greeting (id INTEGER PRIMARY KEY, person_id INTEGER REFERENCES person(id), text VARCHAR(50));
`

const data = `
person:
  - {id: 1, name: Alice}
  - {id: 2, name: Bob}
greeting:
  - {id: 1, person_id: 1, text: hello}
`

type fakeContainer struct{ name string }

func (f fakeContainer) Name() string                                      { return f.name }
func (f fakeContainer) ID() string                                        { return f.name }
func (f fakeContainer) Host(context.Context) (string, error)              { return "localhost", nil }
func (f fakeContainer) MappedPort(context.Context, string) (string, error) { return "15432", nil }
func (f fakeContainer) Logs(context.Context) (string, error)              { return "", nil }
func (f fakeContainer) Stop(context.Context) error                        { return nil }

type fakeRuntime struct{}

func (fakeRuntime) CreateNetwork(context.Context) (containerizer.Network, error) {
	return fakeNetwork{}, nil
}

func (fakeRuntime) StartContainer(_ context.Context, cfg containerizer.ContainerConfig) (containerizer.Container, error) {
	return fakeContainer{name: cfg.Name}, nil
}

type fakeNetwork struct{}

func (fakeNetwork) Name() string                 { return "net" }
func (fakeNetwork) Remove(context.Context) error { return nil }

// cleanEnv keeps the host's TESTBAY_* variables out of the settings.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TESTBAY_CONFIG",
		"TESTBAY_DATABASE_ENV_URL",
		"TESTBAY_DATABASE_ENV_USERNAME",
		"TESTBAY_DATABASE_ENV_PASSWORD",
		"TESTBAY_DATABASE_JNDI",
		"TESTBAY_LIVE_LOGGING",
	} {
		t.Setenv(key, "")
	}
}

// resources writes schema and dataset files and returns options that open
// a sqlite file instead of a networked database.
func resources(t *testing.T, withSchema, withData bool) Options {
	t.Helper()
	cleanEnv(t)
	dir := t.TempDir()
	if withSchema {
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultSchemaScript), []byte(schema), 0o644))
	}
	if withData {
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultDataset), []byte(data), 0o644))
	}
	dbPath := filepath.Join(dir, "test.db")
	return Options{
		ProjectDir:     dir,
		ResourceDir:    dir,
		ConnectTimeout: time.Second,
		Dialector: func(host, port, user, password string) gorm.Dialector {
			return sqlite.Open(dbPath)
		},
	}
}

func rows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Table(table).Count(&n).Error)
	return n
}

func TestNew_Defaults(t *testing.T) {
	cleanEnv(t)
	d, err := New(Options{ProjectDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, Postgres, d.Definition().Kind)

	spec := d.Spec()
	assert.Equal(t, "db", spec.Name)
	assert.Equal(t, "postgres:9.6.12", spec.Image)
	assert.Equal(t, []string{"5432"}, spec.ExposedPorts)
	assert.Equal(t, []string{"db"}, spec.NetworkAliases)
	assert.Equal(t, orchestrator.RoleDatabase, spec.Role)
	assert.Equal(t, orchestrator.StartConcurrent, spec.StartMode)
	assert.Equal(t, containerizer.ProbeLog, spec.Probe.Kind)
	assert.Equal(t, 2, spec.Probe.Occurrence)
	assert.Equal(t, "test", spec.Env["POSTGRES_PASSWORD"])
	assert.Same(t, d, spec.Component)

	assert.Equal(t, map[string]string{
		"ds_url":      "jdbc:postgresql://db:5432/test",
		"ds_username": "test",
		"ds_password": "test",
	}, d.ApplicationEnv())
}

func TestNew_CustomOptions(t *testing.T) {
	cleanEnv(t)
	d, err := New(Options{
		Kind:       "MySQL",
		Image:      "8.0",
		Username:   "root",
		Password:   "secret",
		Sequential: true,
		EnvNames:   EnvNames{URL: "DB_URL"},
		JNDIName:   "java:jboss/datasources/defaultDataSource",
	})
	require.NoError(t, err)

	spec := d.Spec()
	assert.Equal(t, "mysql:8.0", spec.Image)
	assert.Equal(t, orchestrator.StartSequential, spec.StartMode)
	assert.NotContains(t, spec.Env, "MYSQL_USER")
	assert.Equal(t, "secret", spec.Env["MYSQL_ROOT_PASSWORD"])

	env := d.ApplicationEnv()
	assert.Equal(t, "jdbc:mysql://db:3306/test?useSSL=false", env["DB_URL"])
	assert.Equal(t, "root", env["ds_username"])
	assert.Equal(t, "java:jboss/datasources/defaultDataSource", env["jndi_name"])

	_, err = New(Options{Kind: "oracle"})
	assert.ErrorContains(t, err, "unsupported database")
}

func TestNew_Settings(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TESTBAY_DATABASE_ENV_URL", "DB_URL")
	t.Setenv("TESTBAY_DATABASE_JNDI", "java:jboss/datasources/testDS")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "testbay.yaml"), []byte("database:\n  env:\n    username: DB_USER\n"), 0o644))

	d, err := New(Options{ProjectDir: dir})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"DB_URL":      "jdbc:postgresql://db:5432/test",
		"DB_USER":     "test",
		"ds_password": "test",
		"jndi_name":   "java:jboss/datasources/testDS",
	}, d.ApplicationEnv())

	// Explicit options win over settings.
	d, err = New(Options{ProjectDir: dir, EnvNames: EnvNames{URL: "JDBC_URL"}, JNDIName: "java:/app"})
	require.NoError(t, err)
	env := d.ApplicationEnv()
	assert.Contains(t, env, "JDBC_URL")
	assert.Contains(t, env, "DB_USER")
	assert.Equal(t, "java:/app", env["jndi_name"])
}

func TestInitialize_AfterClose(t *testing.T) {
	d, err := New(resources(t, true, true))
	require.NoError(t, err)
	require.NoError(t, d.Close())

	err = d.Initialize(context.Background(), fakeContainer{name: "db"})
	assert.ErrorContains(t, err, "closed while connecting")
	assert.Nil(t, d.DB())
}

func TestDefinition_ImageFor(t *testing.T) {
	def, err := Lookup("mariadb")
	require.NoError(t, err)

	assert.Equal(t, "mariadb:10.3.6", def.ImageFor(""))
	assert.Equal(t, "mariadb:10.6", def.ImageFor("10.6"))
	assert.Equal(t, "registry.local/mariadb:11", def.ImageFor("registry.local/mariadb:11"))
	assert.Equal(t, "mariadb:latest", def.ImageFor("mariadb:latest"))
	assert.Equal(t, "jdbc:mariadb://db:3306/test", def.JDBCURL("db"))
}

func TestInitializeRefreshClear(t *testing.T) {
	d, err := New(resources(t, true, true))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, d.Refresh(ctx), "refresh before initialize")

	require.NoError(t, d.Initialize(ctx, fakeContainer{name: "db"}))
	db := d.DB()
	require.NotNil(t, db)

	for i := 0; i < 2; i++ {
		require.NoError(t, d.Refresh(ctx))
		assert.Equal(t, int64(2), rows(t, db, "person"))
		assert.Equal(t, int64(1), rows(t, db, "greeting"))

		require.NoError(t, d.Clear(ctx))
		assert.Equal(t, int64(0), rows(t, db, "person"))
		assert.Equal(t, int64(0), rows(t, db, "greeting"))
	}

	require.NoError(t, d.Close())
	assert.Nil(t, d.DB())
	assert.NoError(t, d.Close())
}

func TestInitialize_MissingFiles(t *testing.T) {
	ctx := context.Background()

	d, err := New(resources(t, false, true))
	require.NoError(t, err)
	err = d.Initialize(ctx, fakeContainer{name: "db"})
	var dataErr *orchestrator.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "schema script", dataErr.Op)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	d, err = New(resources(t, true, false))
	require.NoError(t, err)
	err = d.Initialize(ctx, fakeContainer{name: "db"})
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "dataset load", dataErr.Op)

	opts := resources(t, false, false)
	opts.SkipSchema = true
	opts.SkipDataset = true
	d, err = New(opts)
	require.NoError(t, err)
	require.NoError(t, d.Initialize(ctx, fakeContainer{name: "db"}))
	assert.NoError(t, d.Refresh(ctx))
	assert.NoError(t, d.Clear(ctx))
}

func TestInitialize_BrokenSchema(t *testing.T) {
	opts := resources(t, false, true)
	require.NoError(t, os.WriteFile(filepath.Join(opts.ResourceDir, DefaultSchemaScript), []byte("CREATE TABLE;"), 0o644))
	d, err := New(opts)
	require.NoError(t, err)

	err = d.Initialize(context.Background(), fakeContainer{name: "db"})
	var dataErr *orchestrator.DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Contains(t, err.Error(), "statement 1")
}

func TestWithOrchestrator(t *testing.T) {
	d, err := New(resources(t, true, true))
	require.NoError(t, err)

	ctrl, err := orchestrator.New(orchestrator.Config{Runtime: fakeRuntime{}})
	require.NoError(t, err)

	app := orchestrator.ContainerSpec{
		ContainerConfig: containerizer.ContainerConfig{Name: "app", Image: "app", ExposedPorts: []string{"8080"}},
		Role:            orchestrator.RoleApplication,
	}
	run, err := ctrl.Configure([]orchestrator.ContainerSpec{app, d.Spec()})
	require.NoError(t, err)
	assert.Equal(t, "jdbc:postgresql://db:5432/test", run.Specs()[0].Env["ds_url"])

	ctx := context.Background()
	require.NoError(t, ctrl.Start(ctx, run))
	h, err := ctrl.InjectHandles(run)
	require.NoError(t, err)
	db, err := h.Database()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, ctrl.RefreshPerTestState(ctx, run))
		assert.Equal(t, int64(2), rows(t, db, "person"))
		require.NoError(t, ctrl.ClearPerTestState(ctx, run))
		assert.Equal(t, int64(0), rows(t, db, "person"))
		assert.Equal(t, int64(0), rows(t, db, "greeting"))
	}

	require.NoError(t, ctrl.Stop(ctx, run))
	assert.Nil(t, d.DB(), "stop closes the connection")
}
