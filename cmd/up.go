package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"testbay/internal/config"
	"testbay/pkg/appserver"
	"testbay/pkg/containerizer"
	"testbay/pkg/database"
	"testbay/pkg/orchestrator"
	"testbay/pkg/stub"
)

// upOptions collects the flags of the up command.
type upOptions struct {
	runtime     string
	version     string
	image       string
	projectDir  string
	app         string
	customDir   string
	volumes     []string
	env         []string
	database    string
	dbVersion   string
	resources   string
	schema      string
	dataset     string
	stubs       []string
	debug       bool
	liveLogging bool
	quiet       bool
}

func newUpCmd() *cobra.Command {
	opts := upOptions{}
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Start a test environment and keep it running until interrupted",
		Long: `Up builds the application image from the web archive in target/, starts it
together with the requested database and stub servers, prints where each
container can be reached and waits for Ctrl+C. Everything is stopped and
removed on exit.

Examples:
  testbay up --runtime payara-micro
  testbay up --runtime wildfly --database postgres --dataset data.yaml
  testbay up --runtime open-liberty --stub payments --debug`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runUp(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.runtime, "runtime", "", "Application server: "+strings.Join(appserver.Runtimes(), ", ")+" (default from settings)")
	f.StringVar(&opts.version, "version", "", "Base image tag or full image of the application server")
	f.StringVar(&opts.image, "image", "", "Run this prebuilt application image instead of building one")
	f.StringVar(&opts.projectDir, "project", ".", "Project directory containing target/")
	f.StringVar(&opts.app, "app", "", "Web archive to deploy (default: the single .war below target/)")
	f.StringVar(&opts.customDir, "build-dir", "", "Directory with extra build context files and an optional Dockerfile")
	f.StringSliceVar(&opts.volumes, "volume", nil, "Volume mapping as host:container, repeatable")
	f.StringArrayVarP(&opts.env, "env", "e", nil, "Application environment variable KEY=VALUE, repeatable")
	f.StringVar(&opts.database, "database", "", "Database to start: "+strings.Join(database.SupportedKinds(), ", "))
	f.StringVar(&opts.dbVersion, "database-version", "", "Database image tag or full image")
	f.StringVar(&opts.resources, "resources", database.DefaultResourceDir, "Directory holding the schema script and dataset")
	f.StringVar(&opts.schema, "schema", database.DefaultSchemaScript, "Schema script executed once the database is ready")
	f.StringVar(&opts.dataset, "dataset", database.DefaultDataset, "Dataset loaded into the database")
	f.StringSliceVar(&opts.stubs, "stub", nil, "Start a WireMock stub server with this host name, repeatable")
	f.BoolVar(&opts.debug, "debug", false, "Suspend the application JVM until a debugger attaches on port 5005")
	f.BoolVar(&opts.liveLogging, "live-logging", false, "Stream container output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress the spinner")
	return cmd
}

func runUp(ctx context.Context, out, errOut io.Writer, opts upOptions) error {
	settings, err := config.Load(opts.projectDir)
	if err != nil {
		return err
	}
	settings.InitLogging(errOut)

	specs, closers, err := opts.specs(settings)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	rt, err := containerizer.NewContainerRuntime(settings.Container.Runtime)
	if err != nil {
		return err
	}
	ctrl, err := orchestrator.New(orchestrator.Config{
		Runtime:         rt,
		StartupTimeout:  settings.Startup.Timeout,
		StopParallelism: settings.Stop.Parallelism,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, ctrl, specs, out, errOut, opts.quiet)
}

// serve runs the environment until ctx is done.
func serve(ctx context.Context, ctrl *orchestrator.Controller, specs []orchestrator.ContainerSpec, out, errOut io.Writer, quiet bool) error {
	run, err := ctrl.Configure(specs)
	if err != nil {
		return err
	}

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(errOut))
		s.Suffix = fmt.Sprintf(" Starting %d containers...", len(specs))
		s.Start()
	}
	startErr := ctrl.Start(ctx, run)
	if s != nil {
		if startErr != nil {
			s.FinalMSG = text.FgRed.Sprint("Environment failed to start") + "\n"
		}
		s.Stop()
	}

	if startErr == nil {
		rows, err := endpoints(ctx, ctrl, run)
		if err != nil {
			startErr = err
		} else {
			renderEndpoints(out, rows)
			fmt.Fprintln(out, "Press Ctrl+C to stop the environment.")
			<-ctx.Done()
		}
	} else {
		renderOutcomes(errOut, run)
		printFailedLogs(ctx, errOut, ctrl, run)
	}

	fmt.Fprintln(errOut, "Stopping environment...")
	stopErr := ctrl.Stop(context.WithoutCancel(ctx), run)
	return errors.Join(startErr, stopErr)
}

// specs turns the flags into container specs. The closers release build
// directories and connections once the environment is gone.
func (o upOptions) specs(settings config.Settings) ([]orchestrator.ContainerSpec, []io.Closer, error) {
	appEnv, err := parseEnv(o.env)
	if err != nil {
		return nil, nil, err
	}
	volumes, err := parseVolumes(o.volumes)
	if err != nil {
		return nil, nil, err
	}

	app, err := appserver.New(appserver.Options{
		Runtime:        o.runtime,
		Version:        o.version,
		Image:          o.image,
		ProjectDir:     o.projectDir,
		WarFile:        o.app,
		CustomBuildDir: o.customDir,
		Env:            appEnv,
		Volumes:        volumes,
		Debug:          o.debug,
		LiveLogging:    o.liveLogging,
	})
	if err != nil {
		return nil, nil, err
	}
	appSpec, err := app.Spec()
	if err != nil {
		_ = app.Close()
		return nil, nil, err
	}
	specs := []orchestrator.ContainerSpec{appSpec}
	closers := []io.Closer{app}

	if o.database != "" {
		db, err := database.New(database.Options{
			Kind:         database.Kind(o.database),
			Image:        o.dbVersion,
			ResourceDir:  o.resources,
			SchemaScript: o.schema,
			Dataset:      o.dataset,
			ProjectDir:   o.projectDir,
			EnvNames: database.EnvNames{
				URL:      settings.Database.Env.URL,
				Username: settings.Database.Env.Username,
				Password: settings.Database.Env.Password,
			},
			JNDIName:    settings.Database.JNDI,
			LiveLogging: o.liveLogging || settings.LiveLogging,
		})
		if err != nil {
			_ = app.Close()
			return nil, nil, err
		}
		specs = append(specs, db.Spec())
		closers = append(closers, db)
	}

	for _, name := range o.stubs {
		specs = append(specs, stub.New(stub.Options{
			Name:        name,
			EnvName:     stubEnvName(name),
			LiveLogging: o.liveLogging || settings.LiveLogging,
		}).Spec())
	}
	return specs, closers, nil
}

// stubEnvName is the variable that tells the application where a stub is
// (payments -> PAYMENTS_URL).
func stubEnvName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name)) + "_URL"
}

func parseEnv(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

// parseVolumes splits host:container mappings into the flat pair list the
// application server options expect.
func parseVolumes(mappings []string) ([]string, error) {
	var pairs []string
	for _, m := range mappings {
		host, container, ok := strings.Cut(m, ":")
		if !ok || host == "" || container == "" {
			return nil, fmt.Errorf("invalid --volume %q, expected host:container", m)
		}
		pairs = append(pairs, host, container)
	}
	return pairs, nil
}

// endpointRow is one line of the endpoint table.
type endpointRow struct {
	Name     string
	Role     orchestrator.Role
	Port     string
	Endpoint string
	Ready    time.Duration
}

func endpoints(ctx context.Context, ctrl *orchestrator.Controller, run *orchestrator.Run) ([]endpointRow, error) {
	h, err := ctrl.InjectHandles(run)
	if err != nil {
		return nil, err
	}
	var rows []endpointRow
	for _, spec := range run.Specs() {
		c, err := h.Container(spec.Name)
		if err != nil {
			return nil, err
		}
		res, _ := run.Result(spec.Name)
		for _, port := range spec.ExposedPorts {
			ep, err := containerizer.Endpoint(ctx, c, port)
			if err != nil {
				return nil, err
			}
			if spec.Role == orchestrator.RoleApplication && port == spec.ExposedPorts[0] {
				base, err := h.BaseURL(ctx)
				if err != nil {
					return nil, err
				}
				ep = base
			}
			rows = append(rows, endpointRow{Name: spec.Name, Role: spec.Role, Port: port, Endpoint: ep, Ready: res.Duration})
		}
	}
	return rows, nil
}

func renderEndpoints(w io.Writer, rows []endpointRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("CONTAINER"),
		text.FgHiCyan.Sprint("ROLE"),
		text.FgHiCyan.Sprint("PORT"),
		text.FgHiCyan.Sprint("ENDPOINT"),
		text.FgHiCyan.Sprint("READY AFTER"),
	})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Name, string(r.Role), r.Port, r.Endpoint, r.Ready.Round(time.Millisecond).String()})
	}
	t.Render()
}

// renderOutcomes shows how far each container got during a failed startup.
func renderOutcomes(w io.Writer, run *orchestrator.Run) {
	results := run.Results()
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60, WidthMaxEnforcer: text.Trim},
	})
	t.AppendHeader(table.Row{"CONTAINER", "OUTCOME", "ERROR"})
	for _, spec := range run.Specs() {
		res, ok := results[spec.Name]
		if !ok {
			res.Outcome = orchestrator.OutcomePending
		}
		outcome := string(res.Outcome)
		switch res.Outcome {
		case orchestrator.OutcomeReady:
			outcome = text.FgGreen.Sprint(outcome)
		case orchestrator.OutcomeFailed, orchestrator.OutcomeTimedOut:
			outcome = text.FgRed.Sprint(outcome)
		}
		msg := ""
		if res.Err != nil {
			msg = strings.Join(strings.Fields(res.Err.Error()), " ")
		}
		t.AppendRow(table.Row{spec.Name, outcome, msg})
	}
	t.Render()
}

func printFailedLogs(ctx context.Context, w io.Writer, ctrl *orchestrator.Controller, run *orchestrator.Run) {
	for name, res := range run.Results() {
		if res.Outcome != orchestrator.OutcomeFailed && res.Outcome != orchestrator.OutcomeTimedOut {
			continue
		}
		logs, err := ctrl.GetLogs(ctx, run, name)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\n%s\n", text.FgYellow.Sprintf("--- log of %s (%s) ---", name, res.Outcome), logs)
	}
}
