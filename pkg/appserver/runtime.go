package appserver

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"text/template"

	"testbay/pkg/containerizer"
)

// Runtime names a supported application server.
type Runtime string

const (
	PayaraMicro Runtime = "payara-micro"
	OpenLiberty Runtime = "open-liberty"
	WildFly     Runtime = "wildfly"
	GlassFish   Runtime = "glassfish"
)

// Strategy captures what differs between application servers: where the
// archive goes, how readiness shows, which port serves HTTP.
type Strategy interface {
	Runtime() Runtime
	// Port is the HTTP port inside the container.
	Port() string
	// ExtraPorts are published alongside Port, e.g. a management port.
	ExtraPorts() []string
	ReadinessProbe() containerizer.Probe
	// DeployRoot is the context root the archive is served under.
	DeployRoot() string
	// BaseImage resolves a version string into the FROM image.
	BaseImage(version string) string
	// ContextFiles are project files copied into the build context.
	ContextFiles() []ContextFile
	// SupportsDebug reports whether JVM_ARGS reach the server JVM.
	SupportsDebug() bool
	// Dockerfile renders the build instructions.
	Dockerfile(data DockerfileData) (string, error)
}

// ContextFile is a project file that becomes part of the image build context.
type ContextFile struct {
	Source   string // relative to the project directory
	Target   string // relative to the build context
	Required bool
}

// server is the Strategy shared by all runtimes, differing only in data.
type server struct {
	runtime    Runtime
	repository string
	defaultTag string
	port       string
	extraPorts []string
	probe      containerizer.Probe
	deployRoot string
	files      []ContextFile
	debug      bool
	tmpl       *template.Template
}

func (s *server) Runtime() Runtime                    { return s.runtime }
func (s *server) Port() string                        { return s.port }
func (s *server) ExtraPorts() []string                { return append([]string(nil), s.extraPorts...) }
func (s *server) ReadinessProbe() containerizer.Probe { return s.probe }
func (s *server) DeployRoot() string                  { return s.deployRoot }
func (s *server) ContextFiles() []ContextFile         { return append([]ContextFile(nil), s.files...) }
func (s *server) SupportsDebug() bool                 { return s.debug }

// BaseImage treats a version containing "/" or ":" as a complete image
// reference, an empty one as the default tag and anything else as a tag.
func (s *server) BaseImage(version string) string {
	version = strings.TrimSpace(version)
	switch {
	case strings.ContainsAny(version, "/:"):
		return version
	case version == "":
		return s.repository + ":" + s.defaultTag
	default:
		return s.repository + ":" + version
	}
}

func (s *server) Dockerfile(data DockerfileData) (string, error) {
	if data.FromImage == "" && data.Base == "" {
		return "", fmt.Errorf("%s: dockerfile needs a base image", s.runtime)
	}
	data.Runtime = s.runtime
	var b strings.Builder
	if err := s.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s dockerfile: %w", s.runtime, err)
	}
	return b.String(), nil
}

var servers = map[Runtime]*server{
	PayaraMicro: {
		runtime:    PayaraMicro,
		repository: "payara/micro",
		defaultTag: "5.2022.2-jdk11",
		port:       "8080",
		probe:      containerizer.HTTPProbe("/health", "8080", http.StatusOK),
		debug:      true,
		tmpl:       mustTemplate(PayaraMicro, payaraDockerfile),
	},
	OpenLiberty: {
		runtime:    OpenLiberty,
		repository: "openliberty/open-liberty",
		defaultTag: "22.0.0.6-full-java11-openj9-ubi",
		port:       "9080",
		probe:      containerizer.LogProbe(`.*CWWKF0011I.*`),
		files: []ContextFile{
			{Source: "src/main/liberty/config/server.xml", Target: "server.xml"},
		},
		debug: true,
		tmpl:  mustTemplate(OpenLiberty, libertyDockerfile),
	},
	WildFly: {
		runtime:    WildFly,
		repository: "quay.io/wildfly/wildfly",
		defaultTag: "26.1.1.Final",
		port:       "8080",
		extraPorts: []string{"9990"},
		probe:      containerizer.LogProbe(`.*WFLYSRV0010: Deployed "test.war".*`),
		deployRoot: "/test",
		debug:      true,
		tmpl:       mustTemplate(WildFly, wildflyDockerfile),
	},
	GlassFish: {
		runtime:    GlassFish,
		repository: "airhacks/glassfish",
		defaultTag: "5.1.0",
		port:       "8080",
		probe:      containerizer.LogProbe(`.*_MessageID=NCLS-DEPLOYMENT-02035.*`),
		deployRoot: "/test",
		tmpl:       mustTemplate(GlassFish, glassfishDockerfile),
	},
}

// Lookup returns the strategy for a runtime name, ignoring case and
// accepting underscores for dashes (PAYARA_MICRO).
func Lookup(name string) (Strategy, error) {
	key := Runtime(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-"))
	s, ok := servers[key]
	if !ok {
		return nil, fmt.Errorf("unsupported runtime %q, supported: %s", name, strings.Join(Runtimes(), ", "))
	}
	return s, nil
}

// Runtimes lists the supported runtime names.
func Runtimes() []string {
	names := make([]string, 0, len(servers))
	for r := range servers {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return names
}
