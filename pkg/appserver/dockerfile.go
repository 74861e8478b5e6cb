package appserver

import (
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// DockerfileData feeds the runtime Dockerfile templates.
type DockerfileData struct {
	Runtime   Runtime
	FromImage string
	// Base replaces the FROM line when a custom Dockerfile was supplied.
	Base string
	// WarName is the original archive name, recorded as an image label.
	WarName string
	// Files lists the context targets that were actually copied.
	Files []string
	Debug bool
}

const baseDockerfile = `
{{- define "base" -}}
{{- if .Base }}{{ .Base | trim }}{{ else }}FROM {{ .FromImage }}{{ end }}
LABEL org.testbay.runtime={{ .Runtime | toString | quote }} org.testbay.archive={{ .WarName | quote }}
{{- end -}}`

const payaraDockerfile = `{{ template "base" . }}
CMD ["--deploy", "/opt/payara/deployments/test.war", "--noCluster", "--contextRoot", "/"]
ADD test.war /opt/payara/deployments
`

const libertyDockerfile = `{{ template "base" . }}
{{- if .Debug }}
EXPOSE 5005
{{- end }}
{{- if has "server.xml" .Files }}
ADD server.xml /config/server.xml
{{- end }}
RUN configure.sh
ADD test.war /config/apps
`

const wildflyDockerfile = `{{ template "base" . }}
ADD test.war /opt/jboss/wildfly/standalone/deployments
`

const glassfishDockerfile = `{{ template "base" . }}
ADD test.war ${DEPLOYMENT_DIR}
`

func mustTemplate(r Runtime, body string) *template.Template {
	t := template.Must(template.New(string(r)).Funcs(sprig.TxtFuncMap()).Parse(baseDockerfile))
	return template.Must(t.Parse(body))
}
