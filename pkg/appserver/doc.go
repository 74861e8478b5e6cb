// Package appserver turns a web archive into the application container of a
// test environment.
//
// Each supported server (Payara Micro, Open Liberty, WildFly, GlassFish) is a
// Strategy: base image, HTTP port, readiness probe, context root and a
// Dockerfile template. Spec assembles a temporary build context with the
// archive copied as test.war and hands it to the container runtime:
//
//	app, err := appserver.New(appserver.Options{Runtime: "wildfly"})
//	spec, err := app.Spec()
//
// Debug mode pins the JDWP port 5005 on the host and suspends the JVM until a
// debugger attaches.
package appserver
