// Package logging provides the structured logging facade used throughout
// testbay.
//
// It is a thin layer over log/slog. Every entry carries a subsystem tag so the
// output of the orchestrator, the container runtime and the individual
// containers can be told apart:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Orchestrator", "starting %d containers", n)
//	logging.Error("Database", err, "dataset load failed")
//
// Until InitForCLI or InitJSON is called, warnings and errors are written to
// stderr. Printer and LineLogger adapt the facade to the container library's
// logger and to followed container output respectively.
package logging
