// Package orchestrator starts and stops the containers of an integration test
// environment.
//
// A Controller turns a list of ContainerSpecs into a Run:
//
//	ctrl, _ := orchestrator.New(orchestrator.Config{Runtime: rt})
//	run, err := ctrl.Configure(specs)
//	err = ctrl.Start(ctx, run)
//	defer ctrl.Stop(ctx, run)
//	h, err := ctrl.InjectHandles(run)
//
// # Startup
//
// Containers marked StartSequential start first, one at a time in
// declaration order; the first failure aborts Start. The remaining containers
// start concurrently, one goroutine each. Start waits for all of them,
// bounded by the startup timeout (one minute by default), and fails with
// StartupError when any task failed or StartupTimeoutError when the bound
// expired. Tasks are not cancelled in either case.
//
// Each task starts its container, waits for the readiness probe and then
// calls the component's Initializer (e.g. to load a database schema).
//
// # Per-test state
//
// RefreshPerTestState and ClearPerTestState call the StateManager of every
// component, before and after each test.
//
// # Teardown
//
// Stop walks the startup phases backwards, closes components, stops
// containers and removes the network. Failures do not interrupt the
// teardown; they are returned together as an AggregatedStopError.
package orchestrator
