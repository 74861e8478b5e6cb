// Package stub runs a WireMock server next to the application so tests can
// fake the remote services it calls.
//
//	wm := stub.New(stub.Options{Name: "payments", EnvName: "PAYMENTS_URL"})
//	env := itest.Setup(t, ctrl, app, wm.Spec())
//
//	id, err := wm.Configure(ctx, stub.NewMapping("/charge").
//		WithMethod(http.MethodPost).
//		WithJSONBody(map[string]string{"status": "ok"}))
//
// Mappings and the request journal are reset before and after every test.
package stub
