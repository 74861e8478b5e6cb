// Package restclient provides the JSON client handed to integration tests for
// calling the application under test.
//
//	client, err := restclient.New("http://localhost:32768/test")
//	var hello Greeting
//	err = client.Get(ctx, "/api/hello", &hello)
//
// Responses outside the 2xx range come back as *StatusError; IsNotFound and
// IsServerError classify them.
package restclient
