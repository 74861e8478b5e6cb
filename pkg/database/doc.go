// Package database provides the SQL database companion of a test environment.
//
// A Database is both the source of its ContainerSpec and the component the
// orchestrator calls back into:
//
//	db, _ := database.New(database.Options{Kind: database.Postgres})
//	specs := []orchestrator.ContainerSpec{app, db.Spec()}
//
// Once the container is ready, the schema script (testdata/create-tables.sql)
// is executed and the dataset (testdata/data.yaml) is read. Before every test
// the dataset tables are refilled, after every test they are emptied. The
// application finds the database through the ds_url, ds_username and
// ds_password environment variables.
package database
