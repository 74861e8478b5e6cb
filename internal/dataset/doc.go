// Package dataset loads test data into a database and removes it again.
//
// Datasets are YAML documents mapping table names to rows. CleanInsert
// replaces the content of the listed tables with the dataset rows; DeleteAll
// empties them. Both run in a single transaction.
//
// SplitScript and ExecScript run plain SQL scripts such as the schema
// created before the first test.
package dataset
