package dataset

import (
	"context"
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Row is one record, column name to value.
type Row map[string]any

// Table is a named list of rows.
type Table struct {
	Name string
	Rows []Row
}

// Dataset is an ordered set of tables. Inserts follow the declaration order,
// deletes run in reverse so that foreign keys pointing at earlier tables hold.
type Dataset struct {
	Tables []Table
}

// TableNames returns the table names in declaration order.
func (d *Dataset) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Load reads a dataset file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return ds, nil
}

// Parse reads a dataset document. The top level is a mapping from table name
// to a list of rows; an empty value declares a table that is only cleared:
//
//	person:
//	  - id: 1
//	    name: Alice
//	audit_log:
func Parse(data []byte) (*Dataset, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	ds := &Dataset{}
	if len(root.Content) == 0 {
		return ds, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("dataset must be a mapping of table names to rows (line %d)", doc.Line)
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i], doc.Content[i+1]
		if key.Value == "" {
			return nil, fmt.Errorf("empty table name (line %d)", key.Line)
		}
		if seen[key.Value] {
			return nil, fmt.Errorf("table %s declared twice (line %d)", key.Value, key.Line)
		}
		seen[key.Value] = true

		var rows []Row
		if err := value.Decode(&rows); err != nil {
			return nil, fmt.Errorf("table %s (line %d): %w", key.Value, key.Line, err)
		}
		ds.Tables = append(ds.Tables, Table{Name: key.Value, Rows: rows})
	}
	return ds, nil
}

// CleanInsert empties every table of the dataset and inserts its rows, in one
// transaction.
func CleanInsert(ctx context.Context, db *gorm.DB, ds *Dataset) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteAll(tx, ds); err != nil {
			return err
		}
		for _, t := range ds.Tables {
			for i, row := range t.Rows {
				// gorm writes the generated key back into the map it is given.
				if err := tx.Table(t.Name).Create(maps.Clone(map[string]any(row))).Error; err != nil {
					return fmt.Errorf("insert row %d into %s: %w", i+1, t.Name, err)
				}
			}
		}
		return nil
	})
}

// DeleteAll empties every table of the dataset, in one transaction. Tables
// are left in place.
func DeleteAll(ctx context.Context, db *gorm.DB, ds *Dataset) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteAll(tx, ds)
	})
}

func deleteAll(tx *gorm.DB, ds *Dataset) error {
	for i := len(ds.Tables) - 1; i >= 0; i-- {
		name := ds.Tables[i].Name
		if err := tx.Exec("DELETE FROM " + tx.Statement.Quote(name)).Error; err != nil {
			return fmt.Errorf("delete from %s: %w", name, err)
		}
	}
	return nil
}
