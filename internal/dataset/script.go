package dataset

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gorm.io/gorm"
)

// LoadScript reads a SQL script and splits it into statements.
func LoadScript(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return SplitScript(string(data)), nil
}

// SplitScript splits a SQL script on semicolons. Semicolons inside quoted
// strings, quoted identifiers and comments do not end a statement. Comments
// are dropped, empty statements are skipped.
func SplitScript(script string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			statements = append(statements, s)
		}
		current.Reset()
	}

	n := len(script)
	for i := 0; i < n; i++ {
		ch := script[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			// Copy the quoted section verbatim; doubled quotes are escapes.
			j := i + 1
			for j < n {
				if script[j] == ch {
					if j+1 < n && script[j+1] == ch {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= n {
				j = n - 1
			}
			current.WriteString(script[i : j+1])
			i = j
		case ch == '-' && i+1 < n && script[i+1] == '-':
			for i < n && script[i] != '\n' {
				i++
			}
			current.WriteByte('\n')
		case ch == '/' && i+1 < n && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = n
			} else {
				i += end + 3
			}
			current.WriteByte(' ')
		case ch == ';':
			flush()
		default:
			current.WriteByte(ch)
		}
	}
	flush()
	return statements
}

// ExecScript executes statements in order and stops at the first failure.
func ExecScript(ctx context.Context, db *gorm.DB, statements []string) error {
	conn := db.WithContext(ctx)
	for i, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("statement %d (%s): %w", i+1, abbreviate(stmt), err)
		}
	}
	return nil
}

func abbreviate(stmt string) string {
	stmt = strings.Join(strings.Fields(stmt), " ")
	if len(stmt) > 60 {
		return stmt[:60] + "..."
	}
	return stmt
}
