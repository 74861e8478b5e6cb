package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Kind names a supported database.
type Kind string

const (
	Postgres Kind = "postgres"
	MySQL    Kind = "mysql"
	MariaDB  Kind = "mariadb"
)

// Definition describes how to run and reach one kind of database.
type Definition struct {
	Kind  Kind
	Image string
	Port  string

	// ReadyPattern and ReadyOccurrence make the log probe. Several images
	// start a temporary server first, hence the occurrence count.
	ReadyPattern    string
	ReadyOccurrence int

	// JDBCTemplate formats the in-network URL from alias and port.
	JDBCTemplate string

	env       func(user, password string) map[string]string
	dialector func(host, port, user, password string) gorm.Dialector
}

var definitions = map[Kind]Definition{
	Postgres: {
		Kind:            Postgres,
		Image:           "postgres:9.6.12",
		Port:            "5432",
		ReadyPattern:    ".*database system is ready to accept connections.*",
		ReadyOccurrence: 2,
		JDBCTemplate:    "jdbc:postgresql://%s:%s/test",
		env: func(user, password string) map[string]string {
			return map[string]string{
				"POSTGRES_DB":       "test",
				"POSTGRES_USER":     user,
				"POSTGRES_PASSWORD": password,
			}
		},
		dialector: func(host, port, user, password string) gorm.Dialector {
			return postgres.Open(fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=test sslmode=disable", host, port, user, password))
		},
	},
	MySQL: {
		Kind:            MySQL,
		Image:           "mysql:5.7.34",
		Port:            "3306",
		ReadyPattern:    ".*port: 3306\\s+MySQL Community Server.*",
		ReadyOccurrence: 1,
		JDBCTemplate:    "jdbc:mysql://%s:%s/test?useSSL=false",
		env:             mysqlEnv,
		dialector:       mysqlDialector,
	},
	MariaDB: {
		Kind:            MariaDB,
		Image:           "mariadb:10.3.6",
		Port:            "3306",
		ReadyPattern:    ".*ready for connections.*",
		ReadyOccurrence: 2,
		JDBCTemplate:    "jdbc:mariadb://%s:%s/test",
		env:             mysqlEnv,
		dialector:       mysqlDialector,
	},
}

func mysqlEnv(user, password string) map[string]string {
	env := map[string]string{
		"MYSQL_DATABASE":      "test",
		"MYSQL_ROOT_PASSWORD": password,
	}
	// The images refuse MYSQL_USER=root; root is configured through the root password.
	if user != "root" {
		env["MYSQL_USER"] = user
		env["MYSQL_PASSWORD"] = password
	}
	return env
}

func mysqlDialector(host, port, user, password string) gorm.Dialector {
	return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/test?parseTime=true", user, password, host, port))
}

// Lookup returns the definition of a supported database.
func Lookup(kind string) (Definition, error) {
	def, ok := definitions[Kind(strings.ToLower(strings.TrimSpace(kind)))]
	if !ok {
		return Definition{}, fmt.Errorf("unsupported database %q (supported: %s)", kind, strings.Join(SupportedKinds(), ", "))
	}
	return def, nil
}

// SupportedKinds lists the supported database kinds.
func SupportedKinds() []string {
	return []string{string(MariaDB), string(MySQL), string(Postgres)}
}

// ImageFor resolves the image to run. A value containing "/" or ":" is a
// complete image reference, any other non-empty value is a tag of the
// default image.
func (d Definition) ImageFor(override string) string {
	override = strings.TrimSpace(override)
	switch {
	case override == "":
		return d.Image
	case strings.ContainsAny(override, "/:"):
		return override
	default:
		repo := d.Image
		if i := strings.LastIndex(repo, ":"); i >= 0 {
			repo = repo[:i]
		}
		return repo + ":" + override
	}
}

// JDBCURL returns the URL under which the application reaches the database
// inside the environment network.
func (d Definition) JDBCURL(alias string) string {
	return fmt.Sprintf(d.JDBCTemplate, alias, d.Port)
}
