package repo

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/didi/gendry/builder"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/xxxsen/mdesk/internal/config"
	"github.com/xxxsen/mdesk/internal/pkg/dbutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	StateNormal  = 1
	StateDeleted = 2
)

// DB is a connection pool bound to the sql dialect its statements are finalized for.
type DB struct {
	*sql.DB
	Driver string
}

func Open(cfg config.DatabaseConfig) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = dbutil.DriverSqlite
	}
	var (
		conn *sql.DB
		err  error
	)
	switch driver {
	case dbutil.DriverSqlite:
		conn, err = sql.Open("sqlite", sqliteDSN(cfg.Path))
	case dbutil.DriverPostgres:
		conn, err = sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{DB: conn, Driver: driver}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func ApplyMigrations(db *DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		for _, q := range strings.Split(string(content), ";") {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, err := db.Exec(q); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

func (db *DB) finalize(query string, args []interface{}) (string, []interface{}) {
	return dbutil.Finalize(db.Driver, query, args)
}

// visibleTo restricts rows to the owning user or any of the given workspaces.
func visibleTo(userCol, workspaceCol, userID string, workspaceIDs []string) builder.Comparable {
	clauses := make([]string, 0, 2)
	args := make([]interface{}, 0, len(workspaceIDs)+1)
	if userCol != "" && userID != "" {
		clauses = append(clauses, userCol+" = ?")
		args = append(args, userID)
	}
	ids := nonEmpty(workspaceIDs)
	if workspaceCol != "" && len(ids) > 0 {
		clauses = append(clauses, workspaceCol+" IN ("+placeholders(len(ids))+")")
		for _, id := range ids {
			args = append(args, id)
		}
	}
	if len(clauses) == 0 {
		return builder.Custom("1 = 0")
	}
	return builder.Custom("("+strings.Join(clauses, " OR ")+")", args...)
}

// matchAny matches rows where any column contains any term, case-insensitively.
func matchAny(columns []string, terms []string) builder.Comparable {
	clause, args := matchAnyClause(columns, terms)
	return builder.Custom(clause, args...)
}

func matchAnyClause(columns []string, terms []string) (string, []interface{}) {
	clauses := make([]string, 0, len(columns)*len(terms))
	args := make([]interface{}, 0, len(columns)*len(terms))
	for _, term := range nonEmpty(terms) {
		pattern := dbutil.LikePattern(term)
		for _, col := range columns {
			clauses = append(clauses, "LOWER("+col+") LIKE ? ESCAPE '\\'")
			args = append(args, pattern)
		}
	}
	if len(clauses) == 0 {
		return "1 = 0", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
