package sqlstore

import (
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/JonMunkholm/mtrsplit/internal/core"
	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Dialect captures the SQL differences between the database/sql backends.
type Dialect interface {
	// Driver is the name registered with database/sql.
	Driver() string
	Quote(ident string) string
	Placeholder(n int) string
	// CreateTable returns the statements that create the table, run in order
	// inside one transaction.
	CreateTable(name string, def core.TableDef) []string
	// ExistsQuery takes the table name as its only argument and yields a count.
	ExistsQuery() string
	// IsDuplicateTable reports whether err means the table is already there.
	IsDuplicateTable(err error) bool
	// CaseSensitiveColumns reports whether quoted column names that differ
	// only by case name different columns.
	CaseSensitiveColumns() bool
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	case "duckdb":
		return DuckDB{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Postgres talks to PostgreSQL through lib/pq.
type Postgres struct{}

func (Postgres) Driver() string { return "postgres" }

func (Postgres) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d Postgres) CreateTable(name string, def core.TableDef) []string {
	id := d.Quote(def.IDColumn) + " BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	return []string{createTable(d, name, id, def.Columns, "")}
}

func (Postgres) ExistsQuery() string {
	return `SELECT count(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1`
}

func (Postgres) IsDuplicateTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P07"
}

func (Postgres) CaseSensitiveColumns() bool { return true }

// MySQL talks to MySQL and TiDB through go-sql-driver/mysql.
type MySQL struct{}

// erTableExists is MySQL's ER_TABLE_EXISTS_ERROR.
const erTableExists = 1050

func (MySQL) Driver() string { return "mysql" }

func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }

func (d MySQL) CreateTable(name string, def core.TableDef) []string {
	id := d.Quote(def.IDColumn) + " BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	return []string{createTable(d, name, id, def.Columns, " DEFAULT CHARSET=utf8mb4")}
}

func (MySQL) ExistsQuery() string {
	return `SELECT count(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`
}

func (MySQL) IsDuplicateTable(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erTableExists
}

func (MySQL) CaseSensitiveColumns() bool { return false }

// DuckDB talks to an embedded DuckDB file (or memory, with an empty path).
type DuckDB struct{}

func (DuckDB) Driver() string { return "duckdb" }

func (DuckDB) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (DuckDB) Placeholder(int) string { return "?" }

// CreateTable backs the identity column with a sequence, since DuckDB has
// no IDENTITY clause.
func (d DuckDB) CreateTable(name string, def core.TableDef) []string {
	seq := sequenceName(name)
	id := fmt.Sprintf("%s BIGINT PRIMARY KEY DEFAULT nextval('%s')", d.Quote(def.IDColumn), seq)
	return []string{
		"CREATE SEQUENCE IF NOT EXISTS " + seq,
		createTable(d, name, id, def.Columns, ""),
	}
}

// DuckDB matches identifiers case-insensitively, quoted or not.
func (DuckDB) ExistsQuery() string {
	return `SELECT count(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND lower(table_name) = lower(?)`
}

func (DuckDB) IsDuplicateTable(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func (DuckDB) CaseSensitiveColumns() bool { return false }

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// sequenceName derives a bare identifier for the table's ID sequence. The
// readable part keeps only ASCII, so a hash of the lowercased name keeps
// tables such as "Заполненные" and "Пустые" on separate sequences.
func sequenceName(table string) string {
	lower := strings.ToLower(table)
	h := fnv.New32a()
	h.Write([]byte(lower))

	readable := strings.Trim(nonIdent.ReplaceAllString(lower, "_"), "_")
	if readable == "" {
		return fmt.Sprintf("seq_%08x_id", h.Sum32())
	}
	return fmt.Sprintf("seq_%s_%08x_id", readable, h.Sum32())
}

func createTable(d Dialect, name, idColumn string, columns []string, suffix string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(d.Quote(name))
	b.WriteString(" (\n\t")
	b.WriteString(idColumn)
	for _, col := range columns {
		b.WriteString(",\n\t")
		b.WriteString(d.Quote(col))
		b.WriteString(" TEXT")
	}
	b.WriteString("\n)")
	b.WriteString(suffix)
	return b.String()
}

func insertSQL(d Dialect, table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.Quote(col)
		placeholders[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
}
