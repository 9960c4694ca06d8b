package router

import (
	"database/sql"
	"net"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fleetdb/branchmigrate"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/microsoft/go-mssqldb"
)

// Default server ports used when the descriptor leaves the port unset.
const (
	defaultPostgresPort  = 5432
	defaultMySQLPort     = 3306
	defaultSQLServerPort = 1433
)

// buildSQLite opens the embedded database file derived from the data root and
// the database name. Credentials on the descriptor are ignored.
func (r *Router) buildSQLite(branch branchmigrate.Branch) (*sql.DB, error) {
	desc := branch.Descriptor
	path := filepath.Join(r.dataRoot, desc.Database+".db")

	dsn := path
	if len(desc.Params) > 0 {
		values := url.Values{}
		for k, v := range desc.Params {
			values.Set(k, v)
		}
		dsn = "file:" + path + "?" + values.Encode()
	}
	return sql.Open("sqlite3", dsn)
}

// buildPostgres assembles a keyword/value DSN for lib/pq. Without credentials
// the connection falls back to the server's trust/ident authentication.
func buildPostgres(branch branchmigrate.Branch) (*sql.DB, error) {
	desc := branch.Descriptor
	port := desc.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	parts := []string{
		"host=" + desc.Host,
		"port=" + strconv.Itoa(port),
		"dbname=" + desc.Database,
	}
	if desc.Username != "" {
		parts = append(parts, "user="+desc.Username)
		if desc.Password != "" {
			parts = append(parts, "password="+desc.Password)
		}
	}
	if desc.SSLMode != "" {
		parts = append(parts, "sslmode="+desc.SSLMode)
	}
	for _, key := range sortedKeys(desc.Params) {
		parts = append(parts, key+"="+desc.Params[key])
	}

	return sql.Open("postgres", strings.Join(parts, " "))
}

// buildMySQL assembles a DSN through the driver's own config type so special
// characters in credentials survive formatting.
func buildMySQL(branch branchmigrate.Branch) (*sql.DB, error) {
	desc := branch.Descriptor
	port := desc.Port
	if port == 0 {
		port = defaultMySQLPort
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(desc.Host, strconv.Itoa(port))
	cfg.DBName = desc.Database
	cfg.User = desc.Username
	cfg.Passwd = desc.Password
	cfg.ParseTime = true

	switch desc.SSLMode {
	case "", "disable":
		cfg.TLSConfig = "false"
	case "skip-verify":
		cfg.TLSConfig = "skip-verify"
	default:
		cfg.TLSConfig = "true"
	}

	if len(desc.Params) > 0 {
		cfg.Params = make(map[string]string, len(desc.Params))
		for k, v := range desc.Params {
			cfg.Params[k] = v
		}
	}

	return sql.Open("mysql", cfg.FormatDSN())
}

// buildSQLServer assembles a sqlserver:// URL. Without credentials the DSN
// requests integrated authentication.
func buildSQLServer(branch branchmigrate.Branch) (*sql.DB, error) {
	desc := branch.Descriptor
	port := desc.Port
	if port == 0 {
		port = defaultSQLServerPort
	}

	query := url.Values{}
	query.Set("database", desc.Database)
	switch desc.SSLMode {
	case "", "disable":
		query.Set("encrypt", "disable")
	case "skip-verify":
		query.Set("encrypt", "true")
		query.Set("trustservercertificate", "true")
	default:
		query.Set("encrypt", "true")
	}
	for _, key := range sortedKeys(desc.Params) {
		query.Set(key, desc.Params[key])
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		Host:     net.JoinHostPort(desc.Host, strconv.Itoa(port)),
		RawQuery: query.Encode(),
	}
	if desc.Username != "" {
		u.User = url.UserPassword(desc.Username, desc.Password)
	} else {
		query.Set("trusted_connection", "yes")
		u.RawQuery = query.Encode()
	}

	return sql.Open("sqlserver", u.String())
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
