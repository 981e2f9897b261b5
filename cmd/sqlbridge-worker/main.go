// Command sqlbridge-worker is the reference worker process. It owns the
// actual database connection and speaks the bridge protocol: one JSON
// request per stdin line, one JSON reply per stdout line, with the literal
// handshake line emitted only once the database is reachable. Anything on
// stderr is treated by the bridge as a channel fault, so stderr is reserved
// for genuine faults.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mattjoyce/sqlbridge/internal/protocol"
)

const maxRequestLine = 8 * 1024 * 1024

func main() {
	os.Exit(run())
}

func run() int {
	db, err := openDatabase()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		return 1
	}
	defer db.Close()

	// Only now is the session usable.
	fmt.Println(protocol.Handshake)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		req, err := protocol.DecodeRequest(line)
		if err != nil {
			// Undecodable input means the stream lost framing; there is no
			// msgId to reply to.
			fmt.Fprintf(os.Stderr, "bad request line: %v\n", err)
			continue
		}

		reply := execute(db, req)
		if err := protocol.EncodeReply(os.Stdout, reply); err != nil {
			fmt.Fprintf(os.Stderr, "encode reply %d: %v\n", req.MsgID, err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "stdin read: %v\n", err)
		return 1
	}

	// stdin EOF: the bridge closed the pipe, shut down quietly.
	return 0
}

// openDatabase opens and pings the database named by the SQLBRIDGE_DB_*
// environment, which the bridge sets from its own configuration.
func openDatabase() (*sql.DB, error) {
	driver := getenvDefault("SQLBRIDGE_DB_DRIVER", "sqlite")

	var driverName, dsn string
	switch driver {
	case "sqlite", "sqlite3":
		driverName = "sqlite"
		dsn = os.Getenv("SQLBRIDGE_DB_NAME")
		if dsn == "" {
			return nil, fmt.Errorf("SQLBRIDGE_DB_NAME is required for sqlite")
		}
	case "postgres", "pgx":
		driverName = "pgx"
		dsn = postgresDSN()
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return db, nil
}

func postgresDSN() string {
	host := getenvDefault("SQLBRIDGE_DB_HOST", "localhost")
	port := os.Getenv("SQLBRIDGE_DB_PORT")
	if port == "" || port == "0" {
		port = "5432"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + os.Getenv("SQLBRIDGE_DB_NAME"),
	}
	if user := os.Getenv("SQLBRIDGE_DB_USER"); user != "" {
		if pass := os.Getenv("SQLBRIDGE_DB_PASSWORD"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// execute runs one request and always produces a reply carrying the
// request's msgId. Statements are split on semicolons and run in order; the
// reply carries one result-set object per statement. The first statement
// error fails the whole request.
func execute(db *sql.DB, req *protocol.QueryRequest) *protocol.QueryReply {
	reply := &protocol.QueryReply{
		MsgID:       req.MsgID,
		WorkerStart: time.Now().UnixMilli(),
	}

	results := make([]protocol.ResultSet, 0, 1)
	var execErr error
	for _, stmt := range splitStatements(req.SQL) {
		rs, err := runStatement(db, stmt)
		if err != nil {
			execErr = err
			break
		}
		results = append(results, rs)
	}

	reply.WorkerEnd = time.Now().UnixMilli()

	if execErr != nil {
		reply.Error = execErr.Error()
		return reply
	}

	data, err := json.Marshal(results)
	if err != nil {
		reply.Error = fmt.Sprintf("encode results: %v", err)
		return reply
	}
	reply.Result = data
	return reply
}

func runStatement(db *sql.DB, stmt string) (protocol.ResultSet, error) {
	if isRowReturning(stmt) {
		return queryRows(db, stmt)
	}

	res, err := db.Exec(stmt)
	if err != nil {
		return protocol.ResultSet{}, err
	}
	// Not every driver reports affected rows for every statement.
	affected, _ := res.RowsAffected()
	return protocol.ResultSet{RowsAffected: affected}, nil
}

func isRowReturning(stmt string) bool {
	fields := strings.Fields(strings.ToLower(stmt))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "select", "with", "show", "pragma", "explain", "values":
		return true
	}
	return false
}

func queryRows(db *sql.DB, stmt string) (protocol.ResultSet, error) {
	rows, err := db.Query(stmt)
	if err != nil {
		return protocol.ResultSet{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return protocol.ResultSet{}, err
	}

	rs := protocol.ResultSet{Columns: cols, Rows: make([][]any, 0, 16)}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return protocol.ResultSet{}, err
		}
		// Text columns scan as []byte; keep JSON output readable.
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return protocol.ResultSet{}, err
	}

	return rs, nil
}

// splitStatements splits a batch on semicolons outside single-quoted
// literals. Empty fragments are dropped.
func splitStatements(sqlText string) []string {
	var stmts []string
	var b strings.Builder
	inString := false

	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == ';' && !inString:
			if s := strings.TrimSpace(b.String()); s != "" {
				stmts = append(stmts, s)
			}
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
