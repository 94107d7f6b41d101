// Package tradelog persists an audit trail of outbound trade RPCs and
// their results to SQLite. It plays the same non-authoritative,
// side-channel role the teacher's market-data log played for incoming
// ticks: the terminal-state replica itself stays purely in-memory,
// and this log exists so a trade's request/response pair can be
// inspected after the fact.
package tradelog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_requests (
	correlation_id TEXT PRIMARY KEY,
	account_id     TEXT NOT NULL,
	action_type    TEXT NOT NULL,
	params_json    TEXT NOT NULL,
	requested_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trade_responses (
	correlation_id TEXT PRIMARY KEY,
	numeric_code   INTEGER NOT NULL,
	string_code    TEXT NOT NULL,
	message        TEXT NOT NULL,
	order_id       TEXT,
	position_id    TEXT,
	responded_at   TEXT NOT NULL
);
`

const insertRequestQuery = `INSERT INTO trade_requests
	(correlation_id, account_id, action_type, params_json, requested_at)
	VALUES (?, ?, ?, ?, ?)`

const insertResponseQuery = `INSERT INTO trade_responses
	(correlation_id, numeric_code, string_code, message, order_id, position_id, responded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// Log provides SQLite-backed storage for the trade RPCs a facade
// issues. Prepared statements are initialized once and reused for
// every insert, avoiding SQL parsing overhead on the trading hot path.
type Log struct {
	db *sql.DB

	stmtRequest  *sql.Stmt
	stmtResponse *sql.Stmt
}

// Open creates or attaches to the SQLite database at dbPath, in WAL
// mode so a concurrent reader never blocks a writer.
func Open(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("tradelog: open database: %w", err)
	}

	l := &Log{db: db}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tradelog: init schema: %w", err)
	}

	if l.stmtRequest, err = db.Prepare(insertRequestQuery); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tradelog: prepare request statement: %w", err)
	}
	if l.stmtResponse, err = db.Prepare(insertResponseQuery); err != nil {
		_ = l.stmtRequest.Close()
		_ = db.Close()
		return nil, fmt.Errorf("tradelog: prepare response statement: %w", err)
	}

	return l, nil
}

// Close releases the prepared statements and the underlying database
// handle.
func (l *Log) Close() error {
	if l.stmtRequest != nil {
		_ = l.stmtRequest.Close()
	}
	if l.stmtResponse != nil {
		_ = l.stmtResponse.Close()
	}
	return l.db.Close()
}

// RecordRequest appends one outbound trade request, keyed by its RPC
// correlation ID.
func (l *Log) RecordRequest(correlationID, accountID, actionType, paramsJSON, requestedAt string) error {
	_, err := l.stmtRequest.Exec(correlationID, accountID, actionType, paramsJSON, requestedAt)
	if err != nil {
		return fmt.Errorf("tradelog: record request: %w", err)
	}
	return nil
}

// RecordResponse appends the result for a previously recorded
// correlation ID.
func (l *Log) RecordResponse(correlationID string, numericCode int, stringCode, message, orderID, positionID, respondedAt string) error {
	_, err := l.stmtResponse.Exec(correlationID, numericCode, stringCode, message, nullable(orderID), nullable(positionID), respondedAt)
	if err != nil {
		return fmt.Errorf("tradelog: record response: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
