package tradelog

import (
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordRequestThenResponseRoundTrips(t *testing.T) {
	l := openTestLog(t)

	if err := l.RecordRequest("corr-1", "acc-1", "ORDER_TYPE_BUY", `{"symbol":"EURUSD"}`, "2026-07-30T00:00:00Z"); err != nil {
		t.Fatalf("RecordRequest failed: %v", err)
	}
	if err := l.RecordResponse("corr-1", 0, "TRADE_RETCODE_DONE", "ok", "42", "", "2026-07-30T00:00:01Z"); err != nil {
		t.Fatalf("RecordResponse failed: %v", err)
	}

	var accountID, actionType string
	if err := l.db.QueryRow("SELECT account_id, action_type FROM trade_requests WHERE correlation_id = ?", "corr-1").
		Scan(&accountID, &actionType); err != nil {
		t.Fatalf("failed to read back request row: %v", err)
	}
	if accountID != "acc-1" || actionType != "ORDER_TYPE_BUY" {
		t.Errorf("unexpected request row: accountID=%q actionType=%q", accountID, actionType)
	}

	var orderID, positionID *string
	if err := l.db.QueryRow("SELECT order_id, position_id FROM trade_responses WHERE correlation_id = ?", "corr-1").
		Scan(&orderID, &positionID); err != nil {
		t.Fatalf("failed to read back response row: %v", err)
	}
	if orderID == nil || *orderID != "42" {
		t.Errorf("expected order_id '42', got %v", orderID)
	}
	if positionID != nil {
		t.Errorf("expected position_id to be stored as NULL for an empty string, got %v", *positionID)
	}
}

func TestRecordRequestRejectsDuplicateCorrelationID(t *testing.T) {
	l := openTestLog(t)

	if err := l.RecordRequest("corr-dup", "acc-1", "ORDER_TYPE_BUY", "{}", "2026-07-30T00:00:00Z"); err != nil {
		t.Fatalf("first RecordRequest failed: %v", err)
	}
	if err := l.RecordRequest("corr-dup", "acc-1", "ORDER_TYPE_BUY", "{}", "2026-07-30T00:00:01Z"); err == nil {
		t.Fatal("expected a primary key violation on duplicate correlation id")
	}
}
