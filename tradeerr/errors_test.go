package tradeerr

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestTransportErrorUnwrapsAndMatchesWithErrorsAs(t *testing.T) {
	inner := io.ErrUnexpectedEOF
	err := error(&TransportError{Op: "dial", Err: inner})

	var target *TransportError
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to match *TransportError")
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected Unwrap to expose the wrapped error to errors.Is")
	}
}

func TestInternalErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := error(&InternalError{Err: inner})
	if !errors.Is(err, inner) {
		t.Fatal("expected InternalError to unwrap to its inner error")
	}
}

func TestTradeErrorMessageCarriesBothCodes(t *testing.T) {
	err := &TradeError{NumericCode: 10019, StringCode: "TRADE_RETCODE_NO_MONEY", Message: "not enough money"}
	msg := err.Error()
	if !strings.Contains(msg, "TRADE_RETCODE_NO_MONEY") || !strings.Contains(msg, "10019") {
		t.Fatalf("expected message to carry both codes, got %q", msg)
	}
}
