package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncrementFrame(t *testing.T) {
	Init()

	before := testutil.ToFloat64(framesTotal.WithLabelValues("kline_update"))
	IncrementFrame("kline_update")
	after := testutil.ToFloat64(framesTotal.WithLabelValues("kline_update"))
	if after != before+1 {
		t.Fatalf("frame counter not incremented: %f -> %f", before, after)
	}
}

func TestIncrementReconnectAndParseError(t *testing.T) {
	Init()

	before := testutil.ToFloat64(reconnects)
	IncrementReconnect()
	if got := testutil.ToFloat64(reconnects); got != before+1 {
		t.Fatalf("reconnect counter not incremented: %f -> %f", before, got)
	}

	before = testutil.ToFloat64(parseErrors)
	IncrementParseError()
	if got := testutil.ToFloat64(parseErrors); got != before+1 {
		t.Fatalf("parse error counter not incremented: %f -> %f", before, got)
	}
}

func TestIncrementAlertByGroupedLabel(t *testing.T) {
	Init()

	before := testutil.ToFloat64(alertsRouted.WithLabelValues("false"))
	IncrementAlert(false)
	if got := testutil.ToFloat64(alertsRouted.WithLabelValues("false")); got != before+1 {
		t.Fatalf("ungrouped alert counter not incremented: %f -> %f", before, got)
	}

	before = testutil.ToFloat64(alertsRouted.WithLabelValues("true"))
	IncrementAlert(true)
	if got := testutil.ToFloat64(alertsRouted.WithLabelValues("true")); got != before+1 {
		t.Fatalf("grouped alert counter not incremented: %f -> %f", before, got)
	}
}
