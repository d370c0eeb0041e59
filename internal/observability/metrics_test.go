package observability

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("root-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordPacketReceived("root-a", "register")
	RecordPacketRelayed("peer-b", "message")
	RecordEviction("root-a", "stale")
	RecordEviction("peer-b", "flush")
	RecordReunionRoundTrip("peer-b")
	RecordReunionFailure("peer-b")
	SetRegisteredPeers("root-a", 3)
}

func TestParseLevelRecognisesAliases(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"nonsense", zerolog.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := parseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseLevel(%q) = (%v, %v), want (%v, %v)", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseBool(t *testing.T) {
	if v, ok := parseBool("true"); !ok || !v {
		t.Fatalf("parseBool(true) = (%v, %v)", v, ok)
	}
	if _, ok := parseBool(""); ok {
		t.Fatal("parseBool empty string reported ok")
	}
	if _, ok := parseBool("maybe"); ok {
		t.Fatal("parseBool(maybe) reported ok")
	}
}
