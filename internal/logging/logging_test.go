package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewHonorsLevel(t *testing.T) {
	t.Parallel()

	logger := New("error", "json")
	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelWarn) {
		t.Fatalf("warn records must be suppressed at error level")
	}
	if !logger.Enabled(ctx, slog.LevelError) {
		t.Fatalf("error records must pass at error level")
	}
}

func TestForComponentTagsRecords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ForComponent(base, "portal").Info("listo")
	if out := buf.String(); !strings.Contains(out, "component=portal") {
		t.Fatalf("component attribute missing from record: %q", out)
	}
}
