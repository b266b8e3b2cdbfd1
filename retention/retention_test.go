package retention

import (
	"testing"
	"time"
)

func TestNextRunTime(t *testing.T) {
	tests := []struct {
		name    string
		now     string
		hourUTC int
		want    string
	}{
		{"before run hour", "2026-08-24T01:30:00Z", 2, "2026-08-24T02:00:00Z"},
		{"exactly at run hour", "2026-08-24T02:00:00Z", 2, "2026-08-25T02:00:00Z"},
		{"after run hour", "2026-08-24T15:00:00Z", 2, "2026-08-25T02:00:00Z"},
		{"midnight run hour", "2026-08-24T23:59:59Z", 0, "2026-08-25T00:00:00Z"},
		{"month rollover", "2026-08-31T10:00:00Z", 2, "2026-09-01T02:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.Parse(time.RFC3339, tt.now)
			if err != nil {
				t.Fatal(err)
			}
			want, err := time.Parse(time.RFC3339, tt.want)
			if err != nil {
				t.Fatal(err)
			}
			if got := NextRunTime(now, tt.hourUTC); !got.Equal(want) {
				t.Errorf("NextRunTime(%s, %d) = %s, want %s", tt.now, tt.hourUTC, got, want)
			}
		})
	}
}
