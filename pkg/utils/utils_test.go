package utils

import "testing"

func TestFormatRoundedUnit(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{-42, "42s"},
		{59, "59s"},
		{60, "1m"},
		{3599, "59m"},
		{3600, "1h"},
		{7300, "2h"},
		{86400, "1d"},
		{200000, "2d"},
	}

	for _, tt := range tests {
		if got := FormatRoundedUnit(tt.seconds); got != tt.want {
			t.Errorf("FormatRoundedUnit(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatLatency(t *testing.T) {
	if got := FormatLatency(250); got != "250ms" {
		t.Errorf("FormatLatency(250) = %q", got)
	}
	if got := FormatLatency(1500); got != "1.5s" {
		t.Errorf("FormatLatency(1500) = %q", got)
	}
	if got := FormatLatency(-1); got != "0ms" {
		t.Errorf("FormatLatency(-1) = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate kept = %q", got)
	}
	if got := Truncate("a very long window title", 10); got != "a very ..." {
		t.Errorf("Truncate cut = %q", got)
	}
	if got := Truncate("héllo wörld", 8); got != "héllo..." {
		t.Errorf("Truncate runes = %q", got)
	}
}
