package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTruncateStr(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := TruncateStr(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("TruncateStr(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestPadStr(t *testing.T) {
	if got := PadStr("ab", 5); got != "ab   " {
		t.Errorf("PadStr() = %q", got)
	}
	if got := PadStr("abcdef", 3); got != "abcdef" {
		t.Errorf("PadStr() should not truncate, got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{65 * time.Second, "1m5s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	t.Setenv("XDG_DATA_HOME", "")

	if got := ExpandPath("~/foo/bar"); got != filepath.Join(home, "foo", "bar") {
		t.Errorf("ExpandPath() = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath() should leave absolute paths alone, got %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "/xdg")
	if got := ExpandPath("~/.han/history.db"); got != "/xdg/han/history.db" {
		t.Errorf("ExpandPath() with XDG_DATA_HOME = %q", got)
	}
}

func TestProjectSlug(t *testing.T) {
	if got := ProjectSlug("/Users/me/my.project"); got != "-Users-me-my-project" {
		t.Errorf("ProjectSlug() = %q", got)
	}
}
