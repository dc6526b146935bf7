package version

import (
	"strings"
	"testing"
)

func TestInfoString(t *testing.T) {
	info := Info{Version: "v1.2.3", Commit: "0123456789abcdef", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	got := info.String()
	if !strings.HasPrefix(got, "han-bridge v1.2.3 (0123456789ab)") {
		t.Errorf("String() = %q", got)
	}
	if !strings.HasSuffix(got, "go1.24.4 linux/amd64") {
		t.Errorf("String() = %q", got)
	}
}

func TestGetInfoDefaults(t *testing.T) {
	info := GetInfo()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion == "" || info.Platform == "" {
		t.Errorf("runtime fields not populated: %+v", info)
	}
}
