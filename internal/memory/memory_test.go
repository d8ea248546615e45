package memory

import (
	"os"
	"testing"
)

func TestConfigureFromEnvUnset(t *testing.T) {
	os.Unsetenv("GOMEMLIMIT")
	os.Unsetenv("MEMORY_LIMIT")

	result := ConfigureFromEnv()
	if result.Configured {
		t.Error("Configured = true with no env vars set")
	}
	if result.Source != "none" {
		t.Errorf("Source = %q, want none", result.Source)
	}
}

func TestConfigureFromEnvMemoryLimit(t *testing.T) {
	os.Unsetenv("GOMEMLIMIT")
	t.Setenv("MEMORY_LIMIT", "1073741824") // 1 GiB

	result := ConfigureFromEnv()
	if !result.Configured {
		t.Fatal("Configured = false, want true")
	}
	if result.Source != "MEMORY_LIMIT" {
		t.Errorf("Source = %q, want MEMORY_LIMIT", result.Source)
	}
	if result.ContainerLimit != 1073741824 {
		t.Errorf("ContainerLimit = %d, want 1073741824", result.ContainerLimit)
	}
	limit := float64(1073741824)
	want := int64(limit * DefaultRatio)
	if result.GoMemLimit != want {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, want)
	}
}

func TestConfigureFromEnvBadValue(t *testing.T) {
	os.Unsetenv("GOMEMLIMIT")
	t.Setenv("MEMORY_LIMIT", "lots")

	result := ConfigureFromEnv()
	if result.Configured {
		t.Error("Configured = true for unparseable MEMORY_LIMIT")
	}
}

func TestConfigureFromEnvCustomRatio(t *testing.T) {
	os.Unsetenv("GOMEMLIMIT")
	t.Setenv("MEMORY_LIMIT", "1000000")
	t.Setenv("MEMORY_RATIO", "0.5")

	result := ConfigureFromEnv()
	if result.GoMemLimit != 500000 {
		t.Errorf("GoMemLimit = %d, want 500000", result.GoMemLimit)
	}
	if result.Ratio != 0.5 {
		t.Errorf("Ratio = %f, want 0.5", result.Ratio)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}

	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
