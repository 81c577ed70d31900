package ecosystems

import "testing"

func TestNormalizeDepType(t *testing.T) {
	tests := []struct {
		name    string
		depType string
		want    string
	}{
		{"runtime stays runtime", DepTypeRuntime, DepTypeRuntime},
		{"dev stays dev", DepTypeDev, DepTypeDev},
		{"peer counts as runtime", DepTypePeer, DepTypeRuntime},
		{"optional counts as runtime", DepTypeOptional, DepTypeRuntime},
		{"unknown counts as runtime", "weirdDependencies", DepTypeRuntime},
		{"empty counts as runtime", "", DepTypeRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDepType(tt.depType); got != tt.want {
				t.Errorf("NormalizeDepType(%q) = %q, want %q", tt.depType, got, tt.want)
			}
		})
	}
}
