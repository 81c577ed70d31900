package crates

import (
	"testing"

	"github.com/matzehuels/usedby/pkg/ecosystems"
)

func TestIsDependency(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		pkg      string
		found    bool
		version  string
		depType  string
	}{
		{
			name:     "simple version string",
			manifest: "[dependencies]\nserde = \"1.0\"\n",
			pkg:      "serde",
			found:    true,
			version:  "1.0",
			depType:  ecosystems.DepTypeRuntime,
		},
		{
			name:     "table entry with version",
			manifest: "[dependencies]\nserde = { version = \"1.0\", features = [\"derive\"] }\n",
			pkg:      "serde",
			found:    true,
			version:  "1.0",
			depType:  ecosystems.DepTypeRuntime,
		},
		{
			name:     "dotted key form",
			manifest: "[dependencies.serde]\nversion = \"1.0\"\nfeatures = [\"derive\"]\n",
			pkg:      "serde",
			found:    true,
			version:  "1.0",
			depType:  ecosystems.DepTypeRuntime,
		},
		{
			name:     "serde does not match serde_json",
			manifest: "[dependencies]\nserde_json = \"1.0\"\n",
			pkg:      "serde",
			found:    false,
		},
		{
			name:     "dev dependency",
			manifest: "[dev-dependencies]\ncriterion = \"0.5\"\n",
			pkg:      "criterion",
			found:    true,
			version:  "0.5",
			depType:  ecosystems.DepTypeDev,
		},
		{
			name:     "build dependency counts as runtime",
			manifest: "[build-dependencies]\ncc = \"1.0\"\n",
			pkg:      "cc",
			found:    true,
			version:  "1.0",
			depType:  ecosystems.DepTypeRuntime,
		},
		{
			name:     "git entry without version",
			manifest: "[dependencies]\nserde = { git = \"https://github.com/serde-rs/serde\" }\n",
			pkg:      "serde",
			found:    true,
			version:  "",
			depType:  ecosystems.DepTypeRuntime,
		},
		{
			name:     "unparseable manifest",
			manifest: "[dependencies\nserde = \"1.0\"",
			pkg:      "serde",
			found:    false,
		},
	}

	s := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.IsDependency(tt.manifest, tt.pkg)
			if got.Found != tt.found {
				t.Fatalf("Found = %v, want %v", got.Found, tt.found)
			}
			if !tt.found {
				return
			}
			if got.Version != tt.version {
				t.Errorf("Version = %q, want %q", got.Version, tt.version)
			}
			if got.DepType != tt.depType {
				t.Errorf("DepType = %q, want %q", got.DepType, tt.depType)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	s := New()
	got := s.BuildSearchQuery("serde")
	want := `"serde" filename:Cargo.toml`
	if got != want {
		t.Errorf("BuildSearchQuery = %q, want %q", got, want)
	}
}
