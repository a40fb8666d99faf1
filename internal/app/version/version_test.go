package version

import "testing"

func TestGetReportsLdflagValues(t *testing.T) {
	origVersion, origBuilt := buildVersion, builtAt
	t.Cleanup(func() {
		buildVersion, builtAt = origVersion, origBuilt
	})

	buildVersion = "1.2.3"
	builtAt = "2024-01-01T00:00:00Z"

	info := Get()
	if info.BuildVersion != "1.2.3" {
		t.Fatalf("BuildVersion = %q, want 1.2.3", info.BuildVersion)
	}
	if info.BuiltAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("BuiltAt = %q", info.BuiltAt)
	}
}
