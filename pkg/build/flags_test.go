// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    BuildInfo
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = info

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	info = origInfo

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantName    string
		wantVersion string
	}{
		{
			"Unstamped build keeps defaults",
			"", "", "", "",
			"audiograph", "dev",
		},
		{
			"Stamped build overrides defaults",
			"testapp", "2025-04-13", "abcdef123", "v1.0.0",
			"testapp", "v1.0.0",
		},
		{
			"Partial stamp overrides only stamped fields",
			"", "", "", "v2.1.0",
			"audiograph", "v2.1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info = origInfo
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			Initialize()

			got := Info()
			if got.Name != tt.wantName {
				t.Errorf("Info().Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Version != tt.wantVersion {
				t.Errorf("Info().Version = %q, want %q", got.Version, tt.wantVersion)
			}
		})
	}
}

func TestInfoStable(t *testing.T) {
	info = origInfo
	if Info() != Info() {
		t.Error("Info() should return the same instance")
	}
	if Info().Description == "" {
		t.Error("Info().Description should not be empty")
	}
}
