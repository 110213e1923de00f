package cmd

import (
	"strings"
	"testing"
)

func TestNewSelfUpdateCmd(t *testing.T) {
	selfUpdateCmd := newSelfUpdateCmd()

	if selfUpdateCmd.Use != "self-update" {
		t.Errorf("Expected Use to be 'self-update', got %s", selfUpdateCmd.Use)
	}

	if selfUpdateCmd.RunE == nil {
		t.Error("Expected RunE function to be set")
	}
}

func TestSelfUpdateRejectsDevVersion(t *testing.T) {
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	for _, version := range []string{"", "dev"} {
		rootCmd.Version = version

		err := runSelfUpdate(newSelfUpdateCmd(), nil)
		if err == nil {
			t.Fatalf("expected an error for version %q", version)
		}
		if !strings.Contains(err.Error(), "development version") {
			t.Errorf("unexpected error for version %q: %v", version, err)
		}
	}
}
