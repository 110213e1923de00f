package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tpf/internal/model"
	"tpf/internal/step"
)

func TestStepRegistryIsShared(t *testing.T) {
	reg := StepRegistry()
	if reg == nil {
		t.Fatal("Expected StepRegistry to return a registry")
	}
	if reg != stepRegistry {
		t.Error("Expected StepRegistry to return the package registry")
	}
}

func TestLoadOrderResource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order.json")
	content := `["steps.FetchUser","steps.PublishUser"]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing order resource: %v", err)
	}

	order, err := loadOrderResource(path)
	if err != nil {
		t.Fatalf("loadOrderResource returned error: %v", err)
	}

	want := model.OrderedStepList{"steps.FetchUser", "steps.PublishUser"}
	if len(order) != len(want) {
		t.Fatalf("order has %d entries, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestLoadOrderResourceMissingFile(t *testing.T) {
	_, err := loadOrderResource(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected an error for a missing order resource")
	}
	if !strings.Contains(err.Error(), "opening order resource") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestStepRegistryAcceptsSteps(t *testing.T) {
	reg := step.NewRegistry()
	s := step.OneToOne("steps.Probe", func(ctx context.Context, in string) (string, error) {
		return in, nil
	})
	if err := reg.Register(s); err != nil {
		t.Fatalf("registering step: %v", err)
	}
	if _, ok := reg.Lookup("steps.Probe"); !ok {
		t.Error("Expected registered step to be resolvable")
	}
}
