package worker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sells-group/insight-engine/internal/model"
)

func TestDefaultRoster_Valid(t *testing.T) {
	r := DefaultRoster()
	if err := r.Validate(); err != nil {
		t.Fatalf("default roster should validate: %v", err)
	}

	want := []string{"gather", "assess", "synthesize"}
	got := r.PhaseNames()
	if len(got) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRoster_SpecsFor_ModuleGating(t *testing.T) {
	r := DefaultRoster()

	// No module filter runs everything in gather.
	all := r.SpecsFor("gather", model.AnalysisRequest{Subject: "Acme"})
	if len(all) != 3 {
		t.Errorf("expected 3 gather workers with no filter, got %d", len(all))
	}

	// Financial-only drops the web workers.
	fin := r.SpecsFor("gather", model.AnalysisRequest{Subject: "Acme", Modules: []string{"financial"}})
	if len(fin) != 1 || fin[0].Name != "finrecords" {
		t.Errorf("expected only finrecords for financial module, got %+v", fin)
	}

	// Untagged workers run regardless of the filter.
	assess := r.SpecsFor("assess", model.AnalysisRequest{Subject: "Acme", Modules: []string{"financial"}})
	var names []string
	for _, s := range assess {
		names = append(names, s.Name)
	}
	if len(names) != 1 || names[0] != "classify" {
		t.Errorf("expected untagged classify to survive the filter, got %v", names)
	}
}

func TestRoster_SpecsFor_UnknownPhase(t *testing.T) {
	r := DefaultRoster()
	if specs := r.SpecsFor("nonexistent", model.AnalysisRequest{Subject: "Acme"}); specs != nil {
		t.Errorf("expected nil for unknown phase, got %+v", specs)
	}
}

func TestRoster_Spec(t *testing.T) {
	r := DefaultRoster()

	spec, ok := r.Spec("synthesis")
	if !ok {
		t.Fatal("expected synthesis spec")
	}
	if spec.Phase != "synthesize" {
		t.Errorf("expected phase synthesize, got %q", spec.Phase)
	}
	if len(spec.DependsOn) == 0 {
		t.Error("expected synthesis to declare dependencies")
	}

	if _, ok := r.Spec("nope"); ok {
		t.Error("expected miss for unknown spec")
	}
}

func TestRoster_Validate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		roster  Roster
		wantErr string
	}{
		{
			"no phases",
			Roster{},
			"no phases",
		},
		{
			"duplicate phase",
			Roster{Phases: []PhaseSpec{
				{Name: "gather"},
				{Name: "gather"},
			}},
			"duplicate phase",
		},
		{
			"duplicate worker",
			Roster{Phases: []PhaseSpec{
				{Name: "gather", Workers: []model.WorkerSpec{{Name: "a"}, {Name: "a"}}},
			}},
			"duplicate worker",
		},
		{
			"unknown dependency",
			Roster{Phases: []PhaseSpec{
				{Name: "gather", Workers: []model.WorkerSpec{{Name: "a", DependsOn: []string{"ghost"}}}},
			}},
			"unknown worker",
		},
		{
			"same-phase dependency",
			Roster{Phases: []PhaseSpec{
				{Name: "gather", Workers: []model.WorkerSpec{{Name: "a"}, {Name: "b", DependsOn: []string{"a"}}}},
			}},
			"earlier phase",
		},
		{
			"forward dependency",
			Roster{Phases: []PhaseSpec{
				{Name: "gather", Workers: []model.WorkerSpec{{Name: "a", DependsOn: []string{"b"}}}},
				{Name: "assess", Workers: []model.WorkerSpec{{Name: "b"}}},
			}},
			"earlier phase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.roster.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadRoster_EmptyPathUsesDefault(t *testing.T) {
	r, err := LoadRoster("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Phases) != 3 {
		t.Errorf("expected default fleet, got %d phases", len(r.Phases))
	}
}

func TestLoadRoster_FromYAML(t *testing.T) {
	content := `phases:
  - name: gather
    workers:
      - name: websearch
        module: web
        timeout_secs: 10
  - name: synthesize
    workers:
      - name: synthesis
        timeout_secs: 30
        depends_on: [websearch]
`
	path := filepath.Join(t.TempDir(), "workers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRoster(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(r.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(r.Phases))
	}

	// Phase names are stamped onto nested specs.
	spec, ok := r.Spec("synthesis")
	if !ok {
		t.Fatal("expected synthesis spec")
	}
	if spec.Phase != "synthesize" {
		t.Errorf("expected stamped phase synthesize, got %q", spec.Phase)
	}
	if len(spec.DependsOn) != 1 || spec.DependsOn[0] != "websearch" {
		t.Errorf("expected depends_on [websearch], got %v", spec.DependsOn)
	}
}

func TestLoadRoster_InvalidYAMLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workers.yaml")
	if err := os.WriteFile(path, []byte("phases: [not a phase"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRoster(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadRoster_MissingFile(t *testing.T) {
	if _, err := LoadRoster("/nonexistent/workers.yaml"); err == nil {
		t.Error("expected read error")
	}
}

func TestLoadRoster_ValidationFailureSurfaces(t *testing.T) {
	content := `phases:
  - name: gather
    workers:
      - name: a
        depends_on: [a]
`
	path := filepath.Join(t.TempDir(), "workers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRoster(path); err == nil {
		t.Error("expected validation error for self-dependency")
	}
}
