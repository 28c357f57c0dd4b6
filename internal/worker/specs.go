package worker

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/insight-engine/internal/model"
)

// Roster declares the phases an analysis runs through and the workers in
// each. Phase order is the declaration order; a worker may only depend on
// workers declared in strictly earlier phases.
type Roster struct {
	Phases []PhaseSpec `yaml:"phases" json:"phases"`
}

// PhaseSpec is one named stage of the pipeline.
type PhaseSpec struct {
	Name    string             `yaml:"name" json:"name"`
	Workers []model.WorkerSpec `yaml:"workers" json:"workers"`
}

// DefaultRoster returns the built-in worker fleet: gather fans out to the
// external sources, assess interprets what gather found, synthesize writes
// the final narrative.
func DefaultRoster() *Roster {
	return &Roster{
		Phases: []PhaseSpec{
			{
				Name: "gather",
				Workers: []model.WorkerSpec{
					{Name: "websearch", Phase: "gather", Module: "web", TimeoutSecs: 20},
					{Name: "webprofile", Phase: "gather", Module: "web", TimeoutSecs: 25},
					{Name: "finrecords", Phase: "gather", Module: "financial", TimeoutSecs: 15},
				},
			},
			{
				Name: "assess",
				Workers: []model.WorkerSpec{
					{Name: "classify", Phase: "assess", TimeoutSecs: 30, DependsOn: []string{"websearch", "webprofile"}},
					{Name: "risk", Phase: "assess", Module: "risk", TimeoutSecs: 20, DependsOn: []string{"websearch", "finrecords"}},
				},
			},
			{
				Name: "synthesize",
				Workers: []model.WorkerSpec{
					{Name: "synthesis", Phase: "synthesize", TimeoutSecs: 45, DependsOn: []string{"websearch", "webprofile", "finrecords", "classify", "risk"}},
				},
			},
		},
	}
}

// LoadRoster reads a roster from a YAML file. An empty path returns the
// built-in default fleet.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		r := DefaultRoster()
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "worker: read roster %s", path)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "worker: parse roster %s", path)
	}

	// The phase a worker belongs to is implied by nesting; stamp it so
	// specs are self-contained downstream.
	for i := range r.Phases {
		for j := range r.Phases[i].Workers {
			r.Phases[i].Workers[j].Phase = r.Phases[i].Name
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks roster integrity: non-empty phase names, unique worker
// names, and dependencies that point at strictly earlier phases.
func (r *Roster) Validate() error {
	if len(r.Phases) == 0 {
		return eris.New("worker: roster has no phases")
	}

	phaseSeen := make(map[string]bool)
	declared := make(map[string]int) // worker name -> phase index
	for i, p := range r.Phases {
		if p.Name == "" {
			return eris.Errorf("worker: phase %d has no name", i)
		}
		if phaseSeen[p.Name] {
			return eris.Errorf("worker: duplicate phase %q", p.Name)
		}
		phaseSeen[p.Name] = true

		for _, spec := range p.Workers {
			if spec.Name == "" {
				return eris.Errorf("worker: phase %q has an unnamed worker", p.Name)
			}
			if _, dup := declared[spec.Name]; dup {
				return eris.Errorf("worker: duplicate worker %q", spec.Name)
			}
			declared[spec.Name] = i
		}
	}

	for i, p := range r.Phases {
		for _, spec := range p.Workers {
			for _, dep := range spec.DependsOn {
				depPhase, ok := declared[dep]
				if !ok {
					return eris.Errorf("worker: %s depends on unknown worker %q", spec.Name, dep)
				}
				if depPhase >= i {
					return eris.Errorf("worker: %s depends on %q which does not run in an earlier phase", spec.Name, dep)
				}
			}
		}
	}
	return nil
}

// PhaseNames returns the phase names in execution order.
func (r *Roster) PhaseNames() []string {
	names := make([]string, len(r.Phases))
	for i, p := range r.Phases {
		names[i] = p.Name
	}
	return names
}

// SpecsFor returns the specs of the named phase that are enabled for the
// request's module selection. Workers with no module tag always run.
func (r *Roster) SpecsFor(phase string, req model.AnalysisRequest) []model.WorkerSpec {
	for _, p := range r.Phases {
		if p.Name != phase {
			continue
		}
		var specs []model.WorkerSpec
		for _, spec := range p.Workers {
			if req.ModuleEnabled(spec.Module) {
				specs = append(specs, spec)
			}
		}
		return specs
	}
	return nil
}

// AllSpecs returns every spec in declaration order.
func (r *Roster) AllSpecs() []model.WorkerSpec {
	var specs []model.WorkerSpec
	for _, p := range r.Phases {
		specs = append(specs, p.Workers...)
	}
	return specs
}

// Spec returns the named spec.
func (r *Roster) Spec(name string) (model.WorkerSpec, bool) {
	for _, p := range r.Phases {
		for _, spec := range p.Workers {
			if spec.Name == name {
				return spec, true
			}
		}
	}
	return model.WorkerSpec{}, false
}
