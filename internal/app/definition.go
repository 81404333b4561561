package app

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProcessDefinition describes a process with its stages and seed cases, as
// read from a definition file.
type ProcessDefinition struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Stages      []StageDefinition `json:"stages" yaml:"stages"`
	Cases       []CaseDefinition  `json:"cases,omitempty" yaml:"cases,omitempty"`
}

// StageDefinition represents one stage of a ProcessDefinition.
type StageDefinition struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Name     string `json:"name" yaml:"name"`
	WIPLimit int    `json:"wip_limit,omitempty" yaml:"wip_limit,omitempty"`
}

// CaseDefinition represents one seed case. Stage names a stage by id or name.
type CaseDefinition struct {
	Title       string     `json:"title" yaml:"title"`
	Stage       string     `json:"stage" yaml:"stage"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Contact     string     `json:"contact,omitempty" yaml:"contact,omitempty"`
	ValueCents  int64      `json:"value_cents,omitempty" yaml:"value_cents,omitempty"`
	Currency    string     `json:"currency,omitempty" yaml:"currency,omitempty"`
	Due         *time.Time `json:"due,omitempty" yaml:"due,omitempty"`
}

// Validate checks structural rules that do not need storage.
func (d ProcessDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("%w: at least one stage is required", ErrInvalidDefinition)
	}
	seen := map[string]struct{}{}
	for idx, st := range d.Stages {
		key := definitionStageKey(st)
		if key == "" || strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("%w: stage %d needs a name", ErrInvalidDefinition, idx+1)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate stage %q", ErrInvalidDefinition, key)
		}
		seen[key] = struct{}{}
	}
	refs := d.stageRefs()
	for idx, c := range d.Cases {
		if strings.TrimSpace(c.Title) == "" {
			return fmt.Errorf("%w: case %d has no title", ErrInvalidDefinition, idx+1)
		}
		if _, ok := refs[normalizeStageKey(c.Stage)]; !ok {
			return fmt.Errorf("%w: case %q references unknown stage %q", ErrInvalidDefinition, c.Title, c.Stage)
		}
	}
	return nil
}

// templates converts stage definitions into templates keyed by stage key.
func (d ProcessDefinition) templates() []StageTemplate {
	out := make([]StageTemplate, 0, len(d.Stages))
	for idx, st := range d.Stages {
		out = append(out, StageTemplate{ID: definitionStageKey(st), Name: strings.TrimSpace(st.Name), WIPLimit: max(st.WIPLimit, 0), Position: idx})
	}
	return out
}

// stageRefs maps every accepted case stage reference, by id or by name, to a stage key.
func (d ProcessDefinition) stageRefs() map[string]string {
	refs := map[string]string{}
	for _, st := range d.Stages {
		key := definitionStageKey(st)
		if _, ok := refs[normalizeStageKey(st.Name)]; !ok {
			refs[normalizeStageKey(st.Name)] = key
		}
	}
	for _, st := range d.Stages {
		key := definitionStageKey(st)
		refs[key] = key
	}
	return refs
}

func definitionStageKey(st StageDefinition) string {
	if id := strings.TrimSpace(st.ID); id != "" {
		return normalizeStageKey(id)
	}
	return normalizeStageKey(st.Name)
}

// ImportProcess creates the process, stages and cases of def.
func (s *Service) ImportProcess(ctx context.Context, def ProcessDefinition) (ImportSummary, error) {
	if err := def.Validate(); err != nil {
		return ImportSummary{}, err
	}
	now := s.clock()
	process, err := s.createProcessOnly(ctx, def.Name, def.Description, now)
	if err != nil {
		return ImportSummary{}, err
	}
	stages, err := s.createStages(ctx, process.ID, def.templates(), now)
	if err != nil {
		return ImportSummary{}, err
	}
	refs := def.stageRefs()
	summary := ImportSummary{ProcessID: process.ID, Stages: len(stages)}
	for _, cd := range def.Cases {
		stage := stages[refs[normalizeStageKey(cd.Stage)]]
		if _, err := s.CreateCase(ctx, CreateCaseInput{
			ProcessID:   process.ID,
			StageID:     stage.ID,
			Title:       cd.Title,
			Description: cd.Description,
			Contact:     cd.Contact,
			ValueCents:  cd.ValueCents,
			Currency:    cd.Currency,
			DueAt:       cd.Due,
		}); err != nil {
			return summary, fmt.Errorf("import case %q: %w", cd.Title, err)
		}
		summary.Cases++
	}
	return summary, nil
}

// ImportSummary reports what ImportProcess created.
type ImportSummary struct {
	ProcessID string
	Stages    int
	Cases     int
}

// DefinitionFromSnapshot converts a board snapshot back into a definition.
// Only the loaded cases of each stage are included.
func DefinitionFromSnapshot(snap BoardSnapshot) ProcessDefinition {
	def := ProcessDefinition{
		Name:        snap.Process.Name,
		Description: snap.Process.Description,
		Stages:      make([]StageDefinition, 0, len(snap.Stages)),
	}
	seen := map[string]int{}
	for _, st := range snap.Stages {
		key := normalizeStageKey(st.Name)
		if key == "" {
			key = "stage"
		}
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s-%d", key, n)
		}
		def.Stages = append(def.Stages, StageDefinition{ID: key, Name: st.Name, WIPLimit: st.WIPLimit})
		for _, c := range st.Cases {
			def.Cases = append(def.Cases, CaseDefinition{
				Title:       c.Title,
				Stage:       key,
				Description: c.Description,
				Contact:     c.Contact,
				ValueCents:  c.ValueCents,
				Currency:    c.Currency,
				Due:         copyTimePtr(c.DueAt),
			})
		}
	}
	return def
}
