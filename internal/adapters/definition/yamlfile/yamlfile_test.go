package yamlfile

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/casetrack/internal/app"
)

const sampleDefinition = `
name: Claims
description: Insurance claims intake
stages:
  - id: new
    name: New
  - name: Assessing
    wip_limit: 3
  - id: done
    name: Done
cases:
  - title: Water damage
    stage: new
    contact: ada@example.com
    value_cents: 125000
    currency: EUR
    due: 2026-11-01T00:00:00Z
  - title: Broken window
    stage: Assessing
`

func TestDecodeParsesDefinition(t *testing.T) {
	def, err := Decode(strings.NewReader(sampleDefinition))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if def.Name != "Claims" || len(def.Stages) != 3 || len(def.Cases) != 2 {
		t.Fatalf("unexpected definition %#v", def)
	}
	if def.Stages[1].WIPLimit != 3 {
		t.Fatalf("expected wip limit 3, got %d", def.Stages[1].WIPLimit)
	}
	first := def.Cases[0]
	if first.ValueCents != 125000 || first.Currency != "EUR" {
		t.Fatalf("unexpected value fields %#v", first)
	}
	if first.Due == nil || !first.Due.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected due %v", first.Due)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("name: X\nstagez: []\n"))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestDecodeRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"no stages":     "name: X\n",
		"unknown stage": "name: X\nstages:\n  - name: A\ncases:\n  - title: c\n    stage: B\n",
		"dup stage":     "name: X\nstages:\n  - name: A\n  - name: a\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			if !errors.Is(err, app.ErrInvalidDefinition) {
				t.Fatalf("expected ErrInvalidDefinition, got %v", err)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	def, err := Decode(strings.NewReader(sampleDefinition))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "claims.yaml")
	if err := Save(path, def); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != def.Name || len(got.Stages) != len(def.Stages) || len(got.Cases) != len(def.Cases) {
		t.Fatalf("definition changed across save/load: %#v", got)
	}
}

func TestEncodeOmitsEmptyOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, app.ProcessDefinition{
		Name:   "Minimal",
		Stages: []app.StageDefinition{{Name: "Only"}},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "wip_limit") || strings.Contains(out, "cases") {
		t.Fatalf("expected optional fields omitted, got:\n%s", out)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
