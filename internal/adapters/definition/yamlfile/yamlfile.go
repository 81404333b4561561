// Package yamlfile reads and writes process definitions as YAML documents.
package yamlfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hylla/casetrack/internal/app"
)

// Decode parses one process definition from r. Unknown keys are rejected so a
// misspelled field does not silently drop data.
func Decode(r io.Reader) (app.ProcessDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def app.ProcessDefinition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return app.ProcessDefinition{}, fmt.Errorf("%w: empty document", app.ErrInvalidDefinition)
		}
		return app.ProcessDefinition{}, fmt.Errorf("decode process definition: %w", err)
	}
	def.Name = strings.TrimSpace(def.Name)
	if err := def.Validate(); err != nil {
		return app.ProcessDefinition{}, err
	}
	return def, nil
}

// Load reads and decodes the definition stored at path.
func Load(path string) (app.ProcessDefinition, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.ProcessDefinition{}, fmt.Errorf("definition path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return app.ProcessDefinition{}, fmt.Errorf("open definition %q: %w", path, err)
	}
	defer f.Close()

	def, err := Decode(f)
	if err != nil {
		return app.ProcessDefinition{}, fmt.Errorf("load %q: %w", path, err)
	}
	return def, nil
}

// Encode writes def to w with two-space indentation.
func Encode(w io.Writer, def app.ProcessDefinition) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return fmt.Errorf("encode process definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush process definition: %w", err)
	}
	return nil
}

// Save writes def to path, creating parent directories.
func Save(path string, def app.ProcessDefinition) error {
	var buf bytes.Buffer
	if err := Encode(&buf, def); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create definition dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write definition %q: %w", path, err)
	}
	return nil
}
