// Package catalog loads the program catalog from a YAML file.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/skillnova/lifecycle-hub/internal/domain/program"
)

// File is the on-disk catalog document.
type File struct {
	Programs []program.Program `yaml:"programs"`
}

// Options adjust programs after decoding.
type Options struct {
	// AttachmentsDir resolves relative details attachment paths.
	AttachmentsDir string

	// DefaultDurationUnits fills programs that omit duration_units.
	DefaultDurationUnits int
}

// Load reads the catalog at path, or returns the built-in catalog when path is empty.
func Load(path string, opts Options) (*program.Catalog, error) {
	programs := program.Builtin()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		programs, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
	}

	for i := range programs {
		programs[i].DetailsAttachment = resolve(opts.AttachmentsDir, programs[i].DetailsAttachment)
		if programs[i].DurationUnits == 0 && opts.DefaultDurationUnits > 0 {
			programs[i].DurationUnits = opts.DefaultDurationUnits
		}
	}
	return program.NewCatalog(programs...)
}

// Parse decodes a catalog document, rejecting unknown fields.
func Parse(data []byte) ([]program.Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, err
	}
	if len(f.Programs) == 0 {
		return nil, errors.New("catalog lists no programs")
	}
	return f.Programs, nil
}

func resolve(dir, file string) string {
	if file == "" || dir == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}
