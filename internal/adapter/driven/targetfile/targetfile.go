// Package targetfile reads watch targets from a YAML seed file.
package targetfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// File is the seed file document:
//
//	targets:
//	  - owner: octo
//	    repo: app
//	    branch: main
//	  - repo: octo/lib     # owner may be folded into repo
//	    branch: release/1.x
type File struct {
	Targets []Entry `yaml:"targets"`
}

// Entry is one watch target.
type Entry struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
}

// Load reads and validates the seed file at path.
func Load(path string) ([]model.TargetKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	keys, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("targets file %s: %w", path, err)
	}
	return keys, nil
}

// Parse decodes a seed document. Unknown fields are rejected and every entry
// must name an owner, repo and branch.
func Parse(r io.Reader) ([]model.TargetKey, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	keys := make([]model.TargetKey, 0, len(f.Targets))
	for i, e := range f.Targets {
		key, err := e.key()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (e Entry) key() (model.TargetKey, error) {
	full := e.Repo
	if e.Owner != "" {
		full = e.Owner + "/" + e.Repo
	}
	return model.ParseTargetKey(full, e.Branch)
}
