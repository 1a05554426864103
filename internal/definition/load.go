package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kode4food/flownode/pkg/api"
)

var ErrUnknownFormat = errors.New("unknown definition file format")

// Parse decodes a definition from JSON or YAML, chosen by file extension
func Parse(name string, data []byte) (*api.ProcessDefinition, error) {
	var def api.ProcessDefinition
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return &def, nil
}

// LoadDir registers every .json, .yaml and .yml definition in dir, in file
// name order, and returns the IDs registered
func (r *Registry) LoadDir(dir string) ([]api.DefinitionID, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	var res []api.DefinitionID
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return res, err
		}
		def, err := Parse(name, data)
		if err != nil {
			return res, err
		}
		if err := r.Register(def); err != nil {
			return res, fmt.Errorf("%s: %w", name, err)
		}
		res = append(res, def.ID)
	}
	return res, nil
}
