package domain

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed variables.yaml
var variablesYAML []byte

// VariableInfo describes one ERA5 variable the service knows how to ingest.
type VariableInfo struct {
	Name      string `yaml:"name"`
	ShortName string `yaml:"short_name"`
	Units     string `yaml:"units"`
	LongName  string `yaml:"long_name"`
}

type registryFile struct {
	Variables []VariableInfo `yaml:"variables"`
}

var registry = mustParseRegistry(variablesYAML)

func mustParseRegistry(data []byte) []VariableInfo {
	vars, err := parseRegistry(data)
	if err != nil {
		panic(err)
	}
	return vars
}

func parseRegistry(data []byte) ([]VariableInfo, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse variable registry: %w", err)
	}
	seen := make(map[string]bool, len(f.Variables))
	for _, v := range f.Variables {
		if v.Name == "" || v.ShortName == "" {
			return nil, fmt.Errorf("parse variable registry: entry %+v needs name and short_name", v)
		}
		if seen[v.Name] {
			return nil, fmt.Errorf("parse variable registry: duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
	}
	return f.Variables, nil
}

// Variables returns the registry in file order.
func Variables() []VariableInfo {
	out := make([]VariableInfo, len(registry))
	copy(out, registry)
	return out
}

// DefaultVariableNames returns every registered variable name.
func DefaultVariableNames() []string {
	names := make([]string, len(registry))
	for i, v := range registry {
		names[i] = v.Name
	}
	return names
}

// LookupVariable finds a registered variable by CDS name or short name.
func LookupVariable(name string) (VariableInfo, bool) {
	name = strings.TrimSpace(name)
	for _, v := range registry {
		if v.Name == name || v.ShortName == name {
			return v, true
		}
	}
	return VariableInfo{}, false
}

// ValidateVariables rejects names missing from the registry.
func ValidateVariables(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("no variables configured")
	}
	for _, n := range names {
		if _, ok := LookupVariable(n); !ok {
			return fmt.Errorf("unknown ERA5 variable %q", n)
		}
	}
	return nil
}
