package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// aliasFile is the on-disk shape of an operator-curated alias table.
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// LoadAliases reads an alias table YAML file. A missing path returns an
// empty table so the resolver ladder simply skips the alias rung.
func LoadAliases(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alias file: %w", err)
	}

	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing alias file %s: %w", path, err)
	}
	if f.Aliases == nil {
		f.Aliases = map[string]string{}
	}
	return f.Aliases, nil
}

// shiftRulesFile is the on-disk shape of a shift rules document.
type shiftRulesFile struct {
	Rules []model.ShiftRule `yaml:"rules"`
}

// LoadShiftRules reads shift rules from a YAML file. An empty path
// returns no rules; workday KPIs then stay zero.
func LoadShiftRules(path string) ([]model.ShiftRule, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading shift rules: %w", err)
	}

	var f shiftRulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing shift rules %s: %w", path, err)
	}

	for i, r := range f.Rules {
		if r.Site == "" {
			return nil, fmt.Errorf("shift rule %d: missing site", i)
		}
		if _, _, err := r.Window(); err != nil {
			return nil, fmt.Errorf("shift rule %d (%s): %w", i, r.Site, err)
		}
	}
	return f.Rules, nil
}
