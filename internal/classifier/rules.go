package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile builds a classifier whose rules are loaded from a JSON or YAML
// file and evaluated ahead of the built-in table. An empty path yields the
// default classifier.
func FromFile(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}
	rules, err := loadRules(path)
	if err != nil {
		return nil, fmt.Errorf("load rules from %s: %w", path, err)
	}
	return New(rules)
}

func loadRules(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &rules); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(b, &rules); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported rules file format (use .json or .yaml/.yml)")
	}
	if len(rules) == 0 {
		return nil, errors.New("no rules found in file")
	}
	return rules, nil
}
