package trigger

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of a trigger catalog.
type catalogFile struct {
	Triggers []Definition `yaml:"triggers"`
}

// LoadFile reads a YAML trigger catalog, expanding ${VAR} references.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trigger catalog: read %s: %w", path, err)
	}
	c, err := LoadBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("trigger catalog %s: %w", path, err)
	}
	return c, nil
}

// LoadBytes parses a YAML trigger catalog.
func LoadBytes(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(f.Triggers) == 0 {
		return nil, fmt.Errorf("no triggers defined")
	}
	return NewCatalog(f.Triggers)
}

// envVarPattern matches ${VAR_NAME}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} with the environment value; missing vars
// become empty strings.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(name)
	})
}
