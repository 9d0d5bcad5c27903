package policy

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// SchemaVersion is the bundle schema this engine understands. Bundles
// declaring an incompatible major version are rejected at load time.
const SchemaVersion = "1.0.0"

// Bundle is a YAML-declared policy set, the deployable unit of return
// policy configuration.
type Bundle struct {
	Name          string                   `yaml:"name"`
	SchemaVersion string                   `yaml:"schema_version"`
	Policies      []contracts.ReturnPolicy `yaml:"policies"`
}

// LoadBundle reads and validates a policy bundle from a YAML file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: load bundle %q: %w", path, err)
	}
	return ParseBundle(data)
}

// ParseBundle decodes a bundle and enforces the schema version gate.
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("policy: parse bundle: %w", err)
	}
	if b.SchemaVersion == "" {
		return nil, fmt.Errorf("policy: bundle missing schema_version")
	}
	declared, err := semver.NewVersion(b.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("policy: bad schema_version %q: %w", b.SchemaVersion, err)
	}
	supported := semver.MustParse(SchemaVersion)
	if declared.Major() != supported.Major() || declared.GreaterThan(supported) {
		return nil, fmt.Errorf("policy: bundle schema %s not supported by engine %s", b.SchemaVersion, SchemaVersion)
	}
	return &b, nil
}
