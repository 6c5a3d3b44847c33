package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

// LoadPersona reads the preamble from a YAML or JSON file with "user" and
// "assistant" keys.
func LoadPersona(path string) (domain.PersonaPreamble, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.PersonaPreamble{}, fmt.Errorf("reading persona file: %w", err)
	}

	var p domain.PersonaPreamble
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return domain.PersonaPreamble{}, fmt.Errorf("parsing persona file %s: %w", path, err)
	}

	if strings.TrimSpace(p.User) == "" {
		return domain.PersonaPreamble{}, fmt.Errorf("persona file %s: field %q is empty", path, "user")
	}
	if strings.TrimSpace(p.Assistant) == "" {
		return domain.PersonaPreamble{}, fmt.Errorf("persona file %s: field %q is empty", path, "assistant")
	}
	return p, nil
}

// Persona resolves the preamble from PERSONA_FILE, falling back to
// PERSONA_USER/PERSONA_ASSISTANT. An unconfigured persona is not an error.
func (c *Config) Persona() (domain.PersonaPreamble, error) {
	if c.PersonaFile != "" {
		return LoadPersona(c.PersonaFile)
	}
	return domain.PersonaPreamble{
		User:      c.PersonaUser,
		Assistant: c.PersonaAssistant,
	}, nil
}
