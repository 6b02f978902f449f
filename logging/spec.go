package logging

import (
	"fmt"
	"sort"
	"strings"
)

// Spec is a base level plus per-component overrides.
//
// Format: "<base-level>[,<component>=<level>]..."
//
// Examples:
//   - "info"
//   - "warn,manager=debug"
//   - "info,claim=debug,driver=trace"
//   - "info,driver=debug,driver.tmc=trace"
//
// Components are dotted. A component with no override of its own
// inherits the level of its nearest configured parent, so "driver.tmc"
// falls back to "driver" and then to the base level.
type Spec struct {
	BaseLevel  Level
	Components map[string]Level
}

// ParseSpec parses a log specification string. An empty string yields
// info with no overrides.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{
		BaseLevel:  LevelInfo,
		Components: make(map[string]Level),
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return spec, nil
	}

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		component, levelStr, isOverride := strings.Cut(part, "=")
		if !isOverride {
			if i != 0 {
				return spec, fmt.Errorf("base level %q must be first in spec", part)
			}
			level, err := ParseLevel(part)
			if err != nil {
				return spec, err
			}
			spec.BaseLevel = level
			continue
		}

		component = strings.TrimSpace(component)
		if component == "" {
			return spec, fmt.Errorf("empty component name in %q", part)
		}
		level, err := ParseLevel(levelStr)
		if err != nil {
			return spec, fmt.Errorf("invalid level for component %q: %w", component, err)
		}
		spec.Components[component] = level
	}

	return spec, nil
}

// LevelFor returns the effective level for a component.
func (s *Spec) LevelFor(component string) Level {
	for component != "" {
		if level, ok := s.Components[component]; ok {
			return level
		}
		idx := strings.LastIndexByte(component, '.')
		if idx < 0 {
			break
		}
		component = component[:idx]
	}
	return s.BaseLevel
}

// String returns the spec as a parseable string with overrides sorted
// by component name.
func (s *Spec) String() string {
	names := make([]string, 0, len(s.Components))
	for name := range s.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := []string{s.BaseLevel.String()}
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, s.Components[name]))
	}
	return strings.Join(parts, ",")
}
