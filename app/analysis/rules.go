package analysis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Match maps a substring or exact value to a hosting provider name.
type Match struct {
	Pattern string `yaml:"pattern"`
	Host    string `yaml:"host"`
}

// Rules holds the lookup tables used by the Engine. Tables are ordered and
// the first matching entry wins. A Rules value cannot be modified once built.
type Rules struct {
	exactGenerators   []Match
	partialGenerators []Match
	domains           []Match
	tracking          []Match
}

type rulesFile struct {
	ExactGenerators   []Match `yaml:"exact_generators"`
	PartialGenerators []Match `yaml:"partial_generators"`
	Domains           []Match `yaml:"domains"`
	Tracking          []Match `yaml:"tracking"`
}

func DefaultRules() Rules {
	return Rules{
		exactGenerators: []Match{
			{"Fireside (https://fireside.fm)", "Fireside.fm"},
			{"https://podbean.com/", "Podbean"},
			{"https://simplecast.com", "Simplecast"},
			{"Transistor (https://transistor.fm)", "Transistor.fm"},
			{"acast.com", "Acast"},
			{"Anchor Podcasts", "Anchor/Spotify"},
			{"Pinecast (https://pinecast.com)", "Pinecast"},
		},
		partialGenerators: []Match{
			{"RedCircle", "RedCircle"},
			{"Libsyn", "Libsyn"},
			{"Squarespace", "Squarespace"},
			{"podbean.com", "Podbean"},
		},
		domains: []Match{
			{"buzzsprout.com", "Buzzsprout"},
			{"fireside.fm", "Fireside.fm"},
			{"podbean.com", "Podbean"},
			{"simplecast.com", "Simplecast"},
			{"transistor.fm", "Transistor.fm"},
			{"redcircle.com", "RedCircle"},
			{"acast.com", "Acast"},
			{"pinecast.com", "Pinecast"},
			{"libsyn.com", "Libsyn"},
			{"spreaker.com", "Spreaker"},
			{"soundcloud.com", "Soundcloud"},
			{"anchor.fm", "Anchor/Spotify"},
			{"squarespace.com", "Squarespace"},
			{"blubrry.com", "Blubrry"},
		},
		tracking: []Match{
			{"podtrac", "Podtrac"},
			{"blubrry", "Blubrry"},
		},
	}
}

// LoadRules reads lookup tables from a YAML file. Tables missing from the
// file fall back to the defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	var raw rulesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Rules{}, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	rules := DefaultRules()
	tables := []struct {
		name string
		src  []Match
		dst  *[]Match
	}{
		{"exact_generators", raw.ExactGenerators, &rules.exactGenerators},
		{"partial_generators", raw.PartialGenerators, &rules.partialGenerators},
		{"domains", raw.Domains, &rules.domains},
		{"tracking", raw.Tracking, &rules.tracking},
	}
	for _, table := range tables {
		if table.src == nil {
			continue
		}
		for i, m := range table.src {
			if m.Pattern == "" || m.Host == "" {
				return Rules{}, fmt.Errorf("%s entry %d must have a pattern and a host", table.name, i)
			}
		}
		*table.dst = append([]Match(nil), table.src...)
	}

	return rules, nil
}

// GeneratorHost resolves a feed generator string, trying the exact table
// before the partial one.
func (r Rules) GeneratorHost(generator string) (string, bool) {
	if generator == "" {
		return "", false
	}
	for _, m := range r.exactGenerators {
		if m.Pattern == generator {
			return m.Host, true
		}
	}
	return firstContained(r.partialGenerators, generator)
}

func (r Rules) DomainHost(downloadURL string) (string, bool) {
	return firstContained(r.domains, downloadURL)
}

func (r Rules) Tracker(downloadURL string) (string, bool) {
	return firstContained(r.tracking, downloadURL)
}

func firstContained(table []Match, s string) (string, bool) {
	for _, m := range table {
		if strings.Contains(s, m.Pattern) {
			return m.Host, true
		}
	}
	return "", false
}
