package affect

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var registryYAML []byte

type registryEntry struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
	Color string `yaml:"color"`
}

var registry = loadRegistry()

func loadRegistry() map[string]registryEntry {
	var entries []registryEntry
	if err := yaml.Unmarshal(registryYAML, &entries); err != nil {
		panic(fmt.Sprintf("affect: embedded category registry: %v", err))
	}
	m := make(map[string]registryEntry, len(entries))
	for _, e := range entries {
		m[e.Key] = e
	}
	return m
}

// CanonicalKey derives the registry lookup key for a raw category name:
// lowercase, parentheses and all other non-alphanumeric characters stripped,
// whitespace collapsed, words re-joined in lower camel case. "Surprise
// (positive)" becomes "surprisePositive". Registry keys follow exactly this
// convention; no fuzzy matching is attempted.
func CanonicalKey(raw string) string {
	lowered := strings.ToLower(raw)
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	words := strings.Fields(b.String())
	if len(words) == 0 {
		return ""
	}
	var key strings.Builder
	key.WriteString(words[0])
	for _, w := range words[1:] {
		key.WriteString(strings.ToUpper(w[:1]))
		key.WriteString(w[1:])
	}
	return key.String()
}

// Resolve maps a raw category name to (canonical key, registry hit, display
// label, color). Unrecognized names keep the raw string as their label and
// get a color derived from the name itself, so a category never seen before
// still renders the same color everywhere.
func Resolve(raw string) (key string, known bool, label, color string) {
	key = CanonicalKey(raw)
	if entry, ok := registry[key]; ok {
		return key, true, entry.Label, entry.Color
	}
	return key, false, raw, fallbackColor(raw)
}

// fallbackColor hashes the raw name's character codes into an HSL hue:
// hash = (hash*31 + code) mod 360.
func fallbackColor(raw string) string {
	h := 0
	for _, r := range raw {
		h = (h*31 + int(r)) % 360
	}
	return fmt.Sprintf("hsl(%d, 70%%, 60%%)", h)
}
