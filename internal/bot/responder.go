package bot

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule answers messages containing any of its keywords.
type Rule struct {
	Keywords []string `yaml:"keywords"`
	Reply    string   `yaml:"reply"`
}

// Rules is the reply configuration. Rules are tried in order; Default
// answers text that matches none of them.
type Rules struct {
	Rules   []Rule `yaml:"rules"`
	Default string `yaml:"default"`
}

// DefaultRules returns the built-in replies.
func DefaultRules() Rules {
	return Rules{
		Rules: []Rule{
			{Keywords: []string{"hola"}, Reply: "¡Hola! ¿En qué puedo ayudarte?"},
			{Keywords: []string{"precio"}, Reply: "El precio de nuestros productos es de $100."},
			{Keywords: []string{"gracias"}, Reply: "¡De nada! Si tienes más preguntas, no dudes en consultarme."},
		},
		Default: "Lo siento, no entiendo tu mensaje. Por favor, usa una de las siguientes palabras clave: hola, precio, gracias.",
	}
}

// LoadRules reads rules from a YAML file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Validate rejects rules that could never produce a reply.
func (r Rules) Validate() error {
	for i, rule := range r.Rules {
		if strings.TrimSpace(rule.Reply) == "" {
			return fmt.Errorf("rule %d: empty reply", i)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("rule %d: no keywords", i)
		}
	}
	if len(r.Rules) == 0 && r.Default == "" {
		return errors.New("no rules and no default reply")
	}
	return nil
}

// Responder picks the automatic reply for a message text.
type Responder struct {
	rules    []Rule
	fallback string
}

// NewResponder creates a responder. Keywords match case-insensitively.
func NewResponder(r Rules) *Responder {
	rules := make([]Rule, 0, len(r.Rules))
	for _, rule := range r.Rules {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, k := range rule.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		rules = append(rules, Rule{Keywords: keywords, Reply: rule.Reply})
	}
	return &Responder{rules: rules, fallback: r.Default}
}

// Reply returns the answer for text. Messages without text get none.
func (r *Responder) Reply(text string) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}

	for _, rule := range r.rules {
		for _, k := range rule.Keywords {
			if strings.Contains(text, k) {
				return rule.Reply, true
			}
		}
	}

	if r.fallback == "" {
		return "", false
	}
	return r.fallback, true
}
