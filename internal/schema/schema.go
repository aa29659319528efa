// Package schema derives a structural summary of a Lark grammar: its rule,
// token and alias names. Extraction is pure and total; constructs that do
// not match simply do not contribute.
package schema

import "regexp"

// Schema summarizes a grammar. All name lists are de-duplicated and keep the
// order of first appearance.
type Schema struct {
	Rules   []string `json:"rules"`
	Tokens  []string `json:"tokens"`
	Aliases []string `json:"aliases"`
	// NodeTypes is the preferred label set for tree nodes: the aliases when
	// the grammar declares any, otherwise the rule names.
	NodeTypes []string `json:"nodeTypes"`
}

var (
	// Rule definitions may carry Lark's ? (inline) or ! (keep tokens) prefix.
	ruleRe  = regexp.MustCompile(`(?m)^[?!]?([a-z_][a-z0-9_]*)(?:\.-?\d+)?:`)
	tokenRe = regexp.MustCompile(`(?m)^([A-Z_][A-Z0-9_]*)(?:\.-?\d+)?:`)
	aliasRe = regexp.MustCompile(`->\s*([a-z_][a-z0-9_]*)`)
)

// Extract returns the schema of grammarText.
func Extract(grammarText string) Schema {
	s := Schema{
		Rules:   collect(ruleRe, grammarText),
		Tokens:  collect(tokenRe, grammarText),
		Aliases: collect(aliasRe, grammarText),
	}
	if len(s.Aliases) > 0 {
		s.NodeTypes = s.Aliases
	} else {
		s.NodeTypes = s.Rules
	}
	return s
}

func collect(re *regexp.Regexp, text string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// HasNodeType reports whether name is one of the schema's node types.
func (s Schema) HasNodeType(name string) bool {
	for _, n := range s.NodeTypes {
		if n == name {
			return true
		}
	}
	return false
}
