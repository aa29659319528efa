package grammar

import (
	"fmt"
	"strings"

	"github.com/vk/langforge/internal/model"
)

// MetaGrammar is the Lark grammar of the restricted grammar sublanguage. The
// synthesis service is constrained to emit text it accepts.
const MetaGrammar = `
start: _NL* (item _NL+)* item? _NL*

item: rule_def
    | token_def
    | import_decl
    | ignore_decl

rule_def: RULE_NAME ":" _SP? alternatives
token_def: TOKEN_NAME ":" _SP? alternatives

alternatives: alternative (_ALT_SEP alternative)*
alternative: expansion (_SP "->" _SP RULE_NAME)?
expansion: atom (_SP atom)*

atom: primary QUANTIFIER?
primary: RULE_NAME
       | TOKEN_NAME
       | LITERAL
       | REGEX
       | "(" _SP? alternatives _SP? ")"
       | "[" _SP? alternatives _SP? "]"

import_decl: "%import" _SP "common." TOKEN_NAME
ignore_decl: "%ignore" _SP TOKEN_NAME

_ALT_SEP: /[ ]*(\n[ ]+)?\|[ ]*/
QUANTIFIER: "?" | "*" | "+"
RULE_NAME: /[a-z_][a-z0-9_]*/
TOKEN_NAME: /[A-Z_][A-Z0-9_]*/
LITERAL: /"([^"\\\n]|\\.)+"i?/
REGEX: /\/([^\/\\\n]|\\.)+\/[imslux]*/
_SP: /[ ]+/
_NL: /[ ]*\n/
`

const grammarInstructions = `You write grammars in a restricted subset of the Lark grammar language.

Rules:
- Rule names are lowercase; token names are uppercase.
- String literals use double quotes only. Never use single quotes.
- Allowed constructs: rules, tokens, alternatives with "|", groups "( )", optional "[ ]",
  quantifiers "?", "*", "+", aliases "-> name", "%import common.NAME" and "%ignore NAME".
- The entry rule is named "start".
- Prefer aliases for every alternative that an interpreter must distinguish.
- Output only the grammar. No prose, no Markdown fences.`

// buildPrompt assembles the request input for one attempt. Every previous
// failure is included verbatim so later attempts see the full history.
func buildPrompt(run *model.Run, priorErrors []string) string {
	var b strings.Builder
	b.WriteString("Language description:\n")
	b.WriteString(strings.TrimSpace(run.Spec))
	b.WriteString("\n")
	if run.HasSample() {
		b.WriteString("\nThe grammar must accept this sample program:\n")
		b.WriteString(run.Sample)
		b.WriteString("\n")
	}
	if len(priorErrors) > 0 {
		b.WriteString("\nPrevious attempts were rejected with these errors. Fix all of them:\n")
		for i, msg := range priorErrors {
			fmt.Fprintf(&b, "%d. %s\n", i+1, msg)
		}
	}
	return b.String()
}
