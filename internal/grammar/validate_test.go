package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		wantErr string
	}{
		{
			name: "valid arithmetic grammar",
			text: "start: sum\nsum: product (ADD_OP product)*\nproduct: NUMBER | \"(\" sum \")\"\nADD_OP: \"+\" | \"-\"\nNUMBER: /[0-9]+/\n%import common.WS\n%ignore WS\n",
		},
		{
			name: "single quote inside regex is allowed",
			text: "STRING: /'[^']*'/\n",
		},
		{
			name: "single quote inside comment is allowed",
			text: "// don't panic\nstart: \"x\"\n",
		},
		{
			name: "escaped quotes inside double quoted literal",
			text: "QUOTE: \"\\\"\" | \"'\"\n",
		},
		{
			name:    "single quoted literal",
			text:    "start: 'x'\n",
			wantErr: "line 1: single-quoted literal",
		},
		{
			name:    "mismatched double then single",
			text:    "start: \"x'\n",
			wantErr: "mismatched quotes",
		},
		{
			name:    "mismatched single then double",
			text:    "start: sum\nop: 'x\"\n",
			wantErr: "line 2: mismatched quotes",
		},
		{
			name:    "unterminated string",
			text:    "start: \"x\n",
			wantErr: "unterminated string literal",
		},
		{
			name:    "unterminated regex",
			text:    "NUMBER: /[0-9]+\n",
			wantErr: "unterminated regular expression",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.text)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
