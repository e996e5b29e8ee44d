package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcess(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "clean_output_unchanged",
			raw:  `console.log("test");`,
			want: `console.log("test");`,
		},
		{
			name: "surrounding_whitespace_trimmed",
			raw:  "  \n\treturn nil\t\n",
			want: "return nil",
		},
		{
			name: "end_of_text_and_blank_line_fence",
			raw:  "console.log(\"test\");\n\n\n\nmore lines\n<EOT>extra",
			want: `console.log("test");`,
		},
		{
			name: "fim_delimiter_truncates",
			raw:  "foo()<MID>bar()",
			want: "foo()",
		},
		{
			name: "tokens_compose_in_order",
			raw:  "a<PRE>b<EOT>c",
			want: "a",
		},
		{
			name: "line_cap_at_five",
			raw:  "l1\nl2\nl3\nl4\nl5\nl6\nl7",
			want: "l1\nl2\nl3\nl4\nl5",
		},
		{
			name: "empty_input",
			raw:  "",
			want: "",
		},
		{
			name: "whitespace_only",
			raw:  "   \n\t  ",
			want: "",
		},
		{
			name: "only_stop_token",
			raw:  "<EOT>",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Process(tt.raw))
		})
	}
}

func TestProcess_Idempotent(t *testing.T) {
	inputs := []string{
		`console.log("test");`,
		"console.log(\"test\");\n\n\n\nmore lines\n<EOT>extra",
		"a<PRE>b<EOT>c",
		"l1 \nl2\nl3\nl4\nl5 \nl6",
		"  padded  ",
		"",
	}

	for _, raw := range inputs {
		once := Process(raw)
		assert.Equal(t, once, Process(once), "Process must be idempotent for %q", raw)
	}
}
