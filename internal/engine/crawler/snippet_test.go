package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanSnippet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "tabs",
			in:   "\n\n\ttype A struct {\n\t\tX int\n\t}\n\n",
			want: "type A struct {\n\tX int\n}",
		},
		{
			name: "spaces with blank line inside",
			in:   "    type B struct {\n\n        Y int\n    }",
			want: "type B struct {\n\n    Y int\n}",
		},
		{
			name: "mixed indentation counted as columns",
			in:   "\ttype C int\n    // four spaces\n",
			want: "type C int\n// four spaces",
		},
		{
			name: "already clean",
			in:   "type D = string",
			want: "type D = string",
		},
		{
			name: "only blank",
			in:   "\n  \n\t\n",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSnippet(tt.in))
		})
	}
}

func TestCleanSnippetIdempotent(t *testing.T) {
	in := "\t\ttype E struct {\n\t\t\tZ []string\n\t\t}\n"
	once := CleanSnippet(in)
	assert.Equal(t, once, CleanSnippet(once))
}
