package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sorcerer/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocations(t *testing.T) {
	out := strings.Join([]string{
		"# example.com/shop/order [example.com/shop/order.test]",
		"./order_test.go:12:9: undefined: NewThing",
		"    order_test.go:30: got 1, want 2",
		"goroutine 7 [running]:",
		"example.com/shop/order.(*Service).Place(...)",
		"\t/src/shop/order/service.go:9 +0x1d",
		"./order_test.go:12:9: undefined: NewThing",
	}, "\n")

	assert.Equal(t, []Location{
		{File: "./order_test.go", Line: 12},
		{File: "order_test.go", Line: 30},
		{File: "/src/shop/order/service.go", Line: 9},
	}, Locations(out))
}

func TestSourceContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.go")
	require.NoError(t, os.WriteFile(path, []byte("l1\nl2\nl3\nl4\nl5\nl6\n"), 0o644))

	got, err := SourceContext(path, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, "      2 | l2\n>>    3 | l3\n      4 | l4", got)

	got, err = SourceContext(path, 1, 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, ">>    1 | l1"))
	assert.Equal(t, 3, strings.Count(got, "\n"))

	_, err = SourceContext(path, 99, 1)
	assert.Error(t, err)
}

func TestContextResolverIssues(t *testing.T) {
	root := t.TempDir()
	pkg := filepath.Join(root, "order")
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkg, "order_test.go"), []byte("package order\n\nfunc TestA(t *testing.T) {\n\tt.Fatal(\"boom\")\n}\n"), 0o644))

	r := ContextResolver{ProjectRoot: root, PackageDir: pkg, Lines: 1}
	issues := r.Issues(&model.TestRunResult{
		BuildErrors: []string{"./order_test.go:3:6: missing import"},
		Errors:      []string{"exit status 2"},
		FailedTests: []model.TestResult{{
			FullName: "TestA",
			Result:   model.OutcomeFailed,
			Message:  "    order_test.go:4: boom",
		}},
	})

	require.Len(t, issues, 3)
	assert.Equal(t, "Build error", issues[0].Kind)
	require.Len(t, issues[0].Snippets, 1)
	assert.Contains(t, issues[0].Snippets[0].Text, ">>    3 | func TestA")
	assert.Empty(t, issues[1].Snippets)
	assert.Equal(t, "TestA", issues[2].Name)
	require.Len(t, issues[2].Snippets, 1)
	assert.Contains(t, issues[2].Snippets[0].Text, ">>    4 | \tt.Fatal(\"boom\")")

	_, ok := r.Resolve("/usr/local/go/src/testing/testing.go")
	assert.False(t, ok, "files outside the project are ignored")
	assert.Nil(t, r.Issues(nil))
}
