package runner

import (
	"strings"
	"testing"

	"sorcerer/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passFailStream = `{"Action":"start","Package":"example.com/shop/order"}
{"Action":"run","Package":"example.com/shop/order","Test":"TestPlace"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestPlace","Output":"=== RUN   TestPlace\n"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestPlace","Output":"--- PASS: TestPlace (0.00s)\n"}
{"Action":"pass","Package":"example.com/shop/order","Test":"TestPlace","Elapsed":0}
{"Action":"run","Package":"example.com/shop/order","Test":"TestTotal"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestTotal","Output":"=== RUN   TestTotal\n"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestTotal","Output":"    order_test.go:21: got 3, want 4\n"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestTotal","Output":"--- FAIL: TestTotal (0.00s)\n"}
{"Action":"fail","Package":"example.com/shop/order","Test":"TestTotal","Elapsed":0}
{"Action":"run","Package":"example.com/shop/order","Test":"TestPanic"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestPanic","Output":"panic: runtime error: index out of range [recovered]\n"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestPanic","Output":"\t/src/shop/order/order.go:12 +0x1d\n"}
{"Action":"fail","Package":"example.com/shop/order","Test":"TestPanic","Elapsed":0}
{"Action":"output","Package":"example.com/shop/order","Output":"FAIL\n"}
{"Action":"fail","Package":"example.com/shop/order","Elapsed":0.01}
`

func TestParseTestJSONPassFail(t *testing.T) {
	r := ParseTestJSON(strings.NewReader(passFailStream), "")

	require.Len(t, r.PassedTests, 1)
	assert.Equal(t, "TestPlace", r.PassedTests[0].FullName)

	require.Len(t, r.FailedTests, 2)
	assert.Equal(t, "TestTotal", r.FailedTests[0].FullName)
	assert.Equal(t, "    order_test.go:21: got 3, want 4", r.FailedTests[0].Message)
	assert.Empty(t, r.FailedTests[0].StackTrace)

	assert.Equal(t, "TestPanic", r.FailedTests[1].FullName)
	assert.Contains(t, r.FailedTests[1].StackTrace, "panic: runtime error")
	assert.Contains(t, r.FailedTests[1].StackTrace, "order.go:12")

	assert.Empty(t, r.BuildErrors)
	assert.Empty(t, r.Errors)
	assert.False(t, r.Success())
}

func TestParseTestJSONBuildOutput(t *testing.T) {
	stream := `{"ImportPath":"example.com/shop/order [example.com/shop/order.test]","Action":"build-output","Output":"# example.com/shop/order [example.com/shop/order.test]\n"}
{"ImportPath":"example.com/shop/order [example.com/shop/order.test]","Action":"build-output","Output":"./order_test.go:9:2: undefined: NewThing\n"}
{"ImportPath":"example.com/shop/order [example.com/shop/order.test]","Action":"build-fail"}
{"Action":"start","Package":"example.com/shop/order"}
{"Action":"output","Package":"example.com/shop/order","Output":"FAIL\texample.com/shop/order [build failed]\n"}
{"Action":"fail","Package":"example.com/shop/order","Elapsed":0,"FailedBuild":"example.com/shop/order [example.com/shop/order.test]"}
`
	r := ParseTestJSON(strings.NewReader(stream), "")
	assert.Equal(t, []string{"./order_test.go:9:2: undefined: NewThing"}, r.BuildErrors)
	assert.Empty(t, r.Errors)
	assert.False(t, r.Success())
}

func TestParseTestJSONStderrCompilerErrors(t *testing.T) {
	stderr := "# example.com/shop/order [example.com/shop/order.test]\n./order_test.go:9:2: undefined: NewThing\n./order_test.go:9:2: undefined: NewThing\n"
	stream := `{"Action":"output","Package":"example.com/shop/order","Output":"FAIL\texample.com/shop/order [build failed]\n"}
{"Action":"fail","Package":"example.com/shop/order","Elapsed":0}
`
	r := ParseTestJSON(strings.NewReader(stream), stderr)
	assert.Equal(t, []string{"./order_test.go:9:2: undefined: NewThing"}, r.BuildErrors)
	assert.Empty(t, r.Errors)
}

func TestParseTestJSONToolingErrors(t *testing.T) {
	stderr := "go: cannot find main module, but found .git/config in /src\n"
	r := ParseTestJSON(strings.NewReader(""), stderr)
	assert.Equal(t, []string{"go: cannot find main module, but found .git/config in /src"}, r.Errors)
	assert.Empty(t, r.BuildErrors)

	stream := `{"Action":"output","Package":"example.com/shop/order","Output":"setup failed: missing go.sum entry\n"}
{"Action":"fail","Package":"example.com/shop/order","Elapsed":0}
`
	r = ParseTestJSON(strings.NewReader(stream), "")
	assert.Equal(t, []string{"setup failed: missing go.sum entry"}, r.Errors)
	require.Len(t, r.FailedTests, 1)
	assert.Equal(t, "example.com/shop/order", r.FailedTests[0].FullName)
}

func TestParseTestJSONPackageFailureWithoutFailedTest(t *testing.T) {
	// TestMain runs the tests, which pass, then exits non-zero.
	stream := `{"Action":"start","Package":"example.com/shop/order"}
{"Action":"run","Package":"example.com/shop/order","Test":"TestPlace"}
{"Action":"output","Package":"example.com/shop/order","Test":"TestPlace","Output":"--- PASS: TestPlace (0.00s)\n"}
{"Action":"pass","Package":"example.com/shop/order","Test":"TestPlace","Elapsed":0}
{"Action":"output","Package":"example.com/shop/order","Output":"teardown: leaked goroutines\n"}
{"Action":"output","Package":"example.com/shop/order","Output":"FAIL\texample.com/shop/order\t0.01s\n"}
{"Action":"fail","Package":"example.com/shop/order","Elapsed":0.01}
`
	r := ParseTestJSON(strings.NewReader(stream), "")
	require.Len(t, r.PassedTests, 1)
	require.Len(t, r.FailedTests, 1)
	assert.Equal(t, "example.com/shop/order", r.FailedTests[0].FullName)
	assert.Equal(t, model.OutcomeFailed, r.FailedTests[0].Result)
	assert.Contains(t, r.FailedTests[0].Message, "teardown: leaked goroutines")
	assert.Equal(t, []string{"teardown: leaked goroutines"}, r.Errors)
	assert.Empty(t, r.BuildErrors)
	assert.False(t, r.Success())
}

func TestFilter(t *testing.T) {
	assert.Equal(t, "", Filter(nil))
	assert.Equal(t, "^(TestA|TestB)$", Filter([]string{"TestB", "TestA", "TestB"}))
	assert.Equal(t, "^(TestTable)$", Filter([]string{"TestTable/case_1", "TestTable/case_2"}))
	assert.Equal(t, `^(Test\.Odd)$`, Filter([]string{"Test.Odd"}))
}
