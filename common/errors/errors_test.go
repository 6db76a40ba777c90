package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const testModule = "test/errors"

var (
	errTestA = New(testModule, 1, "test: error a")
	errTestB = New(testModule, 2, "test: error b")
)

func TestCode(t *testing.T) {
	require := require.New(t)

	module, code := Code(nil)
	require.Equal("", module)
	require.EqualValues(CodeNoError, code)

	module, code = Code(errTestA)
	require.Equal(testModule, module)
	require.EqualValues(1, code)

	module, code = Code(fmt.Errorf("wrapped: %w", errTestB))
	require.Equal(testModule, module, "wrapped errors should keep their module")
	require.EqualValues(2, code, "wrapped errors should keep their code")

	module, code = Code(fmt.Errorf("plain error"))
	require.Equal(UnknownModule, module)
	require.EqualValues(1, code)
}

func TestDuplicateRegistration(t *testing.T) {
	require := require.New(t)

	require.Panics(func() { _ = New(testModule, 1, "duplicate") }, "duplicate registration should panic")
	require.Panics(func() { _ = New(testModule, CodeNoError, "no error") }, "reserved code should panic")
}

func TestFromCode(t *testing.T) {
	require := require.New(t)

	err := FromCode(testModule, 1, errTestA.Error())
	require.True(Is(err, errTestA), "registered error should be reconstructed")

	err = FromCode(testModule, 2, errTestB.Error()+": some context")
	require.True(Is(err, errTestB), "registered error with context should be reconstructed")
	require.Equal("some context", Context(err))

	err = FromCode(testModule, 42, "unregistered")
	require.Equal("unregistered", err.Error())
	module, code := Code(err)
	require.Equal(testModule, module)
	require.EqualValues(42, code)
}

func TestWithContext(t *testing.T) {
	require := require.New(t)

	require.Equal(errTestA, WithContext(errTestA, ""), "empty context should not wrap")

	err := WithContext(errTestA, "detail")
	require.True(Is(err, errTestA))
	require.Equal("test: error a: detail", err.Error())
	require.Equal("detail", Context(err))
	require.Equal("", Context(errTestA))

	module, code := Code(err)
	require.Equal(testModule, module)
	require.EqualValues(1, code)
}
