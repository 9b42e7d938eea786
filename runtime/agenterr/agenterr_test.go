package agenterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotFoundWrapsSentinel(t *testing.T) {
	err := NotFound("capability", "social")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, IsNotFound(err))
	require.EqualError(t, err, `capability "social": not found`)
}

func TestExpiredWrapsSentinel(t *testing.T) {
	err := Expired("s1")
	require.True(t, IsExpired(err))
	require.False(t, IsNotFound(err))
}

func TestDependencyViolation(t *testing.T) {
	err := DependencyViolation("b", "a")
	require.ErrorIs(t, err, ErrDependencyViolation)
	require.Contains(t, err.Error(), `step "b" requires "a"`)
}

func TestOperationErrorChain(t *testing.T) {
	root := errors.New("backend unavailable")
	err := Operation("project", "create", `name="Q3"`, fmt.Errorf("create project: %w", root), "")

	require.ErrorIs(t, err, root)
	require.Equal(t, "project.create: create project: backend unavailable", err.Error())

	var oe *OperationError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &oe)
	require.Equal(t, "project", oe.Capability)
}

func TestOperationErrorDefaultMessage(t *testing.T) {
	err := Operation("social", "", "", nil, "")
	require.Equal(t, "social: operation failed", err.Error())
	require.Nil(t, err.Unwrap())
}

func TestFromErrorKeepsExistingContext(t *testing.T) {
	orig := Operation("campaign", "generate", "", errors.New("x"), "")
	got := FromError("workflow", "step", "", fmt.Errorf("step 2: %w", orig))
	require.Same(t, orig, got)

	wrapped := FromError("document", "continue", "hi", errors.New("y"))
	require.Equal(t, "document", wrapped.Capability)
	require.Equal(t, "hi", wrapped.Input)

	require.Nil(t, FromError("a", "b", "", nil))
}

func TestRetry(t *testing.T) {
	e := &OperationError{Command: "/project", Input: `name="Launch"`}
	require.Equal(t, `/project name="Launch"`, e.Retry())
	e.Input = ""
	require.Equal(t, "/project", e.Retry())
	e.Command = ""
	e.Input = "create a project"
	require.Equal(t, "create a project", e.Retry())

	var nilErr *OperationError
	require.Empty(t, nilErr.Retry())
	require.Empty(t, nilErr.Error())
}
