package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsFromKind(t *testing.T) {
	err := New(KindEmbedding, "embed.Pool.Embed", "batch failed", nil)
	assert.Equal(t, KindEmbedding, err.Kind)
	assert.True(t, err.Retryable)
	assert.Equal(t, SeverityError, err.Severity)
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(KindGit, "op", nil))
}

func TestErrorIs_MatchesByKind(t *testing.T) {
	a := New(KindNotFound, "query.Resolve", "repo missing", nil)
	b := New(KindNotFound, "other.Op", "different message", nil)
	c := New(KindAccessDenied, "query.Resolve", "repo missing", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestUnwrap_ChainsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindVectorStore, "indexer.Upsert", cause)
	require.NotNil(t, err)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestWithDetailAndSuggestion_Chains(t *testing.T) {
	err := Validation("reposync.Prepare", "name must not be empty").
		WithDetail("argument", "name").
		WithSuggestion("pass --name <repo-name>")

	assert.Equal(t, "name", err.Details["argument"])
	assert.Equal(t, "pass --name <repo-name>", err.Suggestion)
}

func TestIsRetryableAndIsFatal(t *testing.T) {
	retryable := New(KindGit, "op", "network blip", nil)
	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsFatal(retryable))

	fatal := New(KindInternal, "op", "invariant violated", nil).WithSeverity(SeverityFatal)
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsRetryable(fatal))

	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestKindOf_NonAppError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
