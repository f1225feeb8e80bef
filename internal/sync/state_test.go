package sync

import (
	"errors"
	"testing"

	"github.com/codectx/codectx/internal/apperrors"
	"github.com/stretchr/testify/assert"
)

func TestClassify_MapsGitErrorsToNetwork(t *testing.T) {
	err := apperrors.Wrap(apperrors.KindGit, "test", errors.New("boom"))
	assert.Equal(t, ErrorTypeNetwork, classify(err))
}

func TestClassify_MapsAccessDeniedToAuth(t *testing.T) {
	err := apperrors.AccessDenied("test", "nope")
	assert.Equal(t, ErrorTypeAuth, classify(err))
}

func TestClassify_UnclassifiedErrorFallsBackToOther(t *testing.T) {
	assert.Equal(t, ErrorTypeOther, classify(errors.New("plain")))
}
