package sentinel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyNoErrorsIsNone(t *testing.T) {
	require.Equal(t, DecisionNone, Classify(nil).Decision)
}

func TestClassifyLocalErrorIsCodeReview(t *testing.T) {
	result := Classify([]RuntimeError{
		{Message: "TypeError: x is not a function", FilePath: "src/App.tsx"},
	})
	require.Equal(t, DecisionCodeReview, result.Decision)
	require.Len(t, result.Errors, 1)
}

func TestClassifySystemicKeywordIsPhaseLoop(t *testing.T) {
	result := Classify([]RuntimeError{
		{Message: "Cannot find module 'react-router-dom'", FilePath: "src/main.tsx"},
	})
	require.Equal(t, DecisionPhaseLoop, result.Decision)
}

func TestClassifyMultiFileErrorsIsPhaseLoop(t *testing.T) {
	result := Classify([]RuntimeError{
		{Message: "undefined is not an object", FilePath: "src/App.tsx"},
		{Message: "undefined is not an object", FilePath: "src/components/Nav.tsx"},
	})
	require.Equal(t, DecisionPhaseLoop, result.Decision)
}

func TestClassifyDeduplicatesByMessageAndFile(t *testing.T) {
	result := Classify([]RuntimeError{
		{Message: "boom", FilePath: "src/App.tsx"},
		{Message: "boom", FilePath: "src/App.tsx"},
	})
	require.Len(t, result.Errors, 1)
}
