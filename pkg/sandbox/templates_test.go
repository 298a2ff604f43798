package sandbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTemplateByExplicitName(t *testing.T) {
	tpl := ResolveTemplate("node-api", "irrelevant query")
	require.Equal(t, "node-api", tpl.Name)
}

func TestResolveTemplateScoresKeywords(t *testing.T) {
	tpl := ResolveTemplate("", "build me a REST backend API server")
	require.Equal(t, "node-api", tpl.Name)
}

func TestResolveTemplateFallsBackToReactVite(t *testing.T) {
	tpl := ResolveTemplate("", "something with no matching keywords at all")
	require.Equal(t, "react-vite", tpl.Name)
}

func TestResolveTemplateUnknownExplicitNameFallsBackToScoring(t *testing.T) {
	tpl := ResolveTemplate("does-not-exist", "a frontend dashboard app")
	require.Equal(t, "react-vite", tpl.Name)
}
