package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := t.Context()

	res, err := engine.Evaluate(ctx, Request{Backend: "duckduckgo", Query: "go generics"})
	require.NoError(t, err)
	assert.True(t, res.Allowed())

	engine.DenyBackend("serpapi")
	res, err = engine.Evaluate(ctx, Request{Backend: "serpapi", Query: "go generics"})
	require.NoError(t, err)
	assert.Equal(t, EffectDeny, res.Effect)
	assert.Contains(t, res.Reason, "serpapi")
}

func TestDenyQuery(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	require.NoError(t, engine.DenyQuery(`(?i)password|api[_ ]?key`))

	res, err := engine.Evaluate(t.Context(), Request{Backend: "page", Query: "leaked API key list"})
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	res, err = engine.Evaluate(t.Context(), Request{Backend: "page", Query: "key lime pie"})
	require.NoError(t, err)
	assert.True(t, res.Allowed())

	assert.Error(t, engine.DenyQuery("("))
}

func TestFromConfig(t *testing.T) {
	engine, err := FromConfig([]string{"page"}, []string{`internal\.corp`})
	require.NoError(t, err)

	res, _ := engine.Evaluate(t.Context(), Request{Backend: "page", Query: "anything"})
	assert.False(t, res.Allowed())
	res, _ = engine.Evaluate(t.Context(), Request{Backend: "duckduckgo", Query: "wiki.internal.corp"})
	assert.False(t, res.Allowed())

	_, err = FromConfig(nil, []string{"["})
	assert.Error(t, err)
}
