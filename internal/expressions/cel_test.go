package expressions

import (
	"context"
	"sync"
	"testing"

	"github.com/rendis/flowbuilder/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCELEngine(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	assert.Equal(t, "cel", e.Name())
}

func TestCELEngine_ImplementsEngine(t *testing.T) {
	var _ Engine = (*CELEngine)(nil)
}

// --- CheckCondition ---

func TestCEL_CheckCondition(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	tests := []struct {
		label   string
		expr    string
		wantErr bool
	}{
		{label: "wrapped comparison", expr: "${approved == true}"},
		{label: "hash wrapper", expr: "#{amount > 1000}"},
		{label: "bare logic", expr: "status == 'open' && priority > 2"},
		{label: "unknown identifiers allowed", expr: "${customer.tier == 'gold'}"},
		{label: "empty", expr: "${ }", wantErr: true},
		{label: "dangling operator", expr: "${approved ==}", wantErr: true},
		{label: "unbalanced parens", expr: "(a && b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			err := e.CheckCondition(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUnwrapCondition(t *testing.T) {
	assert.Equal(t, "a == b", UnwrapCondition("  ${ a == b }  "))
	assert.Equal(t, "x", UnwrapCondition("#{x}"))
	assert.Equal(t, "plain", UnwrapCondition("plain"))
	assert.Equal(t, "${open", UnwrapCondition("${open"))
}

// --- Evaluate ---

func TestCEL_EvaluateBool(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	ok, err := e.EvaluateBool(context.Background(), "${approved == true && region == 'eu'}", map[string]any{
		"approved": true,
		"region":   "eu",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool(context.Background(), "${approved}", map[string]any{"approved": false})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCEL_EvaluateUndeclared(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "${missing == 1}", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestCEL_EvaluateNonBool(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.EvaluateBool(context.Background(), "${name}", map[string]any{"name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want bool")
}

func TestCEL_CacheSeparatesVariableSets(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "a", map[string]any{"a": true})
	require.NoError(t, err)
	out, err := e.Evaluate(context.Background(), "a", map[string]any{"a": "s", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, "s", out)
	assert.Len(t, e.cache, 2)
}

func TestCEL_ConcurrentEvaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := e.EvaluateBool(context.Background(), "${flag}", map[string]any{"flag": true})
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}
