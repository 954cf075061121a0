package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceDecisionJSON(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		js, err := CoerceDecisionJSON(`{"action": "BUY", "quantity": 5}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"action": "BUY", "quantity": 5}`, js)
	})

	t.Run("decision wrapper", func(t *testing.T) {
		js, err := CoerceDecisionJSON(`{"decision": {"action": "SELL"}, "note": "x"}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"action": "SELL"}`, js)
	})

	t.Run("markdown fence with prose", func(t *testing.T) {
		raw := "Sure!\n```json\n{\"action\": \"HOLD\", \"reason\": \"mixed\"}\n```\nLet me know."
		js, err := CoerceDecisionJSON(raw)
		require.NoError(t, err)
		assert.JSONEq(t, `{"action": "HOLD", "reason": "mixed"}`, js)
	})

	t.Run("missing action", func(t *testing.T) {
		_, err := CoerceDecisionJSON(`{"quantity": 5}`)
		assert.Error(t, err)
	})

	t.Run("no json at all", func(t *testing.T) {
		_, err := CoerceDecisionJSON("just some prose")
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := CoerceDecisionJSON("   ")
		assert.Error(t, err)
	})

	t.Run("array root rejected", func(t *testing.T) {
		_, err := CoerceDecisionJSON(`[{"action": "BUY"}]`)
		assert.Error(t, err)
	})
}

func TestExtractJSONObject(t *testing.T) {
	obj, ok := ExtractJSONObject(`prefix {"a": {"b": 1}} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, obj)

	// 字符串里的大括号不影响配平
	obj, ok = ExtractJSONObject(`x {"reason": "use {curly} braces"} y`)
	require.True(t, ok)
	assert.Equal(t, `{"reason": "use {curly} braces"}`, obj)

	// 转义引号
	obj, ok = ExtractJSONObject(`{"reason": "he said \"buy\""}`)
	require.True(t, ok)
	assert.Equal(t, `{"reason": "he said \"buy\""}`, obj)

	_, ok = ExtractJSONObject("no braces here")
	assert.False(t, ok)

	_, ok = ExtractJSONObject(`{"unbalanced": 1`)
	assert.False(t, ok)
}
