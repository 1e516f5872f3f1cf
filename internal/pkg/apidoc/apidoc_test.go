package apidoc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BasePath, doc.Servers[0].URL)

	for _, path := range []string{"/alerts", "/alerts/{id}/ack", "/transactions", "/payments/{id}/refunds"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	register := doc.Paths.Find("/transactions").Post
	require.NotNil(t, register)
	assert.True(t, register.RequestBody.Value.Required)
}

func TestJSON(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)
	raw, err := JSON(doc)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "3.0.3", out["openapi"])
	assert.Contains(t, out["paths"], "/alerts/{id}/resolve")
}
