package cronrunner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal_automation/internal/llm"
	"portal_automation/internal/portal"
)

func noEnv(string) string { return "" }

func TestClientFactoryUsesPersistedSettings(t *testing.T) {
	doc, err := portal.ParseDocument([]byte(`{
		"ai_settings": {"gemini": {"api_key": "saved-key", "model": "gemini-2.0-flash", "models": {"blog": "gemini-2.5-pro"}}}
	}`))
	require.NoError(t, err)

	gen, err := NewClientFactory(ClientSettings{Getenv: noEnv})(context.Background(), doc)
	require.NoError(t, err)
	client, ok := gen.(*llm.Client)
	require.True(t, ok)

	assert.Equal(t, "saved-key", client.Settings().APIKey)
	assert.Equal(t, "gemini-2.0-flash", client.Resolve(llm.TaskNewsDigest).Model)
	assert.Equal(t, "gemini-2.5-pro", client.Resolve(llm.TaskBlogResearch).Model)
	assert.Equal(t, llm.ProviderGemini, client.Provider())
}

func TestClientFactoryExplicitLayerWins(t *testing.T) {
	doc, err := portal.ParseDocument([]byte(`{"ai_settings": {"gemini": {"api_key": "saved-key"}}}`))
	require.NoError(t, err)
	creds := filepath.Join(t.TempDir(), "api.txt")
	require.NoError(t, os.WriteFile(creds, []byte("GEMINI_MODEL=file-model\n"), 0o600))

	gen, err := NewClientFactory(ClientSettings{
		Explicit:        llm.Layer{APIKey: "flag-key"},
		CredentialsPath: creds,
		Getenv:          noEnv,
	})(context.Background(), doc)
	require.NoError(t, err)
	client := gen.(*llm.Client)
	assert.Equal(t, "flag-key", client.Settings().APIKey)
	assert.Equal(t, "file-model", client.Settings().DefaultModel)
}

func TestClientFactoryWithoutCredentials(t *testing.T) {
	gen, err := NewClientFactory(ClientSettings{Getenv: noEnv})(context.Background(), portal.NewDocument())
	assert.Nil(t, gen)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrConfigurationMissing))
	assert.False(t, llm.IsRetryable(err))
}
