package llm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentialsJSON(t *testing.T) {
	layer := ParseCredentials([]byte(`{
		"apiKey": "k1",
		"defaultModel": "gemini-2.0-pro",
		"api-version": "v1",
		"models": {"news": "m-news", "ops": "m-ops", "custom": "m-custom"},
		"version_map": {"blog": "v1alpha"},
		"unused": 42
	}`))

	assert.Equal(t, "k1", layer.APIKey)
	assert.Equal(t, "gemini-2.0-pro", layer.DefaultModel)
	assert.Equal(t, "v1", layer.DefaultVersion)
	assert.Equal(t, map[string]string{
		TaskNewsDigest:      "m-news",
		TaskOperationsWatch: "m-ops",
		"custom":            "m-custom",
	}, layer.Models)
	assert.Equal(t, map[string]string{TaskBlogResearch: "v1alpha"}, layer.Versions)
}

func TestParseCredentialsKeyValue(t *testing.T) {
	layer := ParseCredentials([]byte(`
# Gemini settings
GEMINI_API_KEY="abc123"
newsModel = gemini-news
blog_research_model='gemini-blog'
OPS_VERSION=v1
unknown=ignored
`))

	assert.Equal(t, "abc123", layer.APIKey)
	assert.Empty(t, layer.DefaultModel)
	assert.Equal(t, map[string]string{TaskNewsDigest: "gemini-news", TaskBlogResearch: "gemini-blog"}, layer.Models)
	assert.Equal(t, map[string]string{TaskOperationsWatch: "v1"}, layer.Versions)
}

func TestParseCredentialsBareKey(t *testing.T) {
	layer := ParseCredentials([]byte("AIzaSyExample\nmodel=gemini-x\n"))
	assert.Equal(t, "AIzaSyExample", layer.APIKey)
	assert.Equal(t, "gemini-x", layer.DefaultModel)

	assert.True(t, ParseCredentials([]byte("  \n# only comments\n")).IsZero())
}

func TestNormalizeCredentialKey(t *testing.T) {
	cases := map[string]string{
		"newsModel":         "news_model",
		"GEMINI_API_KEY":    "gemini_api_key",
		"ops-watch.model":   "ops_watch_model",
		"  defaultVersion ": "default_version",
		"v2Model":           "v2_model",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeCredentialKey(in), in)
	}
}

func TestLoadCredentialsFile(t *testing.T) {
	dir := t.TempDir()

	layer, err := LoadCredentialsFile(filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.True(t, layer.IsZero())

	path := filepath.Join(dir, "api.txt")
	require.NoError(t, os.WriteFile(path, []byte("key=from-file\n"), 0o600))
	layer, err = LoadCredentialsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", layer.APIKey)
}

func TestEnvLayer(t *testing.T) {
	env := map[string]string{
		"GOOGLE_GEMINI_API_KEY": "second",
		"GOOGLE_AI_STUDIO_KEY":  "third",
		"GEMINI_MODEL":          "gemini-env",
	}
	layer := EnvLayer(func(k string) string { return env[k] })
	assert.Equal(t, "second", layer.APIKey)
	assert.Equal(t, "gemini-env", layer.DefaultModel)
	assert.Empty(t, layer.DefaultVersion)
}

func TestMergeLayersPrecedence(t *testing.T) {
	explicit := Layer{DefaultModel: "explicit-model"}
	persisted := Layer{APIKey: "persisted-key", Models: map[string]string{"news": "persisted-news"}}
	file := Layer{
		APIKey:         "file-key",
		DefaultVersion: "v1",
		Models:         map[string]string{TaskNewsDigest: "file-news", TaskBlogResearch: "file-blog"},
	}
	env := Layer{APIKey: "env-key", DefaultModel: "env-model"}

	s := MergeLayers(explicit, persisted, file, env)
	assert.Equal(t, "persisted-key", s.APIKey)
	assert.Equal(t, "explicit-model", s.DefaultModel)
	assert.Equal(t, "v1", s.DefaultVersion)

	assert.Equal(t, ModelResolution{Model: "persisted-news", APIVersion: "v1"}, s.Resolve("news"))
	assert.Equal(t, ModelResolution{Model: "persisted-news", APIVersion: "v1"}, s.Resolve(TaskNewsDigest))
	assert.Equal(t, ModelResolution{Model: "file-blog", APIVersion: "v1"}, s.Resolve("blog"))
	assert.Equal(t, ModelResolution{Model: "explicit-model", APIVersion: "v1"}, s.Resolve("ops"))
	assert.Equal(t, ModelResolution{Model: "explicit-model", APIVersion: "v1"}, s.Resolve(""))
}

func TestMergeLayersDefaults(t *testing.T) {
	s := MergeLayers()
	assert.Empty(t, s.APIKey)
	assert.Equal(t, ModelResolution{Model: DefaultModel, APIVersion: DefaultAPIVersion}, s.Resolve("anything"))
}

func TestCanonicalTask(t *testing.T) {
	assert.Equal(t, TaskNewsDigest, CanonicalTask(" News "))
	assert.Equal(t, TaskOperationsWatch, CanonicalTask("ops"))
	assert.Equal(t, TaskOperationsWatch, CanonicalTask("operations"))
	assert.Equal(t, TaskBlogResearch, CanonicalTask("blog"))
	assert.Equal(t, "weekly", CanonicalTask("Weekly"))
}
