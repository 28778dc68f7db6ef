package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paper = "The transformer relies on attention. Attention lets the transformer relate tokens."

// setupTestEnv writes a config using a temporary badger store and a fake
// chat server, and returns the paper path and the number of chat calls.
func setupTestEnv(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	dir := t.TempDir()

	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "It uses attention."}}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := fmt.Sprintf(`embedder:
  type: lexical
vector_store:
  type: badger
  path: %s
generator:
  base_url: %s/v1
  api_key_env: PAPERRAG_TEST_NO_KEY
`, filepath.Join(dir, "db"), srv.URL)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	paperPath := filepath.Join(dir, "paper.txt")
	require.NoError(t, os.WriteFile(paperPath, []byte(paper), 0o644))

	cfgFile = cfgPath
	t.Cleanup(func() { cfgFile = "" })
	return paperPath, calls
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	collection, verbose, timeout = "", false, time.Minute
	reindex, nResults, model, showCtx = false, 0, "", false
	targetLang, noContext = "Spanish", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestIndexSearchAndCount(t *testing.T) {
	paperPath, _ := setupTestEnv(t)

	out, err := runCmd(t, "index", paperPath)
	require.NoError(t, err)
	assert.Contains(t, out, "paper.txt")
	assert.Contains(t, out, "1 chunks")

	out, err = runCmd(t, "index", paperPath)
	require.NoError(t, err)
	assert.Contains(t, out, "already indexed")

	out, err = runCmd(t, "collection", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "research_papers: 1 chunks")

	out, err = runCmd(t, "search", "transformer", "attention")
	require.NoError(t, err)
	assert.Contains(t, out, "[CONTEXT 1 | Source: paper.txt")
	assert.Contains(t, out, "(relevant)")

	_, err = runCmd(t, "collection", "delete")
	require.NoError(t, err)
	out, err = runCmd(t, "collection", "count")
	require.NoError(t, err)
	assert.Contains(t, out, "research_papers: 0 chunks")
}

func TestAskUsesGenerator(t *testing.T) {
	paperPath, calls := setupTestEnv(t)
	_, err := runCmd(t, "index", paperPath)
	require.NoError(t, err)

	out, err := runCmd(t, "ask", "transformer attention", "--show-context")
	require.NoError(t, err)
	assert.Contains(t, out, "It uses attention.")
	assert.Contains(t, out, "Sources:")
	assert.EqualValues(t, 1, calls.Load())
}

func TestAskWithEmptyCollectionSkipsGenerator(t *testing.T) {
	_, calls := setupTestEnv(t)

	out, err := runCmd(t, "ask", "what is attention?")
	require.NoError(t, err)
	assert.Contains(t, out, "couldn't find relevant information")
	assert.EqualValues(t, 0, calls.Load())
}

func TestTranslateRejectsUnknownLanguage(t *testing.T) {
	setupTestEnv(t)

	_, err := runCmd(t, "translate", "--lang", "Klingon", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Klingon")
}

func TestLanguages(t *testing.T) {
	setupTestEnv(t)

	out, err := runCmd(t, "languages")
	require.NoError(t, err)
	assert.Contains(t, out, "Hindi")
	assert.Contains(t, out, "Spanish")
}
