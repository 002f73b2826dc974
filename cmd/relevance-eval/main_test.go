package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baconHits = `{"hits":{"hits":[
	{"_id":"1","_score":3.2,"_source":{"Description":"Turkey Bacon"}},
	{"_id":"2","_score":2.9,"_source":{"Description":"Bacon Bits"}},
	{"_id":"3","_score":2.5,"_source":{"Description":"Smoky Bacon Strips"}}
]}}`

func fakeEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/firebase/_search" {
			w.Write([]byte(baconHits))
			return
		}
		w.Write([]byte(`{"tagline":"You Know, for Search"}`))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("RE_SEARCH_BASE_URL", srv.URL)
	t.Setenv("RE_SEARCH_RETRY_MAX_ATTEMPTS", "1")
	return srv
}

func writeCases(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(args ...string) (string, string, error) {
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestMissingTestFileIsUsageError(t *testing.T) {
	_, stderr, err := execute()
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
	assert.Contains(t, stderr, "--testFilePath")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	_, _, err := execute("--bogus")
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
}

func TestUnreadableTestFileIsUsageError(t *testing.T) {
	_, _, err := execute("-f", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
}

func TestRunPrintsSummary(t *testing.T) {
	fakeEndpoint(t)
	path := writeCases(t, `"bacon" "Smoky Bacon Strips"`+"\n")

	stdout, _, err := execute("-f", path, "-n", "baseline")
	require.NoError(t, err)
	want := "\nCombined test result: 40 / 100\n(baseline)\n" + strings.Repeat("-", 80) + "\n\n"
	assert.Equal(t, want, stdout)
}

func TestRunDetailedOutput(t *testing.T) {
	fakeEndpoint(t)
	path := writeCases(t, `"bacon" "smoky bacon strips"`+"\n")

	stdout, _, err := execute("--testFilePath", path, "--detailedOutput")
	require.NoError(t, err)
	assert.Contains(t, stdout, "bacon (expecting: \"smoky bacon strips\"):\n")
	assert.Contains(t, stdout, "   Smoky Bacon Strips (id=3, score=2.5)\n")
}

func TestRunJSONOutput(t *testing.T) {
	fakeEndpoint(t)
	path := writeCases(t, `"bacon" "Bacon Bits"`+"\n")

	stdout, _, err := execute("-f", path, "--format", "json", "--strategy", "multi_match")
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "50 / 100", got["summary"])
}

func TestMalformedLineAborts(t *testing.T) {
	fakeEndpoint(t)
	path := writeCases(t, "\"bacon\" \"Smoky Bacon Strips\"\nno quotes here\n")

	stdout, _, err := execute("-f", path)
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitFailure, apperrors.ExitCode(err))
	assert.Contains(t, err.Error(), "no quotes here")
	assert.Empty(t, stdout)
}

func TestMalformedLineSkipped(t *testing.T) {
	fakeEndpoint(t)
	path := writeCases(t, "\"bacon\" \"Smoky Bacon Strips\"\nno quotes here\n")

	stdout, _, err := execute("-f", path, "--on-malformed", "skip")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Combined test result: 40 / 100\n")
}

func TestUnknownStrategyIsUsageError(t *testing.T) {
	fakeEndpoint(t)
	path := writeCases(t, `"bacon" "x"`+"\n")

	_, _, err := execute("-f", path, "--strategy", "fuzzy")
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
}

func TestConfigFileScoreTable(t *testing.T) {
	fakeEndpoint(t)
	path := writeCases(t, `"bacon" "Smoky Bacon Strips"`+"\n")
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("scoring:\n  table:\n    1: 100\n    3: 75\n"), 0o644))

	stdout, _, err := execute("-c", cfgPath, "-f", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Combined test result: 75 / 100\n")
}

func TestCheckCommand(t *testing.T) {
	fakeEndpoint(t)
	stdout, _, err := execute("check")
	require.NoError(t, err)
	assert.Contains(t, stdout, "search")
	assert.Contains(t, stdout, "overall: up")
}

func TestPreflightFailureStopsRun(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	t.Setenv("RE_SEARCH_BASE_URL", srv.URL)
	path := writeCases(t, `"bacon" "x"`+"\n")

	stdout, _, err := execute("-f", path, "--preflight")
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitFailure, apperrors.ExitCode(err))
	assert.Empty(t, stdout)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute("version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "relevance-eval dev\n"))
}
