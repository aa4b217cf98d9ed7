package disbursement

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrbenefits/internal/domain/benefits"
	"hrbenefits/internal/platform/config"
)

func TestClientSubmitBatch(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/batches", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"reference":"PRV-9","status":"processing"}`))
	}))
	defer srv.Close()

	client := NewClient(Settings{BaseURL: srv.URL + "/v1/", APIKey: "secret"}, srv.Client())
	receipt, err := client.SubmitBatch(context.Background(), benefits.Batch{
		ID:            "batch-1",
		TotalAmount:   decimal.RequireFromString("700"),
		EmployeeCount: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "PRV-9", receipt.Reference)
	assert.Equal(t, benefits.ProviderStatusProcessing, receipt.Status)
	assert.Equal(t, "batch-1", got.BatchID)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(700)))
	assert.Equal(t, 2, got.EmployeeCount)
}

func TestClientSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(Settings{BaseURL: srv.URL}, srv.Client())
	_, err := client.SubmitBatch(context.Background(), benefits.Batch{ID: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestClientBatchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/batches/PRV-1":
			_, _ = w.Write([]byte(`{"status":"Completed"}`))
		default:
			_, _ = w.Write([]byte(`{"status":"settled"}`))
		}
	}))
	defer srv.Close()

	client := NewClient(Settings{BaseURL: srv.URL}, srv.Client())
	status, err := client.BatchStatus(context.Background(), "PRV-1")
	require.NoError(t, err)
	assert.Equal(t, benefits.ProviderStatusCompleted, status)

	_, err = client.BatchStatus(context.Background(), "PRV-2")
	require.True(t, errors.Is(err, benefits.ErrInvalidProviderStatus))
}

func TestClientHonoursTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Settings{BaseURL: srv.URL}, &http.Client{Timeout: 10 * time.Millisecond})
	_, err := client.BatchStatus(context.Background(), "PRV-1")
	require.Error(t, err)
}

func TestSandbox(t *testing.T) {
	sandbox := NewSandbox()
	receipt, err := sandbox.SubmitBatch(context.Background(), benefits.Batch{ID: "b1", TotalAmount: decimal.NewFromInt(10), EmployeeCount: 1})
	require.NoError(t, err)
	assert.Equal(t, "SBX-b1", receipt.Reference)

	status, err := sandbox.BatchStatus(context.Background(), receipt.Reference)
	require.NoError(t, err)
	assert.Equal(t, benefits.ProviderStatusCompleted, status)

	_, err = sandbox.BatchStatus(context.Background(), "SBX-unknown")
	require.Error(t, err)
}

func TestLoadSettingsFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"provider.yaml": "base_url: https://pay.example.com\napi_key: y-key\ntimeout: 5s\n",
		"provider.toml": "base_url = \"https://pay.example.com\"\napi_key = \"t-key\"\ntimeout = \"5s\"\n",
		"provider.json": `{"base_url":"https://pay.example.com","api_key":"j-key","timeout":"5s"}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		settings, err := LoadSettings(path)
		require.NoError(t, err, name)
		assert.Equal(t, "https://pay.example.com", settings.BaseURL, name)
		assert.Equal(t, "5s", settings.Timeout, name)
		assert.NotEmpty(t, settings.APIKey, name)
	}

	bad := filepath.Join(dir, "provider.ini")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))
	_, err := LoadSettings(bad)
	require.Error(t, err)
	_, err = LoadSettings(dir)
	require.Error(t, err)
}

func TestNewSelectsProvider(t *testing.T) {
	provider, err := New(config.Config{DisbursementProvider: config.ProviderSandbox})
	require.NoError(t, err)
	assert.IsType(t, &Sandbox{}, provider)

	dir := t.TempDir()
	path := filepath.Join(dir, "provider.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://pay.example.com\ntimeout: 2s\n"), 0o600))
	provider, err = New(config.Config{
		DisbursementProvider:   config.ProviderHTTP,
		DisbursementConfigFile: path,
		DisbursementTimeout:    time.Second,
	})
	require.NoError(t, err)
	client, ok := provider.(*Client)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, client.http.Timeout)
	assert.Equal(t, defaultSubmitPath, client.settings.SubmitPath)

	_, err = New(config.Config{DisbursementProvider: config.ProviderHTTP})
	require.Error(t, err)
	_, err = New(config.Config{DisbursementProvider: "bank"})
	require.Error(t, err)
}
