package secrets_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
	"github.com/zatekoja/databaseguru/backend/pkg/secrets"
)

func vaultServer(t *testing.T, status int, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "/v1/secret/data/databaseguru", r.URL.Path)
		assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func vaultConfig(addr string) secrets.VaultConfig {
	return secrets.VaultConfig{
		Enabled:   true,
		Addr:      addr,
		Token:     "root-token",
		Mount:     "secret",
		Path:      "databaseguru",
		KVVersion: 2,
		Timeout:   time.Second,
	}
}

func TestApplyVaultSecrets_ExportsKeys(t *testing.T) {
	var hits int32
	srv := vaultServer(t, http.StatusOK, `{"data":{"data":{
		"DBG_TEST_CONNECTIONS":"sales=postgres:postgres://u:p@db/sales",
		"DBG_TEST_MAX_RETRIES":5,
		"DBG_TEST_PRESET":"from-vault"}}}`, &hits)
	t.Setenv("DBG_TEST_CONNECTIONS", "")
	t.Setenv("DBG_TEST_MAX_RETRIES", "")
	t.Setenv("DBG_TEST_PRESET", "from-env")

	result, err := secrets.ApplyVaultSecrets(context.Background(), vaultConfig(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, []string{"DBG_TEST_CONNECTIONS", "DBG_TEST_MAX_RETRIES"}, result.Loaded)
	assert.Equal(t, []string{"DBG_TEST_PRESET"}, result.Skipped)
	assert.Equal(t, "sales=postgres:postgres://u:p@db/sales", os.Getenv("DBG_TEST_CONNECTIONS"))
	assert.Equal(t, "5", os.Getenv("DBG_TEST_MAX_RETRIES"))
	assert.Equal(t, "from-env", os.Getenv("DBG_TEST_PRESET"))
}

func TestApplyVaultSecrets_KeyAllowlistAndOverwrite(t *testing.T) {
	var hits int32
	srv := vaultServer(t, http.StatusOK, `{"data":{"data":{"DBG_TEST_A":"a","DBG_TEST_B":"b"}}}`, &hits)
	t.Setenv("DBG_TEST_A", "old")
	t.Setenv("DBG_TEST_B", "")

	cfg := vaultConfig(srv.URL)
	cfg.Overwrite = true
	cfg.Keys = []string{"DBG_TEST_A"}

	result, err := secrets.ApplyVaultSecrets(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"DBG_TEST_A"}, result.Loaded)
	assert.Equal(t, "a", os.Getenv("DBG_TEST_A"))
	assert.Empty(t, os.Getenv("DBG_TEST_B"))
}

func TestApplyVaultSecrets_Disabled(t *testing.T) {
	result, err := secrets.ApplyVaultSecrets(context.Background(), secrets.VaultConfig{})
	require.NoError(t, err)
	assert.False(t, result.Enabled)
}

func TestApplyVaultSecrets_Incomplete(t *testing.T) {
	_, err := secrets.ApplyVaultSecrets(context.Background(), secrets.VaultConfig{Enabled: true})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestApplyVaultSecrets_ClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := vaultServer(t, http.StatusForbidden, `{"errors":["permission denied"]}`, &hits)

	_, err := secrets.ApplyVaultSecrets(context.Background(), vaultConfig(srv.URL))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestApplyVaultSecrets_ServerErrorIsRetried(t *testing.T) {
	var hits int32
	srv := vaultServer(t, http.StatusServiceUnavailable, `sealed`, &hits)

	_, err := secrets.ApplyVaultSecrets(context.Background(), vaultConfig(srv.URL))
	require.Error(t, err)
	assert.Greater(t, atomic.LoadInt32(&hits), int32(1))
}
