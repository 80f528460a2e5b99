package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "company_wiki", cfg.Database.Name)
	assert.Equal(t, []string{"http://localhost:9200"}, cfg.Search.Addresses)
	assert.Equal(t, "wiki_", cfg.Search.IndexPrefix)
	assert.Equal(t, "false", cfg.Search.Refresh)
	assert.Equal(t, 10, cfg.Search.DefaultPageSize)
	assert.Equal(t, 100, cfg.Search.MaxPageSize)
	assert.Equal(t, 10000, cfg.Search.MaxResultWindow)
	assert.Equal(t, 5*time.Second, cfg.Search.SyncTimeout)
	assert.Equal(t, 1, cfg.Jobs.MaxWorkers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ES_ADDRESSES", " http://es1:9200, ,http://es2:9200 ")
	t.Setenv("ES_REFRESH", "wait_for")
	t.Setenv("ES_SYNC_TIMEOUT", "750ms")
	t.Setenv("SEARCH_MAX_PAGE_SIZE", "50")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Search.Addresses)
	assert.Equal(t, "wait_for", cfg.Search.Refresh)
	assert.Equal(t, 750*time.Millisecond, cfg.Search.SyncTimeout)
	assert.Equal(t, 50, cfg.Search.MaxPageSize)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns, "unparsable values fall back to the default")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad refresh", map[string]string{"ES_REFRESH": "sometimes"}, "ES_REFRESH"},
		{"default above max", map[string]string{"SEARCH_DEFAULT_PAGE_SIZE": "200"}, "SEARCH_DEFAULT_PAGE_SIZE"},
		{"zero page size", map[string]string{"SEARCH_MAX_PAGE_SIZE": "0"}, "page sizes"},
		{"window below page size", map[string]string{"SEARCH_MAX_RESULT_WINDOW": "50"}, "SEARCH_MAX_RESULT_WINDOW"},
		{"no workers", map[string]string{"JOB_MAX_WORKERS": "0"}, "JOB_MAX_WORKERS"},
		{"no addresses", map[string]string{"ES_ADDRESSES": " , "}, "ES_ADDRESSES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5433", User: "wiki", Password: "pw", Name: "wiki", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=wiki password=pw dbname=wiki sslmode=require", c.GetDSN())
}
