package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		require.NoError(t, os.Setenv(k, v))
	}
	t.Cleanup(func() {
		for k := range kv {
			os.Unsetenv(k)
		}
	})
}

func TestLoadDecodesRequiredFields(t *testing.T) {
	setEnv(t, map[string]string{
		"DB_NAME":      "pcrdb",
		"DB_USER":      "pcrdb",
		"DB_PASSWORD":  "secret",
		"API_BASE_URL": "https://api-pcr.example.com",
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5, cfg.Crawler.SyncNum)
	assert.Equal(t, 100, cfg.Crawler.BatchSize)
	assert.Equal(t, "https://api-pcr.example.com", cfg.Crawler.APIBaseURL)
}

func TestLoadMissingRequiredFieldErrors(t *testing.T) {
	os.Unsetenv("DB_NAME")
	os.Unsetenv("DB_USER")
	os.Unsetenv("DB_PASSWORD")
	os.Unsetenv("API_BASE_URL")

	_, err := Load("")
	assert.Error(t, err)
}

func TestDatabaseConfigConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "pcrdb", User: "u", Password: "p", SSLMode: "disable"}
	want := "host=db port=5432 dbname=pcrdb user=u password=p sslmode=disable"
	assert.Equal(t, want, d.ConnectionString())
}

func TestLoadScheduleParsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/schedule.yaml"
	yaml := `
- task_name: clan_sync
  enabled: true
  minute: "0"
  hour: "*/4"
  day_of_month: "*"
  month: "*"
  day_of_week: "*"
  params:
    new_clan_add: 100
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	entries, err := LoadSchedule(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "clan_sync", entries[0].TaskName)
	assert.True(t, entries[0].Enabled)
	assert.Equal(t, 100, entries[0].Params["new_clan_add"])
}

func TestLoadScheduleMissingFileErrors(t *testing.T) {
	_, err := LoadSchedule("/nonexistent/schedule.yaml")
	assert.Error(t, err)
}
