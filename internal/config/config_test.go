package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("OUTBOX_ENABLED", "true")
	t.Setenv("TOKEN_TTL", "not-a-duration")

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Empty(t, cfg.PostgresURL)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.OutboxEnabled)
	require.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	require.Equal(t, []string{"measurement_events"}, cfg.ConsumerTopics)
}

func TestProviderValidate(t *testing.T) {
	cases := map[string]struct {
		key string
		ok  bool
	}{
		"missing":    {key: "", ok: false},
		"short":      {key: "abc", ok: false},
		"whitespace": {key: "abcdefgh ijklmnopq", ok: false},
		"valid":      {key: "AIzaSyD-abcdefghijklmnop", ok: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Provider{APIKey: tc.key}.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidAPIKey)
		})
	}
}

func TestLoadProviderFromEnv(t *testing.T) {
	t.Setenv("MEDIDAS_API_KEY", "key-0123456789abcdef")
	t.Setenv("MEDIDAS_PROJECT_ID", "medidas-prod")

	cfg := Load()
	require.Equal(t, "key-0123456789abcdef", cfg.Provider.APIKey)
	require.Equal(t, "medidas-prod", cfg.Provider.ProjectID)
	require.NoError(t, cfg.Provider.Validate())
}

func TestClientConfigRoundTrip(t *testing.T) {
	home := t.TempDir()
	path := DefaultClientPath(home)

	cfg, err := LoadClient(path, home)
	require.NoError(t, err)
	require.Equal(t, DefaultClient(home), cfg)

	cfg.ServerURL = "https://medidas.example.com"
	cfg.Timeout = 3 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadClient(path, home)
	require.NoError(t, err)
	require.Equal(t, "https://medidas.example.com", loaded.ServerURL)
	require.Equal(t, 3*time.Second, loaded.Timeout)
	require.Equal(t, filepath.Join(home, ".medidas"), loaded.DataDir)
}
