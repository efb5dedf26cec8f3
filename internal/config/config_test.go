package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid() Settings {
	return Settings{
		Driver:   "kasa",
		Address:  "192.168.1.50",
		Username: "admin",
		Password: "secret",
	}
}

func TestValidateAcceptsCommonAddressForms(t *testing.T) {
	for _, addr := range []string{
		"192.168.1.50",
		"192.168.1.50:9999",
		"plug.local",
		"desk-plug",
		"switch.home.example.com:80",
		"2001:db8::1",
		"[2001:db8::1]:9999",
	} {
		s := valid()
		s.Address = addr
		assert.NoError(t, Validate(s), addr)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*Settings)
		field string
	}{
		{"empty address", func(s *Settings) { s.Address = "" }, "address"},
		{"bad port", func(s *Settings) { s.Address = "192.168.1.50:99999" }, "address"},
		{"zero port", func(s *Settings) { s.Address = "plug.local:0" }, "address"},
		{"underscore host", func(s *Settings) { s.Address = "desk_plug" }, "address"},
		{"malformed ipv6", func(s *Settings) { s.Address = "2001:db8:::1" }, "address"},
		{"leading dash label", func(s *Settings) { s.Address = "-plug.local" }, "address"},
		{"empty label", func(s *Settings) { s.Address = "plug..local" }, "address"},
		{"empty username", func(s *Settings) { s.Username = "" }, "username"},
		{"empty password", func(s *Settings) { s.Password = "" }, "password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid()
			tc.mut(&s)
			err := Validate(s)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	s := Normalize(Settings{Address: "192.168.1.50", RetryDelayMs: -5})

	assert.Equal(t, DefaultDriver, s.Driver)
	assert.Equal(t, DefaultShutdownTimeoutSeconds, s.ShutdownTimeoutSeconds)
	assert.Equal(t, DefaultRetryAttempts, s.RetryAttempts)
	assert.Equal(t, DefaultRetryDelayMs, s.RetryDelayMs)
	assert.Equal(t, DefaultMaxRetryDelayMs, s.MaxRetryDelayMs)
	assert.Equal(t, DefaultHealthCheckSeconds, s.HealthCheckSeconds)
	assert.Equal(t, "192.168.1.50", s.Address, "normalize must not touch the address")
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	s := Normalize(Settings{Driver: "elgato", RetryAttempts: 7, RetryDelayMs: 500})
	assert.Equal(t, "elgato", s.Driver)
	assert.Equal(t, 7, s.RetryAttempts)
	assert.Equal(t, 500, s.RetryDelayMs)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	st, err := OpenPath(path)
	require.NoError(t, err)

	want := valid()
	want.RetryAttempts = 5
	want.StartMinimized = true
	require.NoError(t, st.SetSettings(want))

	reopened, err := OpenPath(path)
	require.NoError(t, err)
	got := reopened.Settings()
	assert.Equal(t, want.Address, got.Address)
	assert.Equal(t, 5, got.RetryAttempts)
	assert.True(t, got.StartMinimized)

	// No stray temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStoreMissingFileYieldsDefaults(t *testing.T) {
	st, err := OpenPath(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	s := st.Settings()
	assert.Equal(t, DefaultDriver, s.Driver)
	assert.Equal(t, DefaultRetryDelayMs, s.RetryDelayMs)
	assert.Empty(t, s.Address)
}

func TestStoreCorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := OpenPath(path)
	require.Error(t, err)
}
