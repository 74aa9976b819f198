package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
listen:
  port: 9000
datadir: /tmp
stash:
  url: http://stash.local:9999
  apikey: secret-key
jellyfin:
  username: viewer
  password: hunter2
library:
  taggroups: [VR, Favourites]
auth:
  banthreshold: 5
  banwindow: 10m
`

func writeSample(t *testing.T) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "stashfin.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(sampleConfig), 0o600))
	return filename
}

func TestLoadMergesFileAndDefaults(t *testing.T) {
	s, err := Load(writeSample(t), nil)
	require.NoError(t, err)

	c := s.Get()
	assert.Equal(t, 9000, c.Listen.Port)
	assert.Equal(t, "http://stash.local:9999", c.Stash.URL)
	assert.Equal(t, 30*time.Second, c.Stash.Timeout)
	assert.Equal(t, []string{"VR", "Favourites"}, c.Library.TagGroups)
	assert.Equal(t, 5, c.Auth.BanThreshold)
	assert.Equal(t, 10*time.Minute, c.Auth.BanWindow)
	assert.Equal(t, "Stashfin", c.Jellyfin.ServerName)
}

func TestLoadEnvironmentOverrideIsReadOnly(t *testing.T) {
	t.Setenv("STASHFIN_JELLYFIN_SERVERNAME", "From Env")

	s, err := Load(writeSample(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "From Env", s.Get().Jellyfin.ServerName)
	assert.True(t, s.Views()["jellyfin.servername"].ReadOnly)

	next := s.Get()
	next.Jellyfin.ServerName = "Changed"
	_, err = s.Update(next)
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("stash:\n  url: not a url\n"), 0o600))

	_, err := Load(filename, nil)
	assert.Error(t, err)
}

func TestViewsMaskSecrets(t *testing.T) {
	s, err := Load(writeSample(t), nil)
	require.NoError(t, err)

	views := s.Views()
	assert.Equal(t, maskedSecret, views["jellyfin.password"].Value)
	assert.Equal(t, maskedSecret, views["stash.apikey"].Value)
	assert.True(t, views["listen.port"].RestartRequired)
	assert.False(t, views["library.taggroups"].RestartRequired)
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	filename := writeSample(t)
	s, err := Load(filename, nil)
	require.NoError(t, err)

	var notified Config
	s.Subscribe(func(c Config) { notified = c })

	next := Masked(s.Get())
	next.Library.TagGroups = []string{"VR"}
	next.Listen.Port = 9100

	result, err := s.Update(next)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"library.taggroups", "listen.port"}, result.Changed)
	assert.Equal(t, []string{"listen.port"}, result.RestartRequired)
	assert.Equal(t, []string{"VR"}, notified.Library.TagGroups)
	// masked secrets are kept
	assert.Equal(t, "hunter2", s.Get().Jellyfin.Password)

	reloaded, err := Load(filename, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"VR"}, reloaded.Get().Library.TagGroups)
	assert.Equal(t, "secret-key", reloaded.Get().Stash.ApiKey)
}

func TestUpdateRejectsInvalid(t *testing.T) {
	s, err := Load(writeSample(t), nil)
	require.NoError(t, err)

	next := s.Get()
	next.Auth.BanThreshold = 0
	_, err = s.Update(next)
	assert.Error(t, err)
	assert.Equal(t, 5, s.Get().Auth.BanThreshold)

	next = s.Get()
	next.Listen.TrustedProxies = []string{"10.0.0.1"}
	_, err = s.Update(next)
	assert.Error(t, err)

	next.Listen.TrustedProxies = []string{"10.0.0.0/8", "fd00::/8"}
	result, err := s.Update(next)
	require.NoError(t, err)
	assert.Equal(t, []string{"listen.trustedproxies"}, result.RestartRequired)
}

func TestMergeDecodesChanges(t *testing.T) {
	base := Default()
	base.Jellyfin.Username = "viewer"
	base.Jellyfin.Password = "hunter2"

	c, err := Merge(base, map[string]any{
		"jellyfin.servername": "Den",
		"auth.banwindow":      "5m",
		"auth.banthreshold":   float64(3),
		"library.taggroups":   []any{"VR"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Den", c.Jellyfin.ServerName)
	assert.Equal(t, 5*time.Minute, c.Auth.BanWindow)
	assert.Equal(t, 3, c.Auth.BanThreshold)
	assert.Equal(t, []string{"VR"}, c.Library.TagGroups)
	assert.Equal(t, "viewer", c.Jellyfin.Username)
	assert.Equal(t, base.Stash.URL, c.Stash.URL)

	_, err = Merge(base, map[string]any{"jellyfin.color": "blue"})
	assert.Error(t, err)
}
