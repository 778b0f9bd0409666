package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/se302/webtest/pkg/notify"
)

func Test_newValuesLoader(t *testing.T) {
	loader := newValuesLoader(defaultsFS)
	assert.NotNil(t, loader)
}

func TestValuesLoader_Load_EmbeddedOnly(t *testing.T) {
	loader := newValuesLoader(defaultsFS)
	values, err := loader.Load("", "")
	require.NoError(t, err)

	assert.Equal(t, 3001, values.Port)
	assert.Equal(t, ".", values.ProjectDir)
	assert.Equal(t, "tests", values.TestsDir)
	assert.Equal(t, []string{"functional", "smoke"}, values.Categories)
	assert.Equal(t, "node_modules/.bin/playwright", values.RunnerCommand)
	assert.Equal(t, "chromium", values.Project)
	assert.Equal(t, 1, values.Workers)
	assert.Equal(t, "list", values.Reporter)
	assert.Equal(t, "test-results", values.ResultsDir)
	assert.Equal(t, "reports/runs", values.RunsDir)
	assert.Equal(t, 50, values.HistorySize)
	assert.Equal(t, ".env", values.CredentialsFile)
	assert.Equal(t, []string{"IUS_USERNAME", "IUS_PASSWORD"}, values.CredentialKeys)
	assert.False(t, values.Observers)
	assert.True(t, values.ObserversSet)
	assert.True(t, values.Watch)
	assert.True(t, values.WatchSet)
	assert.Equal(t, 10000, values.Notify.TimeoutMs)
	assert.Equal(t, 25, values.Notify.SMTPPort)
	assert.True(t, values.Notify.OnError)
	assert.False(t, values.Notify.OnComplete)
}

func TestValuesLoader_Load_GlobalOnly(t *testing.T) {
	globalConfig := filepath.Join(t.TempDir(), "config")
	configContent := `
port = 4000
runner_command = npx
workers = 4
`
	require.NoError(t, os.WriteFile(globalConfig, []byte(configContent), 0o600))

	values, err := newValuesLoader(defaultsFS).Load("", globalConfig)
	require.NoError(t, err)

	// values from global config
	assert.Equal(t, 4000, values.Port)
	assert.Equal(t, "npx", values.RunnerCommand)
	assert.Equal(t, 4, values.Workers)

	// values from embedded defaults
	assert.Equal(t, "chromium", values.Project)
	assert.Equal(t, "list", values.Reporter)
}

func TestValuesLoader_Load_LocalOverridesGlobal(t *testing.T) {
	tmpDir := t.TempDir()
	globalConfig := filepath.Join(tmpDir, "global")
	localConfig := filepath.Join(tmpDir, "local")
	require.NoError(t, os.WriteFile(globalConfig, []byte("project = firefox\nworkers = 2\nwatch = false\n"), 0o600))
	require.NoError(t, os.WriteFile(localConfig, []byte("workers = 3\nwatch = true\n"), 0o600))

	values, err := newValuesLoader(defaultsFS).Load(localConfig, globalConfig)
	require.NoError(t, err)
	assert.Equal(t, "firefox", values.Project)
	assert.Equal(t, 3, values.Workers)
	assert.True(t, values.Watch, "explicit true in local wins over global false")
}

func TestValuesLoader_Load_NonExistentFile(t *testing.T) {
	values, err := newValuesLoader(defaultsFS).Load("/nonexistent/local", "/nonexistent/global")
	require.NoError(t, err)
	assert.Equal(t, 3001, values.Port)
}

func TestValuesLoader_Load_BothAllCommentedFallsBackToEmbedded(t *testing.T) {
	tmpDir := t.TempDir()
	globalConfig := filepath.Join(tmpDir, "global")
	localConfig := filepath.Join(tmpDir, "local")
	require.NoError(t, os.WriteFile(globalConfig, []byte("# port = 1\n"), 0o600))
	require.NoError(t, os.WriteFile(localConfig, []byte("; workers = 9\n\n"), 0o600))

	values, err := newValuesLoader(defaultsFS).Load(localConfig, globalConfig)
	require.NoError(t, err)
	assert.Equal(t, 3001, values.Port)
	assert.Equal(t, 1, values.Workers)
}

func TestValuesLoader_parseValuesFromFile_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte("port = 1\n"), 0o000))

	_, err := newValuesLoader(defaultsFS).parseValuesFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValuesLoader_parseValuesFromBytes(t *testing.T) {
	loader := newValuesLoader(defaultsFS)

	t.Run("lists and urls with hash", func(t *testing.T) {
		data := []byte(`
categories = functional, smoke , ,regression
credential_keys = A,B
notify_channels = webhook, email
notify_webhook_urls = https://hooks.example.com/x#frag
notify_email_to = a@example.com, b@example.com
notify_smtp_starttls = true
`)
		v, err := loader.parseValuesFromBytes(data)
		require.NoError(t, err)
		assert.Equal(t, []string{"functional", "smoke", "regression"}, v.Categories)
		assert.Equal(t, []string{"A", "B"}, v.CredentialKeys)
		assert.Equal(t, []string{"webhook", "email"}, v.Notify.Channels)
		assert.Equal(t, []string{"https://hooks.example.com/x#frag"}, v.Notify.WebhookURLs)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, v.Notify.EmailTo)
		assert.True(t, v.Notify.SMTPStartTLS)
		assert.True(t, v.NotifyStartTLSSet)
	})

	t.Run("empty values are unset", func(t *testing.T) {
		v, err := loader.parseValuesFromBytes([]byte("port =\nobservers =\nproject =\n"))
		require.NoError(t, err)
		assert.Zero(t, v.Port)
		assert.False(t, v.ObserversSet)
		assert.Empty(t, v.Project)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			data    string
			errText string
		}{
			{"workers = many", "invalid workers"},
			{"history_size = 0", "must be at least 1"},
			{"notify_timeout_ms = -5", "invalid notify_timeout_ms"},
			{"watch = perhaps", "invalid watch"},
			{"notify_on_error = 2", "invalid notify_on_error"},
		}
		for _, tc := range tests {
			_, err := loader.parseValuesFromBytes([]byte(tc.data))
			require.Error(t, err, tc.data)
			assert.Contains(t, err.Error(), tc.errText, tc.data)
		}
	})
}

func TestValues_mergeFrom(t *testing.T) {
	t.Run("merge non-empty values", func(t *testing.T) {
		dst := Values{RunnerCommand: "dst-runner", Project: "chromium", Workers: 1}
		src := Values{RunnerCommand: "src-runner", Workers: 4}
		dst.mergeFrom(&src)

		assert.Equal(t, "src-runner", dst.RunnerCommand)
		assert.Equal(t, 4, dst.Workers)
		assert.Equal(t, "chromium", dst.Project)
	})

	t.Run("explicit false overrides true", func(t *testing.T) {
		dst := Values{Watch: true, WatchSet: true, Observers: true, ObserversSet: true}
		src := Values{Watch: false, WatchSet: true}
		dst.mergeFrom(&src)

		assert.False(t, dst.Watch)
		assert.True(t, dst.Observers, "unset bool doesn't overwrite")
	})

	t.Run("notify fields", func(t *testing.T) {
		dst := Values{Notify: notify.Params{OnError: true, TimeoutMs: 10000, SMTPPort: 25}, NotifyOnErrorSet: true}
		src := Values{
			Notify:           notify.Params{Channels: []string{"slack"}, SlackToken: "tok", SlackChannel: "#runs", OnError: false},
			NotifyOnErrorSet: true,
		}
		dst.mergeFrom(&src)

		assert.Equal(t, []string{"slack"}, dst.Notify.Channels)
		assert.Equal(t, "tok", dst.Notify.SlackToken)
		assert.Equal(t, "#runs", dst.Notify.SlackChannel)
		assert.False(t, dst.Notify.OnError)
		assert.Equal(t, 10000, dst.Notify.TimeoutMs)
		assert.Equal(t, 25, dst.Notify.SMTPPort)
	})
}
