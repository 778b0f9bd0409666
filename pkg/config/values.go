package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/se302/webtest/pkg/notify"
)

// Values holds scalar configuration values.
// Fields ending in *Set track whether a boolean was explicitly set, so that a local
// config can override a global true with an explicit false.
type Values struct {
	Port            int
	ProjectDir      string
	TestsDir        string
	Categories      []string
	RunnerCommand   string
	Project         string
	Workers         int
	Reporter        string
	ResultsDir      string
	RunsDir         string
	HistorySize     int
	CredentialsFile string
	CredentialKeys  []string
	Observers       bool
	ObserversSet    bool
	Watch           bool
	WatchSet        bool

	Notify              notify.Params
	NotifyOnErrorSet    bool
	NotifyOnCompleteSet bool
	NotifyStartTLSSet   bool
}

// valuesLoader loads Values with embedded filesystem fallback.
type valuesLoader struct {
	embedFS embed.FS
}

func newValuesLoader(embedFS embed.FS) *valuesLoader {
	return &valuesLoader{embedFS: embedFS}
}

// Load loads values with fallback chain: local → global → embedded.
// both paths are full file paths, empty or missing files are skipped.
func (vl *valuesLoader) Load(localConfigPath, globalConfigPath string) (Values, error) {
	embedded, err := vl.parseValuesFromEmbedded()
	if err != nil {
		return Values{}, fmt.Errorf("parse embedded defaults: %w", err)
	}

	global, err := vl.parseValuesFromFile(globalConfigPath)
	if err != nil {
		return Values{}, fmt.Errorf("parse global config: %w", err)
	}

	local, err := vl.parseValuesFromFile(localConfigPath)
	if err != nil {
		return Values{}, fmt.Errorf("parse local config: %w", err)
	}

	// merge: embedded → global → local (local wins)
	result := embedded
	result.mergeFrom(&global)
	result.mergeFrom(&local)
	return result, nil
}

// parseValuesFromFile returns empty Values (not error) if the file doesn't exist
// or contains only comments and whitespace.
func (vl *valuesLoader) parseValuesFromFile(path string) (Values, error) {
	if path == "" {
		return Values{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	if err != nil {
		if os.IsNotExist(err) {
			return Values{}, nil
		}
		return Values{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if strings.TrimSpace(stripComments(string(data))) == "" {
		return Values{}, nil
	}
	return vl.parseValuesFromBytes(data)
}

func (vl *valuesLoader) parseValuesFromEmbedded() (Values, error) {
	data, err := vl.embedFS.ReadFile("defaults/config")
	if err != nil {
		return Values{}, fmt.Errorf("read embedded defaults: %w", err)
	}
	return vl.parseValuesFromBytes(data)
}

// parseValuesFromBytes parses ini data into Values. keys with empty values count as unset.
//
//nolint:gocyclo // flat list of keys, splitting would hurt readability
func (vl *valuesLoader) parseValuesFromBytes(data []byte) (Values, error) {
	// ignoreInlineComment: true prevents # in urls and tokens from being treated as comments
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
	if err != nil {
		return Values{}, fmt.Errorf("parse config: %w", err)
	}

	var v Values
	s := cfg.Section("")

	if v.Port, err = intKey(s, "port", 1); err != nil {
		return Values{}, err
	}
	if v.Workers, err = intKey(s, "workers", 1); err != nil {
		return Values{}, err
	}
	if v.HistorySize, err = intKey(s, "history_size", 1); err != nil {
		return Values{}, err
	}
	if v.Notify.TimeoutMs, err = intKey(s, "notify_timeout_ms", 0); err != nil {
		return Values{}, err
	}
	if v.Notify.SMTPPort, err = intKey(s, "notify_smtp_port", 0); err != nil {
		return Values{}, err
	}

	v.ProjectDir = stringKey(s, "project_dir")
	v.TestsDir = stringKey(s, "tests_dir")
	v.Categories = listKey(s, "categories")
	v.RunnerCommand = stringKey(s, "runner_command")
	v.Project = stringKey(s, "project")
	v.Reporter = stringKey(s, "reporter")
	v.ResultsDir = stringKey(s, "results_dir")
	v.RunsDir = stringKey(s, "runs_dir")
	v.CredentialsFile = stringKey(s, "credentials_file")
	v.CredentialKeys = listKey(s, "credential_keys")

	if v.Observers, v.ObserversSet, err = boolKey(s, "observers"); err != nil {
		return Values{}, err
	}
	if v.Watch, v.WatchSet, err = boolKey(s, "watch"); err != nil {
		return Values{}, err
	}

	// notifications
	v.Notify.Channels = listKey(s, "notify_channels")
	v.Notify.WebhookURLs = listKey(s, "notify_webhook_urls")
	v.Notify.SlackToken = stringKey(s, "notify_slack_token")
	v.Notify.SlackChannel = stringKey(s, "notify_slack_channel")
	v.Notify.TelegramToken = stringKey(s, "notify_telegram_token")
	v.Notify.TelegramChat = stringKey(s, "notify_telegram_chat")
	v.Notify.SMTPHost = stringKey(s, "notify_smtp_host")
	v.Notify.SMTPUsername = stringKey(s, "notify_smtp_username")
	v.Notify.SMTPPassword = stringKey(s, "notify_smtp_password")
	v.Notify.EmailFrom = stringKey(s, "notify_email_from")
	v.Notify.EmailTo = listKey(s, "notify_email_to")
	if v.Notify.OnError, v.NotifyOnErrorSet, err = boolKey(s, "notify_on_error"); err != nil {
		return Values{}, err
	}
	if v.Notify.OnComplete, v.NotifyOnCompleteSet, err = boolKey(s, "notify_on_complete"); err != nil {
		return Values{}, err
	}
	if v.Notify.SMTPStartTLS, v.NotifyStartTLSSet, err = boolKey(s, "notify_smtp_starttls"); err != nil {
		return Values{}, err
	}

	return v, nil
}

// stringKey returns the trimmed value of a key, empty if missing.
func stringKey(s *ini.Section, name string) string {
	key, err := s.GetKey(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(key.String())
}

// listKey splits a comma-separated key, dropping empty items.
func listKey(s *ini.Section, name string) []string {
	val := stringKey(s, name)
	if val == "" {
		return nil
	}
	var res []string
	for p := range strings.SplitSeq(val, ",") {
		if t := strings.TrimSpace(p); t != "" {
			res = append(res, t)
		}
	}
	return res
}

// intKey parses an integer key; zero if missing or empty. values below minVal are rejected.
func intKey(s *ini.Section, name string, minVal int) (int, error) {
	if stringKey(s, name) == "" {
		return 0, nil
	}
	val, err := s.Key(name).Int()
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if val < minVal {
		return 0, fmt.Errorf("invalid %s: must be at least %d, got %d", name, minVal, val)
	}
	return val, nil
}

// boolKey parses a boolean key and reports whether it was set.
func boolKey(s *ini.Section, name string) (val, set bool, err error) {
	if stringKey(s, name) == "" {
		return false, false, nil
	}
	val, err = s.Key(name).Bool()
	if err != nil {
		return false, false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return val, true, nil
}

// stripComments removes full-line # and ; comments.
func stripComments(content string) string {
	var b strings.Builder
	for line := range strings.SplitSeq(content, "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "#") || strings.HasPrefix(t, ";") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// mergeFrom merges non-empty values from src into dst.
//
//nolint:gocyclo // one branch per field
func (dst *Values) mergeFrom(src *Values) {
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.ProjectDir != "" {
		dst.ProjectDir = src.ProjectDir
	}
	if src.TestsDir != "" {
		dst.TestsDir = src.TestsDir
	}
	if len(src.Categories) > 0 {
		dst.Categories = src.Categories
	}
	if src.RunnerCommand != "" {
		dst.RunnerCommand = src.RunnerCommand
	}
	if src.Project != "" {
		dst.Project = src.Project
	}
	if src.Workers != 0 {
		dst.Workers = src.Workers
	}
	if src.Reporter != "" {
		dst.Reporter = src.Reporter
	}
	if src.ResultsDir != "" {
		dst.ResultsDir = src.ResultsDir
	}
	if src.RunsDir != "" {
		dst.RunsDir = src.RunsDir
	}
	if src.HistorySize != 0 {
		dst.HistorySize = src.HistorySize
	}
	if src.CredentialsFile != "" {
		dst.CredentialsFile = src.CredentialsFile
	}
	if len(src.CredentialKeys) > 0 {
		dst.CredentialKeys = src.CredentialKeys
	}
	if src.ObserversSet {
		dst.Observers = src.Observers
		dst.ObserversSet = true
	}
	if src.WatchSet {
		dst.Watch = src.Watch
		dst.WatchSet = true
	}
	dst.mergeNotifyFrom(src)
}

func (dst *Values) mergeNotifyFrom(src *Values) {
	d, s := &dst.Notify, &src.Notify
	if len(s.Channels) > 0 {
		d.Channels = s.Channels
	}
	if src.NotifyOnErrorSet {
		d.OnError = s.OnError
		dst.NotifyOnErrorSet = true
	}
	if src.NotifyOnCompleteSet {
		d.OnComplete = s.OnComplete
		dst.NotifyOnCompleteSet = true
	}
	if s.TimeoutMs != 0 {
		d.TimeoutMs = s.TimeoutMs
	}
	if len(s.WebhookURLs) > 0 {
		d.WebhookURLs = s.WebhookURLs
	}
	if s.SlackToken != "" {
		d.SlackToken = s.SlackToken
	}
	if s.SlackChannel != "" {
		d.SlackChannel = s.SlackChannel
	}
	if s.TelegramToken != "" {
		d.TelegramToken = s.TelegramToken
	}
	if s.TelegramChat != "" {
		d.TelegramChat = s.TelegramChat
	}
	if s.SMTPHost != "" {
		d.SMTPHost = s.SMTPHost
	}
	if s.SMTPPort != 0 {
		d.SMTPPort = s.SMTPPort
	}
	if s.SMTPUsername != "" {
		d.SMTPUsername = s.SMTPUsername
	}
	if s.SMTPPassword != "" {
		d.SMTPPassword = s.SMTPPassword
	}
	if src.NotifyStartTLSSet {
		d.SMTPStartTLS = s.SMTPStartTLS
		dst.NotifyStartTLSSet = true
	}
	if s.EmailFrom != "" {
		d.EmailFrom = s.EmailFrom
	}
	if len(s.EmailTo) > 0 {
		d.EmailTo = s.EmailTo
	}
}
