package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/ini.v1"
)

// LoadCredentials reads KEY=VALUE pairs from a dotenv-style file and returns the
// requested keys. values already present in the process environment win over the file,
// keys found nowhere are empty strings. a missing file only logs a warning, so
// credential-dependent test cases can skip themselves while the dashboard keeps working.
func LoadCredentials(path string, keys []string) (map[string]string, error) {
	creds := make(map[string]string, len(keys))
	for _, k := range keys {
		creds[k] = os.Getenv(k)
	}
	if path == "" {
		return creds, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path from config
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[WARN] no credentials file found at %s", path)
			return creds, nil
		}
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}

	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:       true,
		UnescapeValueDoubleQuotes: true,
		SkipUnrecognizableLines:   true,
		IgnoreContinuation:        true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}

	section := f.Section("")
	for _, k := range keys {
		if creds[k] != "" {
			continue
		}
		if key, kerr := section.GetKey(k); kerr == nil {
			creds[k] = key.String()
		}
	}
	log.Printf("[INFO] loaded credentials from %s", path)
	return creds, nil
}
