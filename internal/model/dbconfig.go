package model

import (
	"fmt"
	"net/url"
	"strings"
)

// DBConfig points the repositories at a remote store. The zero value means
// "no remote configured" and selects the local backend.
type DBConfig struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// Configured reports whether both the URL and the key are set.
func (c DBConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Key) != ""
}

// Mode reports the storage mode selected by this config.
func (c DBConfig) Mode() StorageMode {
	if c.Configured() {
		return StorageRemote
	}
	return StorageLocal
}

// NormalizeURL turns a bare project ref such as "abcd1234" into
// "https://abcd1234.supabase.co". Anything with a scheme is returned trimmed.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		return strings.TrimRight(s, "/")
	}
	if !strings.Contains(s, ".") {
		return "https://" + s + ".supabase.co"
	}
	return "https://" + strings.TrimRight(s, "/")
}

// Normalized returns a copy with NormalizeURL applied and the key trimmed.
func (c DBConfig) Normalized() DBConfig {
	return DBConfig{URL: NormalizeURL(c.URL), Key: strings.TrimSpace(c.Key)}
}

// DSN returns the Postgres connection string for the config. postgres:// URLs
// are used as-is. A Supabase project URL maps to its direct database host;
// the key is supplied separately as the password.
func (c DBConfig) DSN() (string, error) {
	raw := NormalizeURL(c.URL)
	if raw == "" {
		return "", Invalid("remote url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", Invalid("parse remote url: %v", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return raw, nil
	case "http", "https":
	default:
		return "", Invalid("unsupported remote url scheme %q", u.Scheme)
	}
	host := u.Hostname()
	ref, ok := strings.CutSuffix(host, ".supabase.co")
	if !ok || ref == "" || strings.Contains(ref, ".") {
		return "", Invalid("remote url %q is not a supabase project url", raw)
	}
	return fmt.Sprintf("postgres://postgres@db.%s.supabase.co:5432/postgres?sslmode=require", ref), nil
}
