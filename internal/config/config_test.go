package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseClientIDSource(t *testing.T) {
	cases := []struct {
		in   string
		kind string
		hdr  string
	}{
		{"remote_addr", "remote_addr", ""},
		{"", "remote_addr", ""},
		{"host", "host", ""},
		{"header:X-Client-Id", "header", "X-Client-Id"},
		{"header:", "remote_addr", ""}, // empty header name falls back
		{"garbage", "remote_addr", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := parseClientIDSource(tc.in)
			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.hdr, got.Header)
		})
	}
}

func TestParseSecs(t *testing.T) {
	assert.Equal(t, 300*time.Second, parseSecs("300", time.Hour))
	assert.Equal(t, time.Hour, parseSecs("", time.Hour))
	assert.Equal(t, time.Hour, parseSecs("not-a-number", time.Hour))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 90*time.Minute, parseDuration("90m", time.Hour))
	assert.Equal(t, time.Hour, parseDuration("", time.Hour))
	assert.Equal(t, time.Hour, parseDuration("bogus", time.Hour))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BIND_ADDRESS", "")
	t.Setenv("LOCAL_URL", "")
	t.Setenv("CLIENT_ID_SOURCE", "")
	cfg := Load()
	assert.Equal(t, ":2080", cfg.BindAddress)
	assert.Equal(t, "http://go", cfg.LocalURL)
	assert.Equal(t, "remote_addr", cfg.ClientIDSource.Kind)
	assert.Equal(t, 300*time.Second, cfg.MaxAssumedSessionTime)
	assert.Equal(t, 86400*time.Second, cfg.MaxTimeWithoutShowing)
}
