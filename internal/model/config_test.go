package model_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ElementBaths/parsedmarc/internal/model"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
pipeline:
  primary:
    path: /opt/dmarc/process_and_import.py
    args:
      - --config
      - parsedmarc.ini
    timeout: "30m"
  secondary:
    path: /opt/dmarc/classify_dmarc_failures.py
notify:
  credentials: /etc/dmarc/postmark.env
service:
  log: stderr
  lock: /tmp/dmarc-pipeline.lock
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "/opt/dmarc/process_and_import.py", cfg.Pipeline.Primary.Path)
	require.Equal(t, []string{"--config", "parsedmarc.ini"}, cfg.Pipeline.Primary.Args)
	require.Equal(t, "/opt/dmarc/classify_dmarc_failures.py", cfg.Pipeline.Secondary.Path)

	// schema defaults
	require.Equal(t, 10, cfg.Pipeline.SummaryLines)
	require.Equal(t, 20, cfg.Pipeline.FailureLines)
	require.Equal(t, []string{"error", "failed", "exception", "traceback"}, cfg.Pipeline.Synopsis.Keywords)
	require.Equal(t, 3, cfg.Pipeline.Synopsis.Matches)
	require.Equal(t, "Unknown error", cfg.Pipeline.Synopsis.Fallback)
	require.True(t, cfg.Notify.Enabled)
	require.Equal(t, model.DefaultEndpoint, cfg.Notify.Endpoint)
	require.Equal(t, model.DefaultTag, cfg.Service.Tag)
	require.Equal(t, model.LogStderr, cfg.Service.Log)
	require.Equal(t, "/tmp/dmarc-pipeline.lock", cfg.Service.Lock)

	d, err := cfg.Pipeline.Primary.TimeoutDuration()
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, d)

	d, err = cfg.Notify.TimeoutDuration()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, d)
}

func TestLoadConfig_Fail(t *testing.T) {
	// Missing required pipeline.primary.path
	yml := `
version: 0
pipeline:
  primary:
    timeout: "1h"
  secondary:
    path: classify_dmarc_failures.py
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)
	require.Contains(t, err.Error(), "pipeline.primary.path")

	details := model.CueErrDetails(err)
	require.NotEmpty(t, details)
}

func TestLoadConfig_UnknownField(t *testing.T) {
	yml := `
version: 0
pipeline:
  primary:
    path: process_and_import.py
  secondary:
    path: classify_dmarc_failures.py
frobnicate: true
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	// the bootstrap path writes DefaultConfig out as YAML; the very same
	// file must load cleanly on the next run
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	require.NoError(t, enc.Encode(model.DefaultConfig()))
	require.NoError(t, enc.Close())

	cfg, err := model.LoadConfig(&buf)
	require.NoError(t, err)
	require.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadConfig_EmptyTimeout(t *testing.T) {
	// an explicit empty timeout would silently run unbounded
	yml := `
version: 0
pipeline:
  primary:
    path: process_and_import.py
    timeout: ""
  secondary:
    path: classify_dmarc_failures.py
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)
	require.Contains(t, err.Error(), "pipeline.primary.timeout")
}

func TestDefaultConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	require.Equal(t, 0, cfg.Version)
	require.Equal(t, 10, cfg.Pipeline.SummaryLines)
	require.Equal(t, 20, cfg.Pipeline.FailureLines)
	require.Equal(t, model.DefaultEndpoint, cfg.Notify.Endpoint)
}

func TestParseCueDuration(t *testing.T) {
	type then struct {
		d   time.Duration
		err string
	}
	cases := []struct {
		scenario string
		given    string
		then     then
	}{
		{"seconds", "90s", then{90 * time.Second, ""}},
		{"mixed", "1h30m", then{90 * time.Minute, ""}},
		{"days", "1d12h", then{36 * time.Hour, ""}},
		{"empty", "", then{0, "empty duration"}},
		{"garbage", "five minutes", then{0, "invalid duration format"}},
		{"wrong_order", "30m1h", then{0, "invalid duration format"}},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			d, err := model.ParseCueDuration(tc.given)
			if tc.then.err != "" {
				require.Error(t, err)
				require.EqualError(t, err, tc.then.err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.then.d, d)
		})
	}
}
