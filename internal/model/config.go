package model

import (
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Enum helpers (optional).
const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultTag      = "dmarc-pipeline"
	DefaultEndpoint = "https://api.postmarkapp.com/email"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `json:"version" yaml:"version"` // fixed 0 for now
	Pipeline Pipeline `json:"pipeline" yaml:"pipeline"`
	Notify   Notify   `json:"notify" yaml:"notify"`
	Service  Service  `json:"service" yaml:"service"`
}

// Pipeline holds both task stages and the output truncation tuning.
type Pipeline struct {
	Primary      Task     `json:"primary" yaml:"primary"`
	Secondary    Task     `json:"secondary" yaml:"secondary"`
	SummaryLines int      `json:"summary_lines" yaml:"summary_lines"` // success-path tail
	FailureLines int      `json:"failure_lines" yaml:"failure_lines"` // secondary-failure tail and synopsis window
	Synopsis     Synopsis `json:"synopsis" yaml:"synopsis"`
}

// Task is one external executable stage.
type Task struct {
	Path    string   `json:"path" yaml:"path"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Timeout string   `json:"timeout,omitempty" yaml:"timeout,omitempty"` // "1h", "90s", "1d12h" ...
}

// TimeoutDuration parses the timeout field. Zero means unbounded.
func (t Task) TimeoutDuration() (time.Duration, error) {
	if t.Timeout == "" {
		return 0, nil
	}
	return ParseCueDuration(t.Timeout)
}

// Synopsis tuning for failure-notification excerpts. The keyword list and
// counts look like tuning choices, so they live here instead of in code.
type Synopsis struct {
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Matches  int      `json:"matches" yaml:"matches"`
	Fallback string   `json:"fallback" yaml:"fallback"`
}

// Notify configures failure-notification delivery.
type Notify struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Credentials string `json:"credentials,omitempty" yaml:"credentials,omitempty"` // key=value file with token and addresses
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	Timeout     string `json:"timeout" yaml:"timeout"`
}

func (n Notify) TimeoutDuration() (time.Duration, error) {
	if n.Timeout == "" {
		return 0, nil
	}
	return ParseCueDuration(n.Timeout)
}

// Service holds supervisor-level settings.
type Service struct {
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Log     string `json:"log" yaml:"log"`                       // "stderr"|"stdout"|"discard"|path
	Tag     string `json:"tag" yaml:"tag"`                       // fixed component identifier on log records
	Lock    string `json:"lock,omitempty" yaml:"lock,omitempty"` // optional overlap-guard lock file
}

// DefaultConfig returns a runnable configuration pointing at the stock
// processing scripts, suitable to be written out as a starter file.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Pipeline: Pipeline{
			Primary: Task{
				Path:    "process_and_import.py",
				Timeout: "1h",
			},
			Secondary: Task{
				Path:    "classify_dmarc_failures.py",
				Timeout: "1h",
			},
			SummaryLines: 10,
			FailureLines: 20,
			Synopsis: Synopsis{
				Keywords: []string{"error", "failed", "exception", "traceback"},
				Matches:  3,
				Fallback: "Unknown error",
			},
		},
		Notify: Notify{
			Enabled:     true,
			Credentials: "postmark.env",
			Endpoint:    DefaultEndpoint,
			Timeout:     "30s",
		},
		Service: Service{
			Verbose: false,
			Log:     LogStderr,
			Tag:     DefaultTag,
		},
	}
}

// LoadConfig validates YAML from r against the embedded CUE schema and
// decodes it to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
