package pipeline

import (
	"strings"

	"github.com/ElementBaths/parsedmarc/internal/model"
)

// sanitizeReplacer escapes characters which would break a JSON string and
// flattens line breaks to spaces. Replacements do not cascade, so an already
// escaped backslash gets escaped again; that is acceptable, the guarantee is
// only that the output embeds cleanly.
var sanitizeReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\t", `\t`,
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
)

// Sanitize makes arbitrary task output safe to embed in a structured
// payload: one physical line, no unescaped backslash, double quote or tab,
// no non-printable bytes.
func Sanitize(s string) string {
	s = sanitizeReplacer.Replace(s)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// SynopsisOptions tunes error-synopsis extraction. The values are tuning
// knobs carried in configuration; DefaultSynopsisOptions mirrors the
// config-schema defaults.
type SynopsisOptions struct {
	Keywords []string // case-insensitive substring matches
	Matches  int      // how many matching lines to keep
	Window   int      // how many trailing lines to scan
	Fallback string   // used when nothing matches
}

func DefaultSynopsisOptions() SynopsisOptions {
	return SynopsisOptions{
		Keywords: []string{"error", "failed", "exception", "traceback"},
		Matches:  3,
		Window:   20,
		Fallback: "Unknown error",
	}
}

func SynopsisOptionsFromConfig(cfg model.Pipeline) SynopsisOptions {
	opts := DefaultSynopsisOptions()
	if len(cfg.Synopsis.Keywords) > 0 {
		opts.Keywords = cfg.Synopsis.Keywords
	}
	if cfg.Synopsis.Matches > 0 {
		opts.Matches = cfg.Synopsis.Matches
	}
	if cfg.FailureLines > 0 {
		opts.Window = cfg.FailureLines
	}
	if cfg.Synopsis.Fallback != "" {
		opts.Fallback = cfg.Synopsis.Fallback
	}
	return opts
}

// Synopsis scans the last opts.Window lines for keyword matches and joins
// the first opts.Matches of them with single spaces. Returns opts.Fallback
// when no line matches.
func Synopsis(lines []string, opts SynopsisOptions) string {
	var matched []string
	for _, line := range tail(lines, opts.Window) {
		if len(matched) == opts.Matches {
			break
		}
		lower := strings.ToLower(line)
		for _, kw := range opts.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched = append(matched, line)
				break
			}
		}
	}
	if len(matched) == 0 {
		return opts.Fallback
	}
	return strings.Join(matched, " ")
}

// tail returns the last n elements of lines, fewer when lines is shorter.
func tail(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
