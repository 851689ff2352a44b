package sanitize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
	"github.com/zricethezav/gitleaks/v8/report"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/personad/internal/logging"
)

var (
	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")

	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// previewLength is how many leading characters of a secret survive in a
// redaction marker and in audit metadata.
const previewLength = 4

// Allowlist contains path and content regex patterns to exclude from
// secret detection.
type Allowlist struct {
	Paths   []string // File path regex patterns to ignore
	Regexes []string // Content regex patterns to ignore
}

// LoadAllowlist reads a TOML allowlist file. A missing file or empty path
// yields an empty allowlist; malformed TOML or patterns that do not
// compile are errors.
//
// Expected shape:
//
//	[allowlist]
//	paths = ['''testdata/.*''']
//	regexes = ['''EXAMPLE_KEY''']
func LoadAllowlist(path string) (*Allowlist, error) {
	out := &Allowlist{}
	if path == "" {
		return out, nil
	}

	path, err := ValidatePath(path)
	if err != nil {
		return nil, fmt.Errorf("allowlist path: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("reading allowlist: %w", err)
	}

	var file struct {
		Allowlist struct {
			Paths   []string
			Regexes []string
		}
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, pattern := range file.Allowlist.Paths {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid path pattern %q in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}
	for _, pattern := range file.Allowlist.Regexes {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("%w: invalid content pattern %q in %s: %v",
				ErrInvalidRegex, pattern, path, err)
		}
	}

	out.Paths = file.Allowlist.Paths
	out.Regexes = file.Allowlist.Regexes
	return out, nil
}

// Redaction records one masked secret. It carries metadata only, never
// the secret value.
type Redaction struct {
	RuleID      string `json:"rule_id"`     // e.g. "openai-api-key"
	Description string `json:"description"` // human-readable rule description
	Line        int    `json:"line"`        // line where the secret started
	Length      int    `json:"length"`      // length of the masked secret
	Preview     string `json:"preview"`     // first previewLength chars only
}

// ScrubResult is the outcome of one Scrub call.
type ScrubResult struct {
	Text       string
	Redactions []Redaction
	Elapsed    time.Duration
}

// Masked reports whether any secrets were replaced.
func (r ScrubResult) Masked() bool { return len(r.Redactions) > 0 }

// RuleCounts aggregates redactions per detection rule.
func (r ScrubResult) RuleCounts() map[string]int {
	counts := make(map[string]int, len(r.Redactions))
	for _, red := range r.Redactions {
		counts[red.RuleID]++
	}
	return counts
}

// Scrubber masks detected secrets in message text before it reaches the
// analysis stages or the store. Detection uses the default gitleaks
// ruleset, optionally narrowed by an operator allowlist.
type Scrubber struct {
	detector *detect.Detector
	logger   *logging.Logger
}

// ScrubberOptions configures NewScrubber.
type ScrubberOptions struct {
	// AllowlistPath points at an optional TOML allowlist. Empty means no
	// allowlist; a missing file is treated the same way.
	AllowlistPath string

	// Logger for scrub reporting. Defaults to a no-op logger.
	Logger *logging.Logger
}

// NewScrubber builds the gitleaks detector once so per-message scrubbing
// does not pay detector construction on every call.
func NewScrubber(opts ScrubberOptions) (*Scrubber, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	allowlist, err := LoadAllowlist(opts.AllowlistPath)
	if err != nil {
		return nil, err
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("building secret detector: %w", err)
	}

	if len(allowlist.Paths) > 0 || len(allowlist.Regexes) > 0 {
		mergeAllowlist(&detector.Config, allowlist)
		logger.Info(context.Background(), "loaded scrub allowlist",
			zap.String("path", opts.AllowlistPath),
			zap.Int("path_patterns", len(allowlist.Paths)),
			zap.Int("content_patterns", len(allowlist.Regexes)),
		)
	}

	return &Scrubber{detector: detector, logger: logger}, nil
}

// Scrub masks every detected secret in text. Each occurrence becomes a
// [REDACTED:<rule>:<preview>] marker; the marker keeps the rule id and a
// short prefix so downstream analysis retains some context without the
// secret itself.
func (s *Scrubber) Scrub(ctx context.Context, text string) (ScrubResult, error) {
	if err := ctx.Err(); err != nil {
		return ScrubResult{}, err
	}
	start := time.Now()

	findings := s.detector.DetectString(text)
	result := ScrubResult{Text: text}
	if len(findings) > 0 {
		result.Text = maskFindings(text, findings)
		result.Redactions = make([]Redaction, 0, len(findings))
		for _, f := range findings {
			result.Redactions = append(result.Redactions, Redaction{
				RuleID:      f.RuleID,
				Description: f.Description,
				Line:        f.StartLine,
				Length:      len(f.Secret),
				Preview:     preview(f.Secret),
			})
		}
	}
	result.Elapsed = time.Since(start)

	if result.Masked() {
		s.logger.Debug(ctx, "masked secrets",
			zap.Int("count", len(result.Redactions)),
			zap.Duration("elapsed", result.Elapsed),
		)
	}
	return result, nil
}

// mergeAllowlist appends the operator allowlist to the detector config as
// a global gitleaks allowlist. Patterns were validated when loaded; a
// compile failure here means that validation was bypassed.
func mergeAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{
		Description: "personad operator allowlist",
	}

	for _, pattern := range allowlist.Paths {
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(regexp.MustCompile(pattern)))
	}
	for _, pattern := range allowlist.Regexes {
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(regexp.MustCompile(pattern)))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, global)
}

// maskFindings replaces secret values with redaction markers. Longer
// secrets go first so a secret containing another finding's value is
// masked whole; replacement is by value, which also covers multi-line
// secrets such as private keys.
func maskFindings(text string, findings []report.Finding) string {
	sorted := make([]report.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Secret) > len(sorted[j].Secret)
	})

	for _, f := range sorted {
		if f.Secret == "" {
			continue
		}
		marker := "[REDACTED:" + f.RuleID + ":" + preview(f.Secret) + "]"
		text = strings.ReplaceAll(text, f.Secret, marker)
	}
	return text
}

// preview returns the first previewLength characters of a secret.
func preview(secret string) string {
	if len(secret) <= previewLength {
		return secret
	}
	return secret[:previewLength]
}
