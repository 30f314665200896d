// Package redact masks credentials in text before it leaves the process.
package redact

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	DefaultMinTokenLength = 20
	// assignmentEntropy is the floor for values assigned to credential-like
	// names when no entropy threshold is configured.
	assignmentEntropy = 3.0
)

type Pattern struct {
	Name  string
	Regex string
}

type Options struct {
	Patterns []Pattern
	// MinTokenLength is the shortest quoted value considered for the
	// assignment and entropy checks.
	MinTokenLength int
	// EntropyThreshold enables the scan of every quoted token when > 0.
	EntropyThreshold float64
}

// Finding is one masked span, as byte offsets into the scanned text.
type Finding struct {
	Kind  string
	Start int
	End   int
}

type rule struct {
	name string
	re   *regexp.Regexp
}

type Redactor struct {
	rules     []rule
	minLen    int
	threshold float64

	credentialName *regexp.Regexp
	quotedValue    *regexp.Regexp
	quotedToken    *regexp.Regexp
}

var builtinPatterns = []Pattern{
	{Name: "aws-access-key-id", Regex: `\bAKIA[0-9A-Z]{16}\b`},
	{Name: "github-pat", Regex: `\bghp_[A-Za-z0-9]{36}\b`},
	{Name: "github-fine-grained-pat", Regex: `\bgithub_pat_[A-Za-z0-9_]{82}\b`},
	{Name: "openai-key", Regex: `\bsk-(?:proj-)?[A-Za-z0-9_-]{32,}\b`},
	{Name: "google-api-key", Regex: `\bAIza[0-9A-Za-z_-]{35}\b`},
	{Name: "stripe-live-secret", Regex: `\bsk_live_[A-Za-z0-9]{16,}\b`},
	{Name: "slack-token", Regex: `\bxox[baprs]-[A-Za-z0-9-]{10,}\b`},
	{Name: "private-key-block", Regex: `-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`},
}

func New(opts Options) (*Redactor, error) {
	if opts.MinTokenLength <= 0 {
		opts.MinTokenLength = DefaultMinTokenLength
	}
	rules, err := compile(append(append([]Pattern(nil), builtinPatterns...), opts.Patterns...))
	if err != nil {
		return nil, err
	}
	return &Redactor{
		rules:          rules,
		minLen:         opts.MinTokenLength,
		threshold:      opts.EntropyThreshold,
		credentialName: regexp.MustCompile(`(?i)(password|passwd|secret|api_?key|apikey|token|access_?key|private_?key|credential)`),
		quotedValue:    regexp.MustCompile("\"([^\"\\r\\n]{4,})\"|`([^`\\r\\n]{4,})`"),
		quotedToken:    regexp.MustCompile("\"([A-Za-z0-9_\\-+=:/.]{12,})\"|`([A-Za-z0-9_\\-+=:/.]{12,})`"),
	}, nil
}

func compile(patterns []Pattern) ([]rule, error) {
	out := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("redact pattern name must not be empty")
		}
		if strings.TrimSpace(p.Regex) == "" {
			return nil, fmt.Errorf("redact pattern %q: regex must not be empty", name)
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", name, err)
		}
		out = append(out, rule{name: name, re: re})
	}
	return out, nil
}

// Find returns the spans to mask, ordered by offset and without overlaps.
// When two spans overlap the earlier, longer one is kept.
func (r *Redactor) Find(text string) []Finding {
	var found []Finding
	for _, rl := range r.rules {
		for _, loc := range rl.re.FindAllStringIndex(text, -1) {
			if placeholder(text[loc[0]:loc[1]]) {
				continue
			}
			found = append(found, Finding{Kind: rl.name, Start: loc[0], End: loc[1]})
		}
	}
	found = append(found, r.assignments(text)...)
	if r.threshold > 0 {
		found = append(found, r.highEntropy(text)...)
	}
	return merge(found)
}

// Redact replaces every finding with a <redacted:kind> marker and reports
// how many were replaced.
func (r *Redactor) Redact(text string) (string, int) {
	found := r.Find(text)
	if len(found) == 0 {
		return text, 0
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, f := range found {
		b.WriteString(text[last:f.Start])
		b.WriteString("<redacted:" + f.Kind + ">")
		last = f.End
	}
	b.WriteString(text[last:])
	return b.String(), len(found)
}

// assignments flags quoted values on lines that mention a credential-like
// name.
func (r *Redactor) assignments(text string) []Finding {
	floor := assignmentEntropy
	if r.threshold > 0 {
		floor = r.threshold * 0.8
	}
	var out []Finding
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if r.credentialName.MatchString(line) {
			for _, m := range r.quotedValue.FindAllStringSubmatchIndex(line, -1) {
				start, end, ok := firstGroup(m)
				if !ok {
					continue
				}
				value := line[start:end]
				if len(value) < r.minLen || placeholder(value) || entropy(value) < floor {
					continue
				}
				out = append(out, Finding{Kind: "credential-assignment", Start: offset + start, End: offset + end})
			}
		}
		offset += len(line)
	}
	return out
}

func (r *Redactor) highEntropy(text string) []Finding {
	var out []Finding
	for _, m := range r.quotedToken.FindAllStringSubmatchIndex(text, -1) {
		start, end, ok := firstGroup(m)
		if !ok {
			continue
		}
		value := text[start:end]
		if len(value) < r.minLen || placeholder(value) || !letterAndDigit(value) {
			continue
		}
		if entropy(value) < r.threshold {
			continue
		}
		out = append(out, Finding{Kind: "high-entropy-string", Start: start, End: end})
	}
	return out
}

func merge(found []Finding) []Finding {
	if len(found) < 2 {
		return found
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Start != found[j].Start {
			return found[i].Start < found[j].Start
		}
		return found[i].End > found[j].End
	})
	out := found[:1]
	for _, f := range found[1:] {
		if f.Start < out[len(out)-1].End {
			continue
		}
		out = append(out, f)
	}
	return out
}

func placeholder(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range []string{"example", "sample", "dummy", "placeholder", "changeme", "notasecret", "fake", "test"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func letterAndDigit(value string) bool {
	var letter, digit bool
	for _, c := range value {
		letter = letter || unicode.IsLetter(c)
		digit = digit || unicode.IsDigit(c)
	}
	return letter && digit
}

// entropy is the Shannon entropy of value in bits per rune.
func entropy(value string) float64 {
	runes := []rune(value)
	if len(runes) == 0 {
		return 0
	}
	freq := make(map[rune]int)
	for _, c := range runes {
		freq[c]++
	}
	n := float64(len(runes))
	var h float64
	for _, count := range freq {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}

func firstGroup(match []int) (int, int, bool) {
	for i := 2; i+1 < len(match); i += 2 {
		if match[i] >= 0 {
			return match[i], match[i+1], true
		}
	}
	return 0, 0, false
}
