package entity

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// OtherChoice is the select value that asks for a free-text replacement.
const OtherChoice = "Other"

// ListSeparator joins multi-value cells and link lists.
const ListSeparator = ", "

//go:embed options.yaml
var optionsYAML []byte

// Options is the choice catalog of every select on the request form.
type Options struct {
	ProjectGrant      []string `yaml:"project_grant" json:"project_grant"`
	RequestType       []string `yaml:"request_type" json:"request_type"`
	SupportTypes      []string `yaml:"support_types" json:"support_types"`
	PrimaryPurposes   []string `yaml:"primary_purposes" json:"primary_purposes"`
	TargetAudiences   []string `yaml:"target_audiences" json:"target_audiences"`
	GrantDeliverable  []string `yaml:"grant_deliverable" json:"grant_deliverable"`
	PriorityLevel     []string `yaml:"priority_level" json:"priority_level"`
	ShareExternally   []string `yaml:"share_externally" json:"share_externally"`
	SensitiveContent  []string `yaml:"sensitive_content" json:"sensitive_content"`
	PermissionSecured []string `yaml:"permission_secured" json:"permission_secured"`
	EstimatedLength   []string `yaml:"estimated_length" json:"estimated_length"`
	DesignSupport     []string `yaml:"design_support" json:"design_support"`
	LiveLocations     []string `yaml:"live_locations" json:"live_locations"`
}

var (
	defaultOptions     *Options
	defaultOptionsErr  error
	defaultOptionsOnce sync.Once
)

// DefaultOptions returns the embedded catalog. It panics if the embedded
// file is malformed, which only a broken build can cause.
func DefaultOptions() *Options {
	defaultOptionsOnce.Do(func() {
		defaultOptions, defaultOptionsErr = ParseOptions(optionsYAML)
	})
	if defaultOptionsErr != nil {
		panic(defaultOptionsErr)
	}
	return defaultOptions
}

// ParseOptions decodes a YAML catalog.
func ParseOptions(data []byte) (*Options, error) {
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	return &o, nil
}

// Known returns every label of every multi-value field, used to split
// joined cells whose labels contain the separator.
func (o *Options) Known() []string {
	var all []string
	for _, l := range [][]string{o.SupportTypes, o.PrimaryPurposes, o.TargetAudiences, o.SensitiveContent, o.LiveLocations} {
		all = append(all, l...)
	}
	return all
}

// ExpandOther replaces "Other" in a single select with the free text.
// Without text the literal "Other" is kept.
func ExpandOther(value, other string) string {
	other = strings.TrimSpace(other)
	if value == OtherChoice && other != "" {
		return other
	}
	return value
}

// ExpandOtherList removes "Other" from a multi select and appends the free
// text once, keeping every other selection in order. Without text the list
// is returned unchanged.
func ExpandOtherList(values []string, other string) []string {
	other = strings.TrimSpace(other)
	if other == "" || !Contains(values, OtherChoice) {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == OtherChoice || v == other {
			continue
		}
		out = append(out, v)
	}
	return append(out, other)
}

// Contains reports whether list holds v.
func Contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// JoinList renders a multi-value field as one cell.
func JoinList(values []string) string {
	return strings.Join(values, ListSeparator)
}

// SplitList splits a joined cell. Labels from known are matched first so a
// label that itself contains ", " stays whole. With known labels, text that
// matches none runs up to the next known label and is kept as one value, so
// free text with commas survives a reload. Without known labels the cell is
// split on every separator.
func SplitList(cell string, known []string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}
	var out []string
	rest := cell
	for rest != "" {
		matched := matchLabel(rest, known)
		if matched == "" {
			matched = unmatchedRun(rest, known)
		}
		if v := strings.TrimSpace(matched); v != "" {
			out = append(out, v)
		}
		rest = strings.TrimLeft(rest[len(matched):], ", ")
	}
	return out
}

// matchLabel returns the longest label in known that starts rest and ends
// at a separator or the end of the cell.
func matchLabel(rest string, known []string) string {
	matched := ""
	for _, k := range known {
		if len(k) > len(matched) && strings.HasPrefix(rest, k) &&
			(len(rest) == len(k) || strings.HasPrefix(rest[len(k):], ",")) {
			matched = k
		}
	}
	return matched
}

func unmatchedRun(rest string, known []string) string {
	from := 0
	for {
		i := strings.Index(rest[from:], ",")
		if i < 0 {
			return rest
		}
		i += from
		next := strings.TrimLeft(rest[i:], ", ")
		if len(known) == 0 || next == "" || matchLabel(next, known) != "" {
			return rest[:i]
		}
		from = i + 1
	}
}
