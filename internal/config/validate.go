package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by its dotted config path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string { return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message) }

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	storageKinds    = []string{"postgres", "sqlite", "mssql"}
	metricsBackends = []string{"", "none", "datadog", "pushgateway"}
)

// ValidatePipeline checks p without touching the filesystem beyond stat
// calls on source paths.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		add(SeverityWarning, "job", "empty; metrics are tagged with the default job name")
	}

	srcs := []struct {
		key, path string
	}{
		{"sources.product", p.Sources.Product},
		{"sources.location", p.Sources.Location},
		{"sources.customer", p.Sources.Customer},
		{"sources.date", p.Sources.Date},
		{"sources.sales", p.Sources.Sales},
	}
	for _, s := range srcs {
		if strings.TrimSpace(s.path) == "" {
			add(SeverityError, s.key, "file path is required")
			continue
		}
		fi, err := os.Stat(s.path)
		switch {
		case err != nil:
			add(SeverityError, s.key, "%v", err)
		case fi.IsDir():
			add(SeverityError, s.key, "%s is a directory", s.path)
		}
	}

	if _, err := parseComma(p.Parser.Comma); err != nil {
		add(SeverityError, "parser.comma", "%v", err)
	}
	if !p.Parser.TrimSpace {
		add(SeverityWarning, "parser.trim_space", "disabled; natural keys are still trimmed before matching")
	}
	for from, to := range p.Parser.HeaderMap {
		if strings.TrimSpace(to) == "" {
			add(SeverityError, "parser.header_map."+from, "target column is empty")
		}
	}

	if !slices.Contains(storageKinds, p.Storage.Kind) {
		add(SeverityError, "storage.kind", "must be one of %s, got %q", strings.Join(storageKinds, ", "), p.Storage.Kind)
	}
	if strings.TrimSpace(p.Storage.DSN) == "" {
		add(SeverityError, "storage.dsn", "is required")
	}

	if !slices.Contains(metricsBackends, p.Metrics.Backend) {
		add(SeverityError, "metrics.backend", "must be one of none, datadog, pushgateway, got %q", p.Metrics.Backend)
	}
	if p.Metrics.Backend == "pushgateway" {
		if u, err := url.Parse(p.Metrics.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			add(SeverityError, "metrics.pushgateway_url", "must be an absolute URL, got %q", p.Metrics.PushgatewayURL)
		}
	}
	if p.Metrics.Backend == "datadog" && p.Metrics.FlushEvery <= 0 {
		add(SeverityWarning, "metrics.flush_every", "not positive; the backend default applies")
	}
	for _, tag := range splitTags(p.Metrics.Tags) {
		if !strings.Contains(tag, ":") {
			add(SeverityWarning, "metrics.tags", "tag %q has no key:value form", tag)
		}
	}

	if p.Runtime.DryRun && !p.Runtime.Verify {
		add(SeverityWarning, "runtime.verify", "disabled on a dry run; nothing checks the loaded facts")
	}
	return issues
}

func splitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
