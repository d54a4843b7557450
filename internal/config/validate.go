package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into the
// config (e.g. "storage.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownStorageKinds = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"mssql":    true,
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate p. Callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{SeverityError, "job", "job must not be empty; it labels metrics and log lines"})
	}
	issues = append(issues, validateSource(p.Source)...)

	if p.Parser.Kind != "csv" {
		issues = append(issues, Issue{SeverityError, "parser.kind", fmt.Sprintf("unsupported parser kind %q (want csv)", p.Parser.Kind)})
	}
	if c := p.Parser.Options.String("comma", ","); len([]rune(c)) != 1 {
		issues = append(issues, Issue{SeverityError, "parser.options.comma", "comma must be a single character"})
	}
	if !p.Parser.Options.Bool("has_header", true) {
		issues = append(issues, Issue{SeverityWarning, "parser.options.has_header", "without a header the source columns must appear in canonical order"})
	}

	if strings.TrimSpace(p.Output.Dir) == "" {
		issues = append(issues, Issue{SeverityError, "output.dir", "output directory must not be empty"})
	}

	if p.Storage.Enabled() {
		if !knownStorageKinds[p.Storage.Kind] {
			issues = append(issues, Issue{SeverityError, "storage.kind", fmt.Sprintf("unknown storage kind %q (want sqlite|postgres|mssql)", p.Storage.Kind)})
		}
		if strings.TrimSpace(p.Storage.DSN) == "" {
			issues = append(issues, Issue{SeverityError, "storage.dsn", "dsn is required when storage.kind is set"})
		}
	}

	if p.Runtime.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch_size must not be negative"})
	}
	if p.Runtime.ChannelBuffer < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.channel_buffer", "channel_buffer must not be negative"})
	}
	return issues
}

func validateSource(s Source) []Issue {
	var issues []Issue
	loc := strings.TrimSpace(s.Location)
	if loc == "" {
		issues = append(issues, Issue{SeverityError, "source.location", "source location must not be empty"})
		return issues
	}
	if strings.Contains(loc, "://") {
		u, err := url.Parse(loc)
		if err != nil {
			issues = append(issues, Issue{SeverityError, "source.location", fmt.Sprintf("invalid URL: %v", err)})
			return issues
		}
		switch u.Scheme {
		case "http", "https", "file":
		default:
			issues = append(issues, Issue{SeverityError, "source.location", fmt.Sprintf("unsupported scheme %q (want http|https|file)", u.Scheme)})
		}
		if u.Scheme == "http" {
			issues = append(issues, Issue{SeverityWarning, "source.location", "plain http download; prefer https"})
		}
	}
	if strings.TrimSpace(s.ArchiveMember) == "" {
		issues = append(issues, Issue{SeverityError, "source.archive_member", "archive member name must not be empty"})
	}
	if s.HTTP.InsecureSkipVerify {
		issues = append(issues, Issue{SeverityWarning, "source.http.insecure_skip_verify", "TLS verification is disabled"})
	}
	return issues
}
