// Package config defines the JSON-serializable configuration model for the
// movie normalization pipeline.
//
// A pipeline file is optional. Every field has a default (see Defaults) and the
// CLI overrides file values with flags, then environment, then defaults.
//
// Example (trimmed):
//
//	{
//	  "job":     "movieetl",
//	  "source":  { "location": "https://bucket.s3.amazonaws.com/movies.zip",
//	               "archive_member": "movies_metadata.csv",
//	               "http": { "timeout_seconds": 120, "max_retries": 3 } },
//	  "parser":  { "kind": "csv", "options": { "lazy_quotes": true } },
//	  "output":  { "dir": "processed_data" },
//	  "storage": { "kind": "sqlite", "dsn": "file:movies.db" }
//	}
package config

import (
	"os"

	json "github.com/goccy/go-json"
)

// Defaults used when neither the pipeline file nor flags set a value.
const (
	DefaultJob           = "movieetl"
	DefaultOutputDir     = "processed_data"
	DefaultArchiveMember = "movies_metadata.csv"
	DefaultBatchSize     = 500
	DefaultChannelBuffer = 1024
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job labels metrics and log lines.
	Job string `json:"job"`

	Source  Source        `json:"source"`
	Parser  Parser        `json:"parser"`
	Output  Output        `json:"output"`
	Storage Storage       `json:"storage"`
	Runtime RuntimeConfig `json:"runtime"`
}

// Source identifies where the raw dataset comes from.
type Source struct {
	// Location is an http(s) URL, a file:// URL, or a local path. It points at a
	// zip archive or directly at a CSV file.
	Location string `json:"location"`

	// ArchiveMember names the CSV inside the archive.
	ArchiveMember string `json:"archive_member"`

	HTTP HTTPSource `json:"http"`
}

// HTTPSource tunes the download client.
type HTTPSource struct {
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxRetries of 0 means the default; a negative value disables retries.
	MaxRetries         int  `json:"max_retries"`
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// Parser selects how raw bytes become rows. Only "csv" exists today.
//
// CSV options: has_header (bool), comma (string), trim_space (bool),
// lazy_quotes (bool), fields_per_record (int), header_map (object).
type Parser struct {
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Output controls where exported tables land.
type Output struct {
	// Dir is the output root. It is removed and recreated on every run.
	Dir string `json:"dir"`
}

// Storage optionally loads the star schema into a SQL database after export.
// An empty Kind disables the load.
type Storage struct {
	// Kind: "sqlite" | "postgres" | "mssql" | "".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Enabled reports whether a database load was requested.
func (s Storage) Enabled() bool { return s.Kind != "" }

// RuntimeConfig controls batching for the optional load and the buffer
// between the CSV reader and the normalizer.
type RuntimeConfig struct {
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Defaults returns a Pipeline with every default applied.
func Defaults() Pipeline {
	return Pipeline{
		Job: DefaultJob,
		Source: Source{
			ArchiveMember: DefaultArchiveMember,
			HTTP: HTTPSource{
				TimeoutSeconds: 300,
				MaxRetries:     3,
			},
		},
		Parser: Parser{
			Kind: "csv",
			Options: Options{
				"has_header":  true,
				"lazy_quotes": true,
			},
		},
		Output: Output{Dir: DefaultOutputDir},
		Runtime: RuntimeConfig{
			BatchSize:     DefaultBatchSize,
			ChannelBuffer: DefaultChannelBuffer,
		},
	}
}

// ApplyDefaults fills zero-valued fields of p from Defaults. Parser options
// present in p win over default options.
func ApplyDefaults(p Pipeline) Pipeline {
	d := Defaults()
	if p.Job == "" {
		p.Job = d.Job
	}
	if p.Source.ArchiveMember == "" {
		p.Source.ArchiveMember = d.Source.ArchiveMember
	}
	if p.Source.HTTP.TimeoutSeconds <= 0 {
		p.Source.HTTP.TimeoutSeconds = d.Source.HTTP.TimeoutSeconds
	}
	if p.Source.HTTP.MaxRetries == 0 {
		p.Source.HTTP.MaxRetries = d.Source.HTTP.MaxRetries
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = d.Parser.Kind
	}
	merged := Options{}
	for k, v := range d.Parser.Options {
		merged[k] = v
	}
	for k, v := range p.Parser.Options {
		merged[k] = v
	}
	p.Parser.Options = merged
	if p.Output.Dir == "" {
		p.Output.Dir = d.Output.Dir
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = d.Runtime.BatchSize
	}
	if p.Runtime.ChannelBuffer <= 0 {
		p.Runtime.ChannelBuffer = d.Runtime.ChannelBuffer
	}
	return p
}

// Load reads a pipeline file and applies defaults. An empty path yields
// Defaults().
func Load(path string) (Pipeline, error) {
	if path == "" {
		return Defaults(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, err
	}
	return Decode(b)
}

// Decode parses pipeline JSON and applies defaults.
func Decode(b []byte) (Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(b, &p); err != nil {
		return Pipeline{}, err
	}
	return ApplyDefaults(p), nil
}

// Options is a small helper to fetch typed values from arbitrary JSON maps.
// It performs minimal coercion and returns the provided default when a key is
// absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value, or def.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns the string-valued entries of an object value. Missing keys
// and non-objects yield an empty map.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// UnmarshalJSON makes a missing or null "options" object decode to a non-nil
// empty map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
