package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecode_AppliesDefaults(t *testing.T) {
	t.Parallel()

	p, err := Decode([]byte(`{"source":{"location":"movies.zip"},"parser":{"options":{"comma":";"}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if p.Job != DefaultJob {
		t.Fatalf("Job=%q want %q", p.Job, DefaultJob)
	}
	if p.Output.Dir != DefaultOutputDir {
		t.Fatalf("Output.Dir=%q want %q", p.Output.Dir, DefaultOutputDir)
	}
	if p.Source.ArchiveMember != DefaultArchiveMember {
		t.Fatalf("ArchiveMember=%q", p.Source.ArchiveMember)
	}
	if got := p.Parser.Options.Rune("comma", ','); got != ';' {
		t.Fatalf("comma=%q want ';'", got)
	}
	// default options survive the merge
	if !p.Parser.Options.Bool("lazy_quotes", false) {
		t.Fatalf("expected lazy_quotes default true")
	}
	if p.Runtime.BatchSize != DefaultBatchSize || p.Runtime.ChannelBuffer != DefaultChannelBuffer {
		t.Fatalf("runtime defaults not applied: %+v", p.Runtime)
	}
}

func TestDecode_NullOptions(t *testing.T) {
	t.Parallel()

	var o Options
	if err := o.UnmarshalJSON([]byte("null")); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if o == nil || len(o) != 0 {
		t.Fatalf("expected empty non-nil options, got %#v", o)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load(empty): %v", err)
	}
	if diff := cmp.Diff(Defaults(), p); diff != "" {
		t.Fatalf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "p.json")
	if err := os.WriteFile(path, []byte(`{"job":"nightly","storage":{"kind":"sqlite","dsn":"file:x.db"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Job != "nightly" || !p.Storage.Enabled() {
		t.Fatalf("unexpected pipeline: %+v", p)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestOptions_Accessors(t *testing.T) {
	t.Parallel()

	o := Options{
		"s":   "x",
		"b":   true,
		"f":   float64(7),
		"i":   3,
		"m":   map[string]any{"A": "a", "B": 1},
		"bad": []any{1},
	}
	if o.String("s", "d") != "x" || o.String("b", "d") != "d" {
		t.Fatalf("String accessor wrong")
	}
	if !o.Bool("b", false) || o.Bool("s", false) {
		t.Fatalf("Bool accessor wrong")
	}
	if o.Int("f", 0) != 7 || o.Int("i", 0) != 3 || o.Int("s", 9) != 9 {
		t.Fatalf("Int accessor wrong")
	}
	if o.Rune("s", ',') != 'x' || o.Rune("missing", ',') != ',' {
		t.Fatalf("Rune accessor wrong")
	}
	if diff := cmp.Diff(map[string]string{"A": "a"}, o.StringMap("m")); diff != "" {
		t.Fatalf("StringMap mismatch (-want +got):\n%s", diff)
	}
	if len(o.StringMap("bad")) != 0 {
		t.Fatalf("expected empty map for non-object")
	}
}
