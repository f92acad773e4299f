package id_test

import (
	"testing"

	"github.com/stewardlabs/steward/id"
)

func TestNew_HasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		make   func() id.ID
		prefix id.Prefix
	}{
		{"job", id.NewJobID, id.PrefixJob},
		{"vertex", id.NewVertexID, id.PrefixVertex},
		{"node", id.NewNodeID, id.PrefixNode},
		{"session", id.NewSessionID, id.PrefixSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.make()
			if got.IsNil() {
				t.Fatal("new ID is nil")
			}
			if got.Prefix() != tt.prefix {
				t.Errorf("Prefix() = %q, want %q", got.Prefix(), tt.prefix)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	orig := id.NewJobID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", orig.String(), err)
	}
	if parsed.String() != orig.String() {
		t.Errorf("round trip: got %q, want %q", parsed.String(), orig.String())
	}
}

func TestParseWithPrefix_RejectsWrongPrefix(t *testing.T) {
	jobID := id.NewJobID()

	if _, err := id.ParseSessionID(jobID.String()); err == nil {
		t.Error("ParseSessionID accepted a job-prefixed ID")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse accepted an empty string")
	}
}

func TestSessionID_GenerationOrdered(t *testing.T) {
	// Sessions minted later must compare strictly newer. Mint a run of them
	// to exercise the sub-millisecond monotonicity of UUIDv7 suffixes.
	prev := id.NewSessionID()
	for i := 0; i < 100; i++ {
		next := id.NewSessionID()
		if !next.Newer(prev) {
			t.Fatalf("session %s not newer than %s", next, prev)
		}
		if prev.Newer(next) {
			t.Fatalf("session %s reported newer than %s", prev, next)
		}
		prev = next
	}
}

func TestNewer_NilOrdering(t *testing.T) {
	s := id.NewSessionID()

	if !s.Newer(id.Nil) {
		t.Error("valid session not newer than Nil")
	}
	if id.Nil.Newer(s) {
		t.Error("Nil reported newer than a valid session")
	}
	if id.Nil.Newer(id.Nil) {
		t.Error("Nil reported newer than Nil")
	}
}

func TestMarshalText_RoundTrip(t *testing.T) {
	orig := id.NewNodeID()

	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var back id.ID
	if err := back.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back.String() != orig.String() {
		t.Errorf("round trip: got %q, want %q", back.String(), orig.String())
	}
}

func TestScan_String(t *testing.T) {
	orig := id.NewJobID()

	var got id.ID
	if err := got.Scan(orig.String()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got.String() != orig.String() {
		t.Errorf("Scan: got %q, want %q", got.String(), orig.String())
	}

	var nilID id.ID
	if err := nilID.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !nilID.IsNil() {
		t.Error("Scan(nil) did not produce the Nil ID")
	}
}
