package mitre

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

const sampleBundle = `{
  "type": "bundle",
  "objects": [
    {
      "type": "attack-pattern",
      "name": "Command and Scripting Interpreter",
      "description": "Adversaries may abuse command and script interpreters to execute commands.",
      "external_references": [
        {"source_name": "mitre-attack", "external_id": "T1059"}
      ],
      "kill_chain_phases": [
        {"kill_chain_name": "mitre-attack", "phase_name": "execution"}
      ]
    },
    {
      "type": "attack-pattern",
      "name": "Brute Force",
      "description": "Adversaries may use brute force techniques to gain access to accounts.",
      "external_references": [
        {"source_name": "capec", "external_id": "CAPEC-49"},
        {"source_name": "mitre-attack", "external_id": "T1110"}
      ],
      "kill_chain_phases": [
        {"kill_chain_name": "mitre-attack", "phase_name": "credential-access"},
        {"kill_chain_name": "lockheed", "phase_name": "exploit"}
      ]
    },
    {
      "type": "intrusion-set",
      "name": "Not A Technique",
      "external_references": [
        {"source_name": "mitre-attack", "external_id": "G0001"}
      ]
    },
    {
      "type": "attack-pattern",
      "name": "Orphan Pattern",
      "description": "No recognized identifier.",
      "external_references": [
        {"source_name": "capec", "external_id": "CAPEC-1"}
      ]
    }
  ]
}`

func TestBuild_IndexesRecognizedPatterns(t *testing.T) {
	idx, err := Build([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", idx.Len())
	}

	tech, ok := idx.Lookup("T1059")
	if !ok {
		t.Fatal("Lookup(T1059) missing")
	}
	if tech.Name != "Command and Scripting Interpreter" {
		t.Errorf("name = %q", tech.Name)
	}
	if !reflect.DeepEqual(tech.Tactics, []string{"execution"}) {
		t.Errorf("tactics = %v, want [execution]", tech.Tactics)
	}

	bf, ok := idx.Lookup("T1110")
	if !ok {
		t.Fatal("Lookup(T1110) missing")
	}
	if !reflect.DeepEqual(bf.Tactics, []string{"credential-access"}) {
		t.Errorf("tactics = %v, want [credential-access] (foreign kill chains dropped)", bf.Tactics)
	}

	if _, ok := idx.Lookup("G0001"); ok {
		t.Error("intrusion-set object indexed as technique")
	}
}

func TestBuild_OrderedIsSortedByID(t *testing.T) {
	idx, err := Build([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var ids []string
	for _, tech := range idx.Ordered() {
		ids = append(ids, tech.ID)
	}
	if !reflect.DeepEqual(ids, []string{"T1059", "T1110"}) {
		t.Errorf("Ordered ids = %v, want [T1059 T1110]", ids)
	}
}

func TestBuild_DuplicateIDLastWriteWins(t *testing.T) {
	bundle := `{"objects": [
		{"type": "attack-pattern", "name": "Old Name",
		 "external_references": [{"source_name": "mitre-attack", "external_id": "T1003"}]},
		{"type": "attack-pattern", "name": "OS Credential Dumping",
		 "external_references": [{"source_name": "mitre-attack", "external_id": "T1003"}]}
	]}`
	idx, err := Build([]byte(bundle))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", idx.Len())
	}
	tech, _ := idx.Lookup("T1003")
	if tech.Name != "OS Credential Dumping" {
		t.Errorf("name = %q, want last-write-wins OS Credential Dumping", tech.Name)
	}
}

func TestBuild_Keywords(t *testing.T) {
	idx, err := Build([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tech, _ := idx.Lookup("T1059")

	// Name tokens survive at any length; "and" is a stopword.
	for _, kw := range []string{"command", "scripting", "interpreter"} {
		if !tech.HasKeyword(kw) {
			t.Errorf("missing name keyword %q", kw)
		}
	}
	if tech.HasKeyword("and") {
		t.Error("stopword kept as keyword")
	}
	// Description tokens need four characters.
	if !tech.HasKeyword("adversaries") {
		t.Error("missing description keyword adversaries")
	}
	if tech.HasKeyword("may") {
		t.Error("short description token kept as keyword")
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{not json`},
		{"no objects", `{"type": "bundle"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Build([]byte(tt.data))
			var be *BuildError
			if !errors.As(err, &be) {
				t.Fatalf("err = %v, want *BuildError", err)
			}
			if idx == nil || idx.Len() != 0 {
				t.Errorf("want empty index on failure, got %v", idx)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "enterprise-attack.json")
	if err := os.WriteFile(path, []byte(sampleBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := LoadFile(path, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
}

func TestLoadFile_MissingPath(t *testing.T) {
	idx, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"), zap.NewNop())
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BuildError", err)
	}
	if be.Path == "" {
		t.Error("BuildError.Path not set")
	}
	if idx.Len() != 0 {
		t.Errorf("want empty index, got %d techniques", idx.Len())
	}
}

func TestCandidates(t *testing.T) {
	idx, err := Build([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := idx.Candidates(TokenSet("multiple brute force attempts detected"))
	if _, ok := got["T1110"]; !ok {
		t.Errorf("Candidates = %v, want T1110 present", got)
	}
	if _, ok := got["T1059"]; ok {
		t.Errorf("Candidates = %v, T1059 shares no keyword", got)
	}

	if got := idx.Candidates(TokenSet("benign heartbeat")); len(got) != 0 {
		t.Errorf("Candidates(no shared tokens) = %v, want empty", got)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Command and Scripting Interpreter", []string{"command", "and", "scripting", "interpreter"}},
		{"PowerShell -EncodedCommand abc123", []string{"powershell", "encodedcommand", "abc123"}},
		{"  ", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
