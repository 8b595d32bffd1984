// Package mitre builds a searchable technique index from a MITRE ATT&CK
// STIX bundle. The index is built once per corpus version and is read-only
// afterwards, so concurrent readers need no synchronization.
package mitre

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
)

// Recognized external-reference source names for technique identifiers.
var recognizedSources = map[string]bool{
	"mitre-attack":        true,
	"mitre-ics-attack":    true,
	"mitre-mobile-attack": true,
}

// attackKillChain is the canonical kill chain whose phases become tactics.
const attackKillChain = "mitre-attack"

// Technique is one indexed attack pattern.
type Technique struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Tactics  []string `json:"tactics"`
	Keywords []string `json:"keywords"`

	keywordSet map[string]struct{}
}

// HasKeyword reports whether token is one of the technique's keywords.
func (t *Technique) HasKeyword(token string) bool {
	_, ok := t.keywordSet[token]
	return ok
}

// BuildError reports a missing or malformed technique corpus. Callers may
// fall back to an empty index (degraded mode, all lookups empty) instead
// of aborting; that is the documented default.
type BuildError struct {
	Path string
	Err  error
}

func (e *BuildError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("building technique index from %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("building technique index: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Index is the immutable technique index.
type Index struct {
	byID     map[string]*Technique
	ordered  []*Technique
	inverted map[string][]string // keyword token -> technique ids
}

// STIX bundle subset we care about.

type stixBundle struct {
	Objects []stixObject `json:"objects"`
}

type stixObject struct {
	Type               string              `json:"type"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	ExternalReferences []externalReference `json:"external_references"`
	KillChainPhases    []killChainPhase    `json:"kill_chain_phases"`
}

type externalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
}

type killChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// Empty returns an index with no techniques, used for degraded mode.
func Empty() *Index {
	return &Index{
		byID:     map[string]*Technique{},
		inverted: map[string][]string{},
	}
}

// LoadFile builds an index from a STIX bundle on disk. On failure it
// returns an empty index along with a *BuildError so the caller can run
// degraded.
func LoadFile(path string, logger *zap.Logger) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Empty(), &BuildError{Path: path, Err: err}
	}
	idx, err := Build(data)
	if err != nil {
		if be, ok := err.(*BuildError); ok {
			be.Path = path
		}
		return Empty(), err
	}
	logger.Info("technique index built",
		zap.String("corpus", path),
		zap.Int("techniques", idx.Len()),
	)
	return idx, nil
}

// Build parses a STIX bundle and indexes every attack-pattern object that
// carries a recognized external identifier. Duplicate ids are
// last-write-wins, since corpora may list deprecated or renamed
// techniques under one id.
func Build(data []byte) (*Index, error) {
	var bundle stixBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return Empty(), &BuildError{Err: fmt.Errorf("parsing corpus: %w", err)}
	}
	if bundle.Objects == nil {
		return Empty(), &BuildError{Err: fmt.Errorf("corpus has no objects collection")}
	}

	byID := make(map[string]*Technique)
	for _, obj := range bundle.Objects {
		if obj.Type != "attack-pattern" {
			continue
		}
		id := externalID(obj.ExternalReferences)
		if id == "" {
			continue
		}
		var tactics []string
		for _, kc := range obj.KillChainPhases {
			if kc.KillChainName == attackKillChain {
				tactics = append(tactics, kc.PhaseName)
			}
		}
		byID[id] = &Technique{
			ID:      id,
			Name:    obj.Name,
			Tactics: tactics,
		}
		byID[id].setKeywords(deriveKeywords(obj.Name, obj.Description))
	}

	idx := &Index{
		byID:     byID,
		ordered:  make([]*Technique, 0, len(byID)),
		inverted: make(map[string][]string),
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := byID[id]
		idx.ordered = append(idx.ordered, t)
		for _, kw := range t.Keywords {
			idx.inverted[kw] = append(idx.inverted[kw], id)
		}
	}
	return idx, nil
}

func externalID(refs []externalReference) string {
	for _, ref := range refs {
		if recognizedSources[ref.SourceName] {
			return ref.ExternalID
		}
	}
	return ""
}

func (t *Technique) setKeywords(keywords []string) {
	t.Keywords = keywords
	t.keywordSet = make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		t.keywordSet[kw] = struct{}{}
	}
}

// Lookup returns the technique for an id.
func (x *Index) Lookup(id string) (*Technique, bool) {
	t, ok := x.byID[id]
	return t, ok
}

// All returns the id -> technique mapping. Callers must not mutate it.
func (x *Index) All() map[string]*Technique {
	return x.byID
}

// Ordered returns techniques sorted by id. Iterating this keeps match
// discovery order, and downstream first-seen tie-breaks, deterministic.
func (x *Index) Ordered() []*Technique {
	return x.ordered
}

// Candidates returns the ids of techniques sharing at least one keyword
// with the given surface tokens. Only candidates can reach the two
// keyword hits a partial match requires.
func (x *Index) Candidates(tokens map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for tok := range tokens {
		for _, id := range x.inverted[tok] {
			out[id] = struct{}{}
		}
	}
	return out
}

// Len returns the number of indexed techniques.
func (x *Index) Len() int {
	return len(x.byID)
}
