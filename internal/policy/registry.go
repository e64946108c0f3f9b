// Package policy defines per-reference preprocessing policies that control how
// FASTA record names are canonicalized and how much of a reference is read.
package policy

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultName is the policy used when a reference declares no extra processing.
const DefaultName = "default"

// Policy describes how to canonicalize the records of one reference family.
type Policy struct {
	// ExpectedCount is the exact number of records the built index must hold.
	// Nil disables the check.
	ExpectedCount *int
	// StopMarker ends parsing when a record with this original or canonical
	// name is reached. The marker record itself is not indexed. Empty disables.
	StopMarker string
	// Rename maps a FASTA record name to its canonical index key.
	Rename func(string) string
}

// CanonicalName applies the policy's rename transform, treating a nil
// transform as identity.
func (p Policy) CanonicalName(name string) string {
	if p.Rename == nil {
		return name
	}
	return p.Rename(name)
}

// UnknownPolicyError is returned when a reference names a policy that is not
// in the registry.
type UnknownPolicyError struct {
	Name string
}

func (e *UnknownPolicyError) Error() string {
	return fmt.Sprintf("unknown extra preprocessing: %q", e.Name)
}

// Registry is a closed mapping from policy name to Policy.
type Registry struct {
	policies map[string]Policy
}

// New creates a registry from the given policies. A "default" identity policy
// is added when the map does not define one.
func New(policies map[string]Policy) *Registry {
	r := &Registry{policies: make(map[string]Policy, len(policies)+1)}
	for name, p := range policies {
		r.policies[name] = p
	}
	if _, ok := r.policies[DefaultName]; !ok {
		r.policies[DefaultName] = Policy{Rename: Identity}
	}
	return r
}

// Default returns the registry of known reference families.
func Default() *Registry {
	return New(map[string]Policy{
		DefaultName: {Rename: Identity},
		// Chromosomes only, not the contigs that follow MT.
		"ENSEMBL_HUMAN_GENOME": {ExpectedCount: intPtr(24), StopMarker: "MT", Rename: AddPrefix("chr")},
		"ENSEMBL_MOUSE_GENOME": {ExpectedCount: intPtr(21), StopMarker: "MT", Rename: AddPrefix("chr")},
		"ENSEMBL_HUMAN_TRANSCRIPTOME": {Rename: StripEnsemblTranscriptVersion},
	})
}

// Lookup returns the named policy. An empty name resolves to the default policy.
func (r *Registry) Lookup(name string) (Policy, error) {
	if name == "" {
		name = DefaultName
	}
	p, ok := r.policies[name]
	if !ok {
		return Policy{}, &UnknownPolicyError{Name: name}
	}
	return p, nil
}

// Names returns all registered policy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Identity returns the name unchanged.
func Identity(name string) string {
	return name
}

// AddPrefix returns a transform that prepends prefix to every record name.
func AddPrefix(prefix string) func(string) string {
	return func(name string) string {
		return prefix + name
	}
}

var enstVersion = regexp.MustCompile(`ENST([0-9]*)[.][0-9]*`)

// StripEnsemblTranscriptVersion removes the version suffix from Ensembl
// transcript IDs, e.g. "ENST00000311936.8" -> "ENST00000311936".
func StripEnsemblTranscriptVersion(name string) string {
	return enstVersion.ReplaceAllString(name, "ENST${1}")
}

func intPtr(n int) *int {
	return &n
}
