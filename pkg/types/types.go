package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Space identifies an authorisation/ownership domain. Each space holds
// its own replica and its own commit sequence.
type Space string

// EntityID is an opaque entity identifier in "of:<string>" form,
// unique within a space.
type EntityID string

// EntityPrefix is the required prefix of every EntityID.
const EntityPrefix = "of:"

// NewEntityID builds an EntityID from a raw suffix.
func NewEntityID(suffix string) EntityID {
	return EntityID(EntityPrefix + suffix)
}

// Valid reports whether the id carries the "of:" prefix.
func (id EntityID) Valid() bool {
	return strings.HasPrefix(string(id), EntityPrefix)
}

// MediaType describes the encoding of a fact's value.
type MediaType string

// ApplicationJSON is the only media type the core stores directly.
// Data-URI links may carry other media types, which are rejected on
// read unless they match the address.
const ApplicationJSON MediaType = "application/json"

// Path addresses a position inside a JSON value. Segments are object
// keys; array positions use the decimal form of the index, plus the
// special segment "length".
type Path []string

// LengthSegment addresses the length of an array.
const LengthSegment = "length"

// Index parses a path segment as a non-negative array index.
func Index(segment string) (int, bool) {
	if segment == "" || (segment[0] == '0' && len(segment) > 1) {
		return 0, false
	}
	i, err := strconv.Atoi(segment)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// IndexSegment renders an array index as a path segment.
func IndexSegment(i int) string {
	return strconv.Itoa(i)
}

// Append returns a new path with extra segments, never sharing the
// backing array with the receiver.
func (p Path) Append(segments ...string) Path {
	next := make(Path, 0, len(p)+len(segments))
	next = append(next, p...)
	return append(next, segments...)
}

// HasPrefix reports whether prefix is a (non-strict) prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, segment := range prefix {
		if p[i] != segment {
			return false
		}
	}
	return true
}

// Overlaps reports whether one path is a prefix of the other. Two
// addresses with overlapping paths can observe each other's writes.
func (p Path) Overlaps(other Path) bool {
	return p.HasPrefix(other) || other.HasPrefix(p)
}

// Equal reports segment-wise equality.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

// Address names a position inside one fact of one space.
type Address struct {
	Space Space     `json:"space"`
	ID    EntityID  `json:"id"`
	Type  MediaType `json:"type"`
	Path  Path      `json:"path"`
}

// Key returns the (entity, type) pair of the address.
func (a Address) Key() FactKey {
	return FactKey{Of: a.ID, The: a.Type}
}

// At derives the address of a sub-path.
func (a Address) At(segments ...string) Address {
	a.Path = a.Path.Append(segments...)
	return a
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%s/%s%s", a.Space, a.ID, a.Type, a.Path)
}

// Reference is a canonical content hash, rendered as "ref:<hex>".
// The empty reference means "no prior fact" (unclaimed).
type Reference string

// Fact is the canonical value of an entity at a moment. A fact with a
// nil Is is a retraction; a fact that was never asserted is unclaimed.
// Cause links to the hash of the prior fact, forming the per-entity
// history chain.
type Fact struct {
	The   MediaType `json:"the"`
	Of    EntityID  `json:"of"`
	Is    any       `json:"is,omitempty"`
	Cause Reference `json:"cause,omitempty"`
}

// Retracted reports whether the fact withdraws its entity's value.
func (f Fact) Retracted() bool {
	return f.Is == nil
}

// Key returns the (of, the) pair the fact is stored under.
func (f Fact) Key() FactKey {
	return FactKey{Of: f.Of, The: f.The}
}

// FactKey is the map key a replica stores facts under.
type FactKey struct {
	Of  EntityID
	The MediaType
}

func (k FactKey) String() string {
	return string(k.Of) + "|" + string(k.The)
}

// Claim records the fact hash a transaction observed for one entity.
// An empty Expected claims the entity was unclaimed.
type Claim struct {
	Of       EntityID  `json:"of"`
	The      MediaType `json:"the"`
	Expected Reference `json:"expected,omitempty"`
}

// Changes is the payload a transaction submits to a replica: the
// claims it made while reading and the facts it derived while writing.
// The replica applies it atomically or not at all.
type Changes struct {
	Claims []Claim `json:"claims"`
	Facts  []Fact  `json:"facts"`
}

// Commit is the replica's acknowledgement of applied changes.
type Commit struct {
	Space Space     `json:"space"`
	Since uint64    `json:"since"`
	At    time.Time `json:"at"`
}

// Revision is one entry of a query result: the composed view of an
// entity plus the hash and commit sequence it was observed at.
type Revision struct {
	Value   any       `json:"value,omitempty"`
	Hash    Reference `json:"hash,omitempty"`
	Version uint64    `json:"version"`
}

// Selector names the entities a query or subscription covers. An
// empty map selects nothing; callers enumerate entity ids explicitly.
type Selector map[EntityID]struct{}
