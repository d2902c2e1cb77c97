// Package endpoint defines the REST endpoint kinds the gateway exposes.
package endpoint

// Kind is the category of REST resource a request addresses. It determines
// which permission-table row and which handlers apply.
type Kind string

const (
	// Object addresses a repository object.
	Object Kind = "object"

	// Datastream addresses a datastream on an object.
	Datastream Kind = "datastream"

	// DatastreamToken addresses a timed datastream access token.
	DatastreamToken Kind = "datastream_token"

	// Relationship addresses the relationship triples of an object.
	Relationship Kind = "relationship"

	// Solr addresses the search subsystem.
	Solr Kind = "solr"
)

// Valid reports whether k is a known endpoint kind.
func (k Kind) Valid() bool {
	switch k {
	case Object, Datastream, DatastreamToken, Relationship, Solr:
		return true
	default:
		return false
	}
}

// String returns the string form of the kind.
func (k Kind) String() string {
	return string(k)
}
