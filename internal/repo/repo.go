// Package repo defines the digital-object repository collaborator: the
// object and datastream model, the Repository interface the gateway talks
// to, and its in-memory and HTTP-backed implementations.
package repo

import (
	"context"
	"time"
)

// State is the lifecycle state of an object or datastream.
type State string

const (
	// StateActive marks a resource visible to regular callers.
	StateActive State = "A"

	// StateInactive marks a resource hidden from regular callers.
	StateInactive State = "I"

	// StateDeleted marks a resource flagged for purging.
	StateDeleted State = "D"
)

// Object is an addressable repository entity identified by a persistent id.
type Object struct {
	PID           string                 `json:"pid"`
	Label         string                 `json:"label"`
	OwnerID       string                 `json:"owner_id"`
	State         State                  `json:"state"`
	Created       time.Time              `json:"created"`
	Modified      time.Time              `json:"modified"`
	Datastreams   map[string]*Datastream `json:"datastreams"`
	Relationships []Relationship         `json:"relationships"`
}

// Datastream returns the named datastream, or nil when absent.
func (o *Object) Datastream(id string) *Datastream {
	if o == nil || o.Datastreams == nil {
		return nil
	}
	return o.Datastreams[id]
}

// Datastream is a named sub-resource attached to an object.
type Datastream struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	State        State     `json:"state"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	ChecksumType string    `json:"checksum_type"`
	ControlGroup string    `json:"control_group"`
	Versionable  bool      `json:"versionable"`
	Created      time.Time `json:"created"`
}

// Relationship is a triple asserted about an object. The subject is the
// owning object, so only the predicate and target are stored.
type Relationship struct {
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Literal   bool   `json:"literal"`
}

// ObjectUpdate carries the mutable object properties. Nil fields are left
// unchanged.
type ObjectUpdate struct {
	Label   *string
	OwnerID *string
	State   *State
}

// DatastreamUpdate carries the mutable datastream properties. Nil fields are
// left unchanged.
type DatastreamUpdate struct {
	Label        *string
	MimeType     *string
	State        *State
	Versionable  *bool
	ChecksumType *string
}

// Repository is the backend the gateway resolves resources against. Errors
// returned by implementations carry an HTTP status through apierr so the
// pipeline can preserve the backend's status when wrapping.
type Repository interface {
	GetObject(ctx context.Context, pid string) (*Object, error)
	ListObjects(ctx context.Context, offset, limit int) ([]*Object, int, error)
	CreateObject(ctx context.Context, obj *Object) (*Object, error)
	UpdateObject(ctx context.Context, pid string, upd ObjectUpdate) (*Object, error)
	DeleteObject(ctx context.Context, pid string) error

	AddDatastream(ctx context.Context, pid string, ds *Datastream, content []byte) (*Datastream, error)
	UpdateDatastream(ctx context.Context, pid, dsid string, upd DatastreamUpdate, content []byte) (*Datastream, error)
	DeleteDatastream(ctx context.Context, pid, dsid string) error
	DatastreamContent(ctx context.Context, pid, dsid string) ([]byte, string, error)

	AddRelationship(ctx context.Context, pid string, rel Relationship) error
	PurgeRelationships(ctx context.Context, pid string, match Relationship) (int, error)
}

// ResourceKind tags the variant held by a Resource.
type ResourceKind int

const (
	// ResourceNone means no repository resource was addressed.
	ResourceNone ResourceKind = iota

	// ResourceObject means an object was addressed.
	ResourceObject

	// ResourceDatastream means a datastream on an object was addressed.
	ResourceDatastream
)

// String returns the string representation of the kind.
func (k ResourceKind) String() string {
	switch k {
	case ResourceObject:
		return "object"
	case ResourceDatastream:
		return "datastream"
	default:
		return "none"
	}
}

// Resource is the tagged union of what a request's path addressed. For a
// datastream resource the owning object is kept alongside it.
type Resource struct {
	Kind       ResourceKind
	Object     *Object
	Datastream *Datastream
}

// NoResource returns the empty variant.
func NoResource() Resource {
	return Resource{Kind: ResourceNone}
}

// ObjectResource returns the object variant.
func ObjectResource(obj *Object) Resource {
	return Resource{Kind: ResourceObject, Object: obj}
}

// DatastreamResource returns the datastream variant.
func DatastreamResource(obj *Object, ds *Datastream) Resource {
	return Resource{Kind: ResourceDatastream, Object: obj, Datastream: ds}
}
