package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dorepo/restgw/internal/apierr"
)

// MemoryRepository is an in-process Repository used for the embedded backend
// mode and for tests. All returned objects are deep copies so callers never
// observe concurrent mutation.
type MemoryRepository struct {
	mu      sync.RWMutex
	objects map[string]*Object
	content map[string]map[string][]byte
	nowFn   func() time.Time
}

// MemoryOption is a functional option for the memory repository.
type MemoryOption func(*MemoryRepository)

// WithClock sets the clock used for created/modified stamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(r *MemoryRepository) {
		r.nowFn = now
	}
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		objects: make(map[string]*Object),
		content: make(map[string]map[string][]byte),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetObject returns the object with the given pid.
func (r *MemoryRepository) GetObject(_ context.Context, pid string) (*Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[pid]
	if !ok {
		return nil, apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	return cloneObject(obj), nil
}

// ListObjects returns a page of objects ordered by pid, plus the total count.
func (r *MemoryRepository) ListObjects(_ context.Context, offset, limit int) ([]*Object, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pids := make([]string, 0, len(r.objects))
	for pid := range r.objects {
		pids = append(pids, pid)
	}
	sort.Strings(pids)

	total := len(pids)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]*Object, 0, end-offset)
	for _, pid := range pids[offset:end] {
		page = append(page, cloneObject(r.objects[pid]))
	}
	return page, total, nil
}

// CreateObject stores a new object. A pid is generated when absent.
func (r *MemoryRepository) CreateObject(_ context.Context, obj *Object) (*Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneObject(obj)
	if stored.PID == "" {
		stored.PID = fmt.Sprintf("rest:%s", uuid.NewString())
	}
	if _, exists := r.objects[stored.PID]; exists {
		return nil, apierr.Newf(http.StatusConflict, "object %s already exists", stored.PID)
	}
	if stored.State == "" {
		stored.State = StateActive
	}
	if stored.Datastreams == nil {
		stored.Datastreams = make(map[string]*Datastream)
	}
	now := r.nowFn()
	stored.Created = now
	stored.Modified = now

	r.objects[stored.PID] = stored
	return cloneObject(stored), nil
}

// UpdateObject applies the update to an existing object.
func (r *MemoryRepository) UpdateObject(_ context.Context, pid string, upd ObjectUpdate) (*Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[pid]
	if !ok {
		return nil, apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	if upd.Label != nil {
		obj.Label = *upd.Label
	}
	if upd.OwnerID != nil {
		obj.OwnerID = *upd.OwnerID
	}
	if upd.State != nil {
		obj.State = *upd.State
	}
	obj.Modified = r.nowFn()
	return cloneObject(obj), nil
}

// DeleteObject purges an object and its datastream content.
func (r *MemoryRepository) DeleteObject(_ context.Context, pid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.objects[pid]; !ok {
		return apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	delete(r.objects, pid)
	delete(r.content, pid)
	return nil
}

// AddDatastream attaches a datastream to an object.
func (r *MemoryRepository) AddDatastream(_ context.Context, pid string, ds *Datastream, content []byte) (*Datastream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[pid]
	if !ok {
		return nil, apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	if ds.ID == "" {
		return nil, apierr.New(http.StatusBadRequest, "datastream id is required")
	}
	if _, exists := obj.Datastreams[ds.ID]; exists {
		return nil, apierr.Newf(http.StatusConflict, "datastream %s already exists on %s", ds.ID, pid)
	}

	stored := cloneDatastream(ds)
	if stored.State == "" {
		stored.State = StateActive
	}
	if stored.MimeType == "" {
		stored.MimeType = "application/octet-stream"
	}
	if stored.ControlGroup == "" {
		stored.ControlGroup = "M"
	}
	stored.Created = r.nowFn()
	stored.Size = int64(len(content))
	stored.Checksum = checksum(content)
	stored.ChecksumType = "SHA-256"

	obj.Datastreams[stored.ID] = stored
	obj.Modified = stored.Created
	r.setContent(pid, stored.ID, content)
	return cloneDatastream(stored), nil
}

// UpdateDatastream applies property and content updates to a datastream.
func (r *MemoryRepository) UpdateDatastream(_ context.Context, pid, dsid string, upd DatastreamUpdate, content []byte) (*Datastream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[pid]
	if !ok {
		return nil, apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	ds, ok := obj.Datastreams[dsid]
	if !ok {
		return nil, apierr.Newf(http.StatusNotFound, "datastream %s not found on %s", dsid, pid)
	}
	if upd.Label != nil {
		ds.Label = *upd.Label
	}
	if upd.MimeType != nil {
		ds.MimeType = *upd.MimeType
	}
	if upd.State != nil {
		ds.State = *upd.State
	}
	if upd.Versionable != nil {
		ds.Versionable = *upd.Versionable
	}
	if upd.ChecksumType != nil {
		ds.ChecksumType = *upd.ChecksumType
	}
	// New content recomputes the checksum, superseding a requested type.
	if content != nil {
		ds.Size = int64(len(content))
		ds.Checksum = checksum(content)
		ds.ChecksumType = "SHA-256"
		r.setContent(pid, dsid, content)
	}
	obj.Modified = r.nowFn()
	return cloneDatastream(ds), nil
}

// DeleteDatastream purges a datastream and its content.
func (r *MemoryRepository) DeleteDatastream(_ context.Context, pid, dsid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[pid]
	if !ok {
		return apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	if _, ok := obj.Datastreams[dsid]; !ok {
		return apierr.Newf(http.StatusNotFound, "datastream %s not found on %s", dsid, pid)
	}
	delete(obj.Datastreams, dsid)
	if streams, ok := r.content[pid]; ok {
		delete(streams, dsid)
	}
	obj.Modified = r.nowFn()
	return nil
}

// DatastreamContent returns the stored bytes and mime type of a datastream.
func (r *MemoryRepository) DatastreamContent(_ context.Context, pid, dsid string) ([]byte, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[pid]
	if !ok {
		return nil, "", apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	ds, ok := obj.Datastreams[dsid]
	if !ok {
		return nil, "", apierr.Newf(http.StatusNotFound, "datastream %s not found on %s", dsid, pid)
	}

	var data []byte
	if streams, ok := r.content[pid]; ok {
		data = append([]byte(nil), streams[dsid]...)
	}
	return data, ds.MimeType, nil
}

// AddRelationship asserts a triple on an object.
func (r *MemoryRepository) AddRelationship(_ context.Context, pid string, rel Relationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[pid]
	if !ok {
		return apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}
	obj.Relationships = append(obj.Relationships, rel)
	obj.Modified = r.nowFn()
	return nil
}

// PurgeRelationships removes triples matching the given pattern. Empty
// pattern fields match anything; the number removed is returned.
func (r *MemoryRepository) PurgeRelationships(_ context.Context, pid string, match Relationship) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[pid]
	if !ok {
		return 0, apierr.Newf(http.StatusNotFound, "object %s not found", pid)
	}

	kept := obj.Relationships[:0]
	removed := 0
	for _, rel := range obj.Relationships {
		if relationshipMatches(rel, match) {
			removed++
			continue
		}
		kept = append(kept, rel)
	}
	obj.Relationships = kept
	if removed > 0 {
		obj.Modified = r.nowFn()
	}
	return removed, nil
}

// relationshipMatches reports whether rel matches the pattern.
func relationshipMatches(rel, match Relationship) bool {
	if match.Predicate != "" && rel.Predicate != match.Predicate {
		return false
	}
	if match.Object != "" && rel.Object != match.Object {
		return false
	}
	return true
}

// setContent stores datastream bytes (caller must hold the lock).
func (r *MemoryRepository) setContent(pid, dsid string, content []byte) {
	streams, ok := r.content[pid]
	if !ok {
		streams = make(map[string][]byte)
		r.content[pid] = streams
	}
	streams[dsid] = append([]byte(nil), content...)
}

// checksum returns the hex SHA-256 digest of data.
func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// cloneObject deep-copies an object.
func cloneObject(obj *Object) *Object {
	if obj == nil {
		return nil
	}
	out := *obj
	out.Datastreams = make(map[string]*Datastream, len(obj.Datastreams))
	for id, ds := range obj.Datastreams {
		out.Datastreams[id] = cloneDatastream(ds)
	}
	out.Relationships = append([]Relationship(nil), obj.Relationships...)
	return &out
}

// cloneDatastream copies a datastream.
func cloneDatastream(ds *Datastream) *Datastream {
	if ds == nil {
		return nil
	}
	out := *ds
	return &out
}

// Ensure MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)
