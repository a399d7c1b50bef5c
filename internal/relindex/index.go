// Package relindex incrementally folds "tag applied to message" relations
// into a message id -> tags map. Each relation is examined once per
// lifetime of an Index; relations whose target cannot be resolved yet are
// retried on the next update.
package relindex

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/wesm/tagbox/internal/mailbox"
)

var (
	// ErrNotResolved means the relation target is not available yet.
	ErrNotResolved = errors.New("relation target not resolved")
	// ErrMalformed means the relation can never be resolved.
	ErrMalformed = errors.New("malformed relation")
)

// Resolver maps a relation to the id of the message it targets.
type Resolver interface {
	ResolveTarget(rel *mailbox.Relation) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(rel *mailbox.Relation) (string, error)

// ResolveTarget calls f(rel).
func (f ResolverFunc) ResolveTarget(rel *mailbox.Relation) (string, error) {
	return f(rel)
}

// DefaultResolver resolves from the materialized target object first and
// falls back to the object id carried by a queue:// URI. obj:// URIs only
// resolve once the object is materialized.
var DefaultResolver Resolver = ResolverFunc(resolveTarget)

func resolveTarget(rel *mailbox.Relation) (string, error) {
	if obj := rel.Target.Object; obj != nil {
		if obj.ID == "" {
			return "", fmt.Errorf("%w: target object has no id", ErrMalformed)
		}
		return obj.ID, nil
	}
	if rel.Target.URI == "" {
		return "", ErrNotResolved
	}
	scheme, objectID, err := mailbox.ParseRefURI(rel.Target.URI)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if scheme == mailbox.SchemeQueue {
		return objectID, nil
	}
	return "", ErrNotResolved
}

// Recorder receives per-update counters. internal/metrics implements it.
type Recorder interface {
	RecordIndexUpdate(resolved, dropped, evicted, pending int)
}

// Stats describes the index state and cumulative work.
type Stats struct {
	Updates         uint64 `json:"updates"`
	ResolveAttempts uint64 `json:"resolve_attempts"`
	Resolved        uint64 `json:"resolved"`
	Dropped         uint64 `json:"dropped"`
	Evicted         uint64 `json:"evicted"`
	Processed       int    `json:"processed"` // relation ids currently in the processed set
	Pending         int    `json:"pending"`   // unresolved relations seen by the last update
	Messages        int    `json:"messages"`  // messages with at least one relation tag
}

type pair struct {
	messageID string
	tagID     string
}

// entry is the processed-set record of one relation id. contrib is nil for
// relations that were dropped or ignored.
type entry struct {
	gen     uint64
	contrib *pair
	tag     mailbox.Tag
}

// Index is the incremental relation index. It is not safe for concurrent
// use.
type Index struct {
	resolver Resolver
	logger   *slog.Logger
	recorder Recorder

	processed map[string]*entry
	refs      map[pair]int
	tags      map[string][]mailbox.Tag
	gen       uint64
	version   uint64
	stats     Stats
}

// New returns an empty index using DefaultResolver.
func New() *Index {
	return &Index{
		resolver:  DefaultResolver,
		logger:    slog.Default(),
		processed: make(map[string]*entry),
		refs:      make(map[pair]int),
		tags:      make(map[string][]mailbox.Tag),
	}
}

// WithResolver replaces the target resolver.
func (x *Index) WithResolver(r Resolver) *Index {
	x.resolver = r
	return x
}

// WithLogger sets the logger for dropped-relation diagnostics.
func (x *Index) WithLogger(logger *slog.Logger) *Index {
	x.logger = logger
	return x
}

// WithRecorder attaches a metrics recorder.
func (x *Index) WithRecorder(r Recorder) *Index {
	x.recorder = r
	return x
}

// Get returns the accumulated message id -> tags map. The same map is
// returned until an update changes it; a changed index hands out a fresh
// map, so previously returned maps and slices are never modified. Callers
// must treat the result as read-only.
func (x *Index) Get() map[string][]mailbox.Tag {
	return x.tags
}

// Version increases every time Get would return a different map.
func (x *Index) Version() uint64 {
	return x.version
}

// Stats returns a copy of the index counters.
func (x *Index) Stats() Stats {
	s := x.stats
	s.Processed = len(x.processed)
	s.Messages = len(x.tags)
	return s
}

// Update folds the current relation list into the index and reports whether
// the map changed. Only relation ids not yet processed are resolved.
// Processed ids missing from rels are evicted and their tag is removed from
// the map unless another live relation applies the same tag to the same
// message; an evicted id that reappears later is processed again.
func (x *Index) Update(rels []mailbox.Relation) bool {
	x.gen++
	x.stats.Updates++

	var resolved, dropped, evicted, pending, live int
	cloned := false
	mutate := func() {
		if !cloned {
			x.tags = maps.Clone(x.tags)
			cloned = true
		}
	}

	for i := range rels {
		rel := &rels[i]
		if rel.ID == "" {
			continue
		}
		if e, ok := x.processed[rel.ID]; ok {
			if e.gen != x.gen {
				e.gen = x.gen
				live++
			}
			continue
		}

		e, ok := x.process(rel)
		if !ok {
			pending++
			continue
		}
		e.gen = x.gen
		live++
		x.processed[rel.ID] = e
		if e.contrib == nil {
			dropped++
			continue
		}
		resolved++
		x.refs[*e.contrib]++
		if x.refs[*e.contrib] == 1 {
			mutate()
			msgID := e.contrib.messageID
			x.tags[msgID] = append(slices.Clip(x.tags[msgID]), e.tag)
		}
	}

	if live < len(x.processed) {
		for id, e := range x.processed {
			if e.gen == x.gen {
				continue
			}
			delete(x.processed, id)
			evicted++
			if e.contrib == nil {
				continue
			}
			x.refs[*e.contrib]--
			if x.refs[*e.contrib] > 0 {
				continue
			}
			delete(x.refs, *e.contrib)
			mutate()
			x.removeTag(*e.contrib)
		}
	}

	x.stats.Resolved += uint64(resolved)
	x.stats.Dropped += uint64(dropped)
	x.stats.Evicted += uint64(evicted)
	x.stats.Pending = pending
	if x.recorder != nil {
		x.recorder.RecordIndexUpdate(resolved, dropped, evicted, pending)
	}

	if cloned {
		x.version++
	}
	return cloned
}

// Rebuild discards all state and folds rels from scratch. It always
// produces a new map.
func (x *Index) Rebuild(rels []mailbox.Relation) {
	x.processed = make(map[string]*entry)
	x.refs = make(map[pair]int)
	x.tags = make(map[string][]mailbox.Tag)
	x.version++
	x.Update(rels)
}

// process resolves one relation. ok is false when the target is not
// available yet; otherwise the returned entry is ready for the processed
// set, with a nil contrib for relations that must be dropped.
func (x *Index) process(rel *mailbox.Relation) (*entry, bool) {
	if rel.Kind != "" && rel.Kind != mailbox.RelationHasSubject {
		return &entry{}, true
	}
	if rel.Source == nil || rel.Source.ID == "" {
		x.logger.Debug("dropping relation: source is not a tag", "relation", rel.ID)
		return &entry{}, true
	}

	x.stats.ResolveAttempts++
	messageID, err := x.resolver.ResolveTarget(rel)
	switch {
	case errors.Is(err, ErrNotResolved):
		return nil, false
	case err != nil:
		x.logger.Debug("dropping relation", "relation", rel.ID, "error", err)
		return &entry{}, true
	case messageID == "":
		x.logger.Debug("dropping relation: empty target id", "relation", rel.ID)
		return &entry{}, true
	}
	return &entry{
		contrib: &pair{messageID: messageID, tagID: rel.Source.ID},
		tag:     *rel.Source,
	}, true
}

// removeTag drops p.tagID from p.messageID's list without touching the
// slice that may have been handed out before.
func (x *Index) removeTag(p pair) {
	old := x.tags[p.messageID]
	next := make([]mailbox.Tag, 0, len(old))
	for _, t := range old {
		if t.ID != p.tagID {
			next = append(next, t)
		}
	}
	if len(next) == 0 {
		delete(x.tags, p.messageID)
		return
	}
	x.tags[p.messageID] = next
}
