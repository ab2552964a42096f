package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// RequestKind tags a Request.
type RequestKind string

const (
	KindCreate RequestKind = "create"
	KindUpdate RequestKind = "update"
	KindDelete RequestKind = "delete"
	KindFetch  RequestKind = "fetch"
)

// Valid reports whether k is one of the four request kinds.
func (k RequestKind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete, KindFetch:
		return true
	}
	return false
}

// Request is one public operation in normalized form. It is immutable:
// create it with NewCreate, NewUpdate, NewDelete or NewFetch.
//
// Every request carries a unique ID. Retry queues decide separately
// whether two requests are the same buffered item (see Fingerprint).
type Request[T any] struct {
	id     string
	kind   RequestKind
	entity T
	query  Query
}

func NewCreate[T any](entity T) Request[T] {
	return Request[T]{id: uuid.NewString(), kind: KindCreate, entity: entity}
}

func NewUpdate[T any](entity T) Request[T] {
	return Request[T]{id: uuid.NewString(), kind: KindUpdate, entity: entity}
}

func NewDelete[T any](q Query) Request[T] {
	return Request[T]{id: uuid.NewString(), kind: KindDelete, query: q}
}

func NewFetch[T any](q Query) Request[T] {
	return Request[T]{id: uuid.NewString(), kind: KindFetch, query: q}
}

// RestoreRequest rebuilds a request read back from storage, keeping its
// original ID.
func RestoreRequest[T any](id string, kind RequestKind, entity T, q Query) (Request[T], error) {
	if id == "" {
		return Request[T]{}, fmt.Errorf("restore request: empty id")
	}
	if !kind.Valid() {
		return Request[T]{}, fmt.Errorf("restore request %s: invalid kind %q", id, kind)
	}
	if (kind == KindDelete || kind == KindFetch) && q == nil {
		return Request[T]{}, fmt.Errorf("restore request %s: %w", id, ErrNilQuery)
	}
	return Request[T]{id: id, kind: kind, entity: entity, query: q}, nil
}

func (r Request[T]) ID() string        { return r.id }
func (r Request[T]) Kind() RequestKind { return r.kind }

// Entity returns the payload of a Create or Update request.
func (r Request[T]) Entity() T { return r.entity }

// Query returns the payload of a Delete or Fetch request.
func (r Request[T]) Query() Query { return r.query }

// Queueable reports whether the request may be buffered in a retry queue.
// Fetches are never buffered.
func (r Request[T]) Queueable() bool {
	return r.kind == KindCreate || r.kind == KindUpdate || r.kind == KindDelete
}

// Action returns the DataSource call this request stands for.
func (r Request[T]) Action() Action[T] {
	switch r.kind {
	case KindCreate:
		return func(ctx context.Context, ds DataSource[T]) Sequence[T] {
			return ds.Create(ctx, r.entity)
		}
	case KindUpdate:
		return func(ctx context.Context, ds DataSource[T]) Sequence[T] {
			return ds.Update(ctx, r.entity)
		}
	case KindDelete:
		return func(ctx context.Context, ds DataSource[T]) Sequence[T] {
			return ds.Delete(ctx, r.query)
		}
	case KindFetch:
		return func(ctx context.Context, ds DataSource[T]) Sequence[T] {
			return ds.Fetch(ctx, r.query)
		}
	}
	return func(context.Context, DataSource[T]) Sequence[T] {
		return Fail[T](fmt.Errorf("%w: request kind %q", ErrUnsupportedOperation, r.kind))
	}
}

// Fingerprint is a content hash of the request: its kind plus the canonical
// form of its payload. Two requests carrying the same edit share a
// fingerprint even though their IDs differ.
func (r Request[T]) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(r.kind))
	h.Write([]byte{0x00})
	h.Write([]byte(r.payloadKey()))
	return hex.EncodeToString(h.Sum(nil))
}

func (r Request[T]) payloadKey() string {
	if r.kind == KindDelete || r.kind == KindFetch {
		if r.query == nil {
			return ""
		}
		return r.query.Key()
	}
	data, err := json.Marshal(r.entity)
	if err != nil {
		return fmt.Sprintf("%#v", r.entity)
	}
	return string(data)
}

// Info summarizes the request for observers and logs.
func (r Request[T]) Info() RequestInfo {
	info := RequestInfo{ID: r.id, Kind: r.kind}
	if r.query != nil {
		info.Query = r.query.Key()
	}
	return info
}

func (r Request[T]) String() string {
	if r.query != nil {
		return fmt.Sprintf("%s(%s)#%s", r.kind, r.query.Key(), r.id)
	}
	return fmt.Sprintf("%s#%s", r.kind, r.id)
}

// RequestInfo is the non-generic view of a request handed to observers.
type RequestInfo struct {
	ID   string
	Kind RequestKind
	// Query is the canonical key of the request's query, empty for
	// Create and Update.
	Query string
}
