package retryqueue

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/netguru/repolib/pkg/api"
)

// envelope is the stored form of a request. Query is an interface, so
// custom query types must be registered with gob.Register.
type envelope[T any] struct {
	ID     string
	Kind   api.RequestKind
	Entity T
	Query  api.Query
}

// encodeRequest gob-encodes a request.
func encodeRequest[T any](r api.Request[T]) ([]byte, error) {
	env := envelope[T]{
		ID:     r.ID(),
		Kind:   r.Kind(),
		Entity: r.Entity(),
		Query:  r.Query(),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return nil, fmt.Errorf("encode request %s: %w", r.ID(), err)
	}
	return buf.Bytes(), nil
}

// decodeRequest gob-decodes a request, keeping its original ID.
func decodeRequest[T any](data []byte) (api.Request[T], error) {
	var env envelope[T]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return api.Request[T]{}, fmt.Errorf("decode request: %w", err)
	}
	return api.RestoreRequest(env.ID, env.Kind, env.Entity, env.Query)
}
