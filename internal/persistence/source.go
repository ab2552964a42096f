// Package persistence provides DataSource adapters over concrete stores.
//
// Every adapter stores entities as JSON documents keyed by a caller-supplied
// IDFunc and shares the same semantics:
//
//   - Create is an upsert; an existing entity keeps its position
//   - Update of an unknown identifier fails with api.ErrNotFound
//   - Delete emits the entities it removed
//   - Fetch emits matches in insertion order
//
// Queries understood: api.AllQuery, api.IDQuery and api.ParamsQuery, where
// ParamsQuery matches top-level JSON fields by equality. Anything else fails
// with api.ErrUnsupportedOperation.
package persistence

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	"github.com/netguru/repolib/pkg/api"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func unsupportedQuery(q api.Query) error {
	return fmt.Errorf("%w: query %T", api.ErrUnsupportedOperation, q)
}

func notFound(id string) error {
	return fmt.Errorf("update %q: %w", id, api.ErrNotFound)
}

func checkParamNames(params map[string]any) error {
	for k := range params {
		if !identifier.MatchString(k) {
			return fmt.Errorf("%w: parameter name %q", api.ErrUnsupportedOperation, k)
		}
	}
	return nil
}

func encodeEntity[T any](v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	return data, nil
}

func decodeEntity[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode entity: %w", err)
	}
	return v, nil
}

// fieldsOf returns the top-level JSON fields of an encoded entity, or nil
// when it is not a JSON object.
func fieldsOf(data []byte) map[string]any {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

// normalize gives v the shape it would have after a JSON round trip, so
// that an int parameter compares equal to a decoded float64 field.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// matchesParams reports whether every parameter equals the field of the
// same name in the encoded entity.
func matchesParams(data []byte, params map[string]any) bool {
	fields := fieldsOf(data)
	for k, want := range params {
		got, ok := fields[k]
		if !ok || !reflect.DeepEqual(got, normalize(want)) {
			return false
		}
	}
	return true
}

// docMatcher builds a predicate over (id, encoded entity) for stores that
// filter in process.
func docMatcher(q api.Query) (func(id string, data []byte) bool, error) {
	switch q := q.(type) {
	case api.AllQuery:
		return func(string, []byte) bool { return true }, nil
	case api.IDQuery:
		return func(id string, _ []byte) bool { return id == q.ID }, nil
	case api.ParamsQuery:
		return func(_ string, data []byte) bool { return matchesParams(data, q.Params) }, nil
	case nil:
		return nil, api.ErrNilQuery
	default:
		return nil, unsupportedQuery(q)
	}
}
