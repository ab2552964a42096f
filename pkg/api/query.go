package api

import (
	"encoding/gob"
	"fmt"
	"maps"
	"slices"
	"strings"
)

func init() {
	gob.Register(AllQuery{})
	gob.Register(IDQuery{})
	gob.Register(ParamsQuery{})
}

// Query selects entities in a DataSource. The engine never looks inside a
// query; only DataSource implementations interpret it.
//
// Key returns a canonical text form. Two queries with the same Key must
// select the same entities. Custom query types used with a durable retry
// queue have to be registered with gob.Register.
type Query interface {
	Key() string
}

// AllQuery matches every entity.
type AllQuery struct{}

func (AllQuery) Key() string { return "all" }

// IDQuery matches the entity with the given identifier.
type IDQuery struct {
	ID string
}

func (q IDQuery) Key() string { return "id:" + q.ID }

// ParamsQuery matches entities whose top-level fields equal every value
// in Params.
type ParamsQuery struct {
	Params map[string]any
}

func (q ParamsQuery) Key() string {
	keys := slices.Sorted(maps.Keys(q.Params))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, q.Params[k]))
	}
	return "params:" + strings.Join(parts, "&")
}

// All returns the match-all query.
func All() Query {
	return AllQuery{}
}

// ByID returns a query matching a single identifier.
func ByID(id string) Query {
	return IDQuery{ID: id}
}

// ByParams returns a query matching entities by field values.
// The map is copied.
func ByParams(params map[string]any) Query {
	return ParamsQuery{Params: maps.Clone(params)}
}
