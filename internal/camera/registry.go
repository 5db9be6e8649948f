package camera

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/smazurov/ezvizbridge/internal/host"
)

// EntityDomain prefixes every entity id.
const EntityDomain = "camera"

// Registry holds the entities created by Setup, in registration order.
type Registry struct {
	mu       sync.RWMutex
	entities []*Entity
	byID     map[string]*Entity
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Entity)}
}

// Add assigns an entity id to each entity and stores it.
func (r *Registry) Add(entities ...*Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entities {
		base := Slugify(e.Name())
		if base == "" {
			base = Slugify(e.Serial())
		}
		id := EntityDomain + "." + base
		for n := 2; r.byID[id] != nil; n++ {
			id = EntityDomain + "." + base + "_" + strconv.Itoa(n)
		}

		e.setEntityID(id)
		r.entities = append(r.entities, e)
		r.byID[id] = e
	}
}

// All returns every entity in registration order.
func (r *Registry) All() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entities)
}

// Len returns the number of entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Get looks an entity up by id.
func (r *Registry) Get(id string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

// Resolve maps target ids to entities. No ids or "all" selects every entity;
// otherwise the result is the registered entities whose id is listed, in
// registration order.
func (r *Registry) Resolve(ids []string) []*Entity {
	if len(ids) == 0 || slices.Contains(ids, host.EntityMatchAll) {
		return r.All()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entity
	for _, e := range r.entities {
		if slices.Contains(ids, e.entityID) {
			out = append(out, e)
		}
	}
	return out
}

// Pollables adapts the entities for host.Poller.
func (r *Registry) Pollables() []host.Pollable {
	all := r.All()
	out := make([]host.Pollable, len(all))
	for i, e := range all {
		out[i] = e
	}
	return out
}

// Clear removes and returns every entity.
func (r *Registry) Clear() []*Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.entities
	r.entities = nil
	r.byID = make(map[string]*Entity)
	return out
}

// Slugify lowercases s and collapses runs of other characters to "_".
func Slugify(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
