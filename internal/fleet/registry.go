package fleet

import (
	"fmt"
	"sort"

	"github.com/cxd309/transit-engine/internal/simerr"
)

// Registry owns all live vehicles, keyed by ID.
type Registry struct {
	vehicles map[VehicleID]*Vehicle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{vehicles: make(map[VehicleID]*Vehicle)}
}

// Add inserts v. IDs must be unique.
func (r *Registry) Add(v *Vehicle) error {
	if v == nil {
		return fmt.Errorf("nil vehicle: %w", simerr.ErrInvalidInput)
	}
	if _, exists := r.vehicles[v.ID]; exists {
		return fmt.Errorf("vehicle %d: %w", v.ID, simerr.ErrDuplicateID)
	}
	r.vehicles[v.ID] = v
	return nil
}

// Remove deletes the vehicle with id and reports whether it was present.
func (r *Registry) Remove(id VehicleID) bool {
	if _, ok := r.vehicles[id]; !ok {
		return false
	}
	delete(r.vehicles, id)
	return true
}

// Get returns the vehicle with id.
func (r *Registry) Get(id VehicleID) (*Vehicle, error) {
	v, ok := r.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("vehicle %d: %w", id, simerr.ErrNotFound)
	}
	return v, nil
}

// TryGet returns the vehicle with id, if present.
func (r *Registry) TryGet(id VehicleID) (*Vehicle, bool) {
	v, ok := r.vehicles[id]
	return v, ok
}

// All returns a snapshot of the live vehicles ordered by ID. Later mutation of
// the registry does not change the returned slice.
func (r *Registry) All() []*Vehicle {
	out := make([]*Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live vehicles.
func (r *Registry) Count() int { return len(r.vehicles) }

// Clear removes every vehicle.
func (r *Registry) Clear() {
	r.vehicles = make(map[VehicleID]*Vehicle)
}
