package flowstore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/langhuihui/rxcraft/errors"
)

// Store provides in-process persistence for Flow entities. All methods are
// safe for concurrent use; stored flows are copied in and out so callers
// can never mutate stored state through a returned pointer.
type Store struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

// NewStore creates an empty flow store
func NewStore() *Store {
	return &Store{flows: make(map[string]*Flow)}
}

// Preload inserts flows without version checks, marking them builtin.
// Used at startup to ship the sample library; existing entries with the
// same ID are overwritten.
func (s *Store) Preload(flows []*Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, f := range flows {
		c := f.clone()
		c.Builtin = true
		if c.Version == 0 {
			c.Version = 1
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		s.flows[c.ID] = c
	}
}

// Create creates a new flow
func (s *Store) Create(flow *Flow) error {
	if flow == nil {
		return errors.WrapInvalid(fmt.Errorf("flow cannot be nil"), "flowstore", "Create", "create flow")
	}
	if err := flow.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.flows[flow.ID]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("flow %q already exists", flow.ID),
			"flowstore", "Create", "create flow")
	}

	c := flow.clone()
	c.Version = 1
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.flows[c.ID] = c

	flow.Version = c.Version
	flow.CreatedAt = c.CreatedAt
	flow.UpdatedAt = c.UpdatedAt
	return nil
}

// Get retrieves a flow by ID
func (s *Store) Get(id string) (*Flow, error) {
	if id == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Get", "get flow")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.flows[id]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrFlowNotFound, id),
			"flowstore", "Get", "get flow")
	}
	return f.clone(), nil
}

// Update replaces an existing flow. The caller's Version must match the
// stored one; on success the stored version increments.
func (s *Store) Update(flow *Flow) error {
	if flow == nil {
		return errors.WrapInvalid(fmt.Errorf("flow cannot be nil"), "flowstore", "Update", "update flow")
	}
	if err := flow.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.flows[flow.ID]
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrFlowNotFound, flow.ID),
			"flowstore", "Update", "update flow")
	}

	if current.Version != flow.Version {
		return errors.WrapInvalid(
			fmt.Errorf("%w: expected %d, got %d", errors.ErrVersionConflict, current.Version, flow.Version),
			"flowstore", "Update", "flow was modified concurrently")
	}

	c := flow.clone()
	c.Version++
	c.Builtin = current.Builtin
	c.CreatedAt = current.CreatedAt
	c.UpdatedAt = time.Now()
	s.flows[c.ID] = c

	flow.Version = c.Version
	flow.UpdatedAt = c.UpdatedAt
	return nil
}

// Delete removes a flow by ID. Builtin sample flows cannot be deleted.
func (s *Store) Delete(id string) error {
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("flow ID cannot be empty"), "flowstore", "Delete", "delete flow")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flows[id]
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrFlowNotFound, id),
			"flowstore", "Delete", "delete flow")
	}
	if f.Builtin {
		return errors.WrapInvalid(
			fmt.Errorf("flow %q is a builtin sample", id),
			"flowstore", "Delete", "builtin flows cannot be deleted")
	}

	delete(s.flows, id)
	return nil
}

// List retrieves all flows ordered by name
func (s *Store) List() []*Flow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flows := make([]*Flow, 0, len(s.flows))
	for _, f := range s.flows {
		flows = append(flows, f.clone())
	}
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].Name != flows[j].Name {
			return flows[i].Name < flows[j].Name
		}
		return flows[i].ID < flows[j].ID
	})
	return flows
}
