package leads

import (
	"context"
	"errors"
	"sync"
)

// Directory is the minimal abstraction over the surrounding CRM's lead
// system. The dialer owns dial-specific state only; target lifecycle beyond
// that belongs to the collaborator behind this interface.
//
// AssignOwner implements first-touch attribution: the agent bridged to a
// target's first connected call becomes its owner of record.
type Directory interface {
	AssignOwner(ctx context.Context, workspaceID, targetID, agentID string) error
	MarkExhausted(ctx context.Context, workspaceID, targetID string) error
}

var ErrInvalidArgument = errors.New("leads: invalid argument")

// MemoryDirectory is an in-memory Directory for tests and local development.
type MemoryDirectory struct {
	mu        sync.Mutex
	owners    map[string]string
	exhausted map[string]bool
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		owners:    make(map[string]string),
		exhausted: make(map[string]bool),
	}
}

func (d *MemoryDirectory) AssignOwner(ctx context.Context, workspaceID, targetID, agentID string) error {
	if workspaceID == "" || targetID == "" || agentID == "" {
		return ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := workspaceID + "/" + targetID
	// First touch wins; later connects never reassign.
	if _, taken := d.owners[key]; !taken {
		d.owners[key] = agentID
	}
	return nil
}

func (d *MemoryDirectory) MarkExhausted(ctx context.Context, workspaceID, targetID string) error {
	if workspaceID == "" || targetID == "" {
		return ErrInvalidArgument
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exhausted[workspaceID+"/"+targetID] = true
	return nil
}

// Owner reports the assigned agent for a target. Test helper.
func (d *MemoryDirectory) Owner(workspaceID, targetID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.owners[workspaceID+"/"+targetID]
	return a, ok
}

// Exhausted reports whether a target was marked exhausted. Test helper.
func (d *MemoryDirectory) Exhausted(workspaceID, targetID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exhausted[workspaceID+"/"+targetID]
}

var _ Directory = (*MemoryDirectory)(nil)
