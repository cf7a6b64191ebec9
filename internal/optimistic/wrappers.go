package optimistic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"latch/internal/project"
	"latch/internal/task"
	shared "latch/shared/types"
	"latch/shared/utils"
)

// Convenience wrappers: each builds the correct intent shape for one
// kind/op pair and forwards to Apply. Creates get a client-generated id
// that stays stable through reconciliation; the store snapshots the
// before-image for update/delete at apply time, under the entity lock.

func (c *Coordinator) CreateTask(ctx context.Context, t *task.Task, remote RemoteFunc, opts Options) (*Pending, error) {
	if t.ID == "" {
		t.ID = utils.NewID()
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshaling task: %w", err)
	}

	return c.Apply(ctx, shared.Intent{
		Op:          shared.OpCreate,
		Kind:        shared.KindTask,
		EntityID:    t.ID,
		Payload:     payload,
		SubmittedAt: time.Now(),
	}, remote, opts)
}

func (c *Coordinator) UpdateTask(ctx context.Context, id string, patch json.RawMessage, remote RemoteFunc, opts Options) (*Pending, error) {
	return c.Apply(ctx, shared.Intent{
		Op:          shared.OpUpdate,
		Kind:        shared.KindTask,
		EntityID:    id,
		Payload:     patch,
		SubmittedAt: time.Now(),
	}, remote, opts)
}

func (c *Coordinator) DeleteTask(ctx context.Context, id string, remote RemoteFunc, opts Options) (*Pending, error) {
	return c.Apply(ctx, shared.Intent{
		Op:          shared.OpDelete,
		Kind:        shared.KindTask,
		EntityID:    id,
		SubmittedAt: time.Now(),
	}, remote, opts)
}

func (c *Coordinator) CreateProject(ctx context.Context, p *project.Project, remote RemoteFunc, opts Options) (*Pending, error) {
	if p.ID == "" {
		p.ID = utils.NewID()
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling project: %w", err)
	}

	return c.Apply(ctx, shared.Intent{
		Op:          shared.OpCreate,
		Kind:        shared.KindProject,
		EntityID:    p.ID,
		Payload:     payload,
		SubmittedAt: time.Now(),
	}, remote, opts)
}

func (c *Coordinator) UpdateProject(ctx context.Context, id string, patch json.RawMessage, remote RemoteFunc, opts Options) (*Pending, error) {
	return c.Apply(ctx, shared.Intent{
		Op:          shared.OpUpdate,
		Kind:        shared.KindProject,
		EntityID:    id,
		Payload:     patch,
		SubmittedAt: time.Now(),
	}, remote, opts)
}

func (c *Coordinator) DeleteProject(ctx context.Context, id string, remote RemoteFunc, opts Options) (*Pending, error) {
	return c.Apply(ctx, shared.Intent{
		Op:          shared.OpDelete,
		Kind:        shared.KindProject,
		EntityID:    id,
		SubmittedAt: time.Now(),
	}, remote, opts)
}
