package persistence

import (
	"context"

	"github.com/dukex/actflow/pkg/models"
)

// WorkspaceRepository stores workspace graphs.
type WorkspaceRepository struct {
	p *Persistence
}

// Save writes the workspace, replacing any previous version.
func (r *WorkspaceRepository) Save(ctx context.Context, workspace *models.Workspace) error {
	_, err := putJSON(ctx, r.p.store, workspaceKey(workspace.ID), workspace)
	if err != nil {
		return NewRecordError("Save", "workspace", workspace.ID, err)
	}

	return nil
}

// GetByID returns the workspace with the given id.
func (r *WorkspaceRepository) GetByID(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	workspace, _, err := getJSON[models.Workspace](ctx, r.p.store, workspaceKey(workspaceID))
	if err != nil {
		return nil, NewRecordError("GetByID", "workspace", workspaceID, notFoundOr(err, ErrWorkspaceNotFound))
	}

	return workspace, nil
}
