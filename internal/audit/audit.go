// Package audit keeps the append-only trail of state-changing actions.
package audit

import (
	"context"

	"bar-pos/internal/models"
	"bar-pos/internal/store"
)

// Action tags written by the terminal.
const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionSale           = "SALE"
	ActionCreateProduct  = "CREATE_PRODUCT"
	ActionUpdateProduct  = "UPDATE_PRODUCT"
	ActionDeleteProduct  = "DELETE_PRODUCT"
	ActionRestock        = "RESTOCK"
	ActionCreateUser     = "CREATE_USER"
	ActionUpdateUser     = "UPDATE_USER"
	ActionDeleteUser     = "DELETE_USER"
	ActionCreateBusiness = "CREATE_BUSINESS"
	ActionUpdateBusiness = "UPDATE_BUSINESS"
)

type Recorder struct {
	store *store.Store
}

func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// Record appends one entry in its own transaction. Without an actor there
// is nobody to attribute the action to and the call does nothing.
func (r *Recorder) Record(ctx context.Context, action, details string, actor *models.User) (*models.AuditLog, error) {
	if actor == nil {
		return nil, nil
	}
	var out *models.AuditLog
	err := r.store.Tx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = RecordTx(tx, action, details, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordTx appends an entry inside a transaction the caller already holds,
// so the entry commits or rolls back with the action it describes.
func RecordTx(tx *store.Tx, action, details string, actor *models.User) (*models.AuditLog, error) {
	if actor == nil {
		return nil, nil
	}
	l, err := tx.AppendAuditLog(models.AuditLog{
		UserID:     actor.ID,
		UserName:   actor.Name,
		Action:     action,
		Details:    details,
		BusinessID: actor.Tenant(),
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Visible returns the entries viewer may see, oldest first.
func (r *Recorder) Visible(viewer *models.User) []models.AuditLog {
	return Filter(r.store.AuditLogs(), viewer)
}

// Filter keeps the entries of viewer's tenant. The platform role sees all.
func Filter(logs []models.AuditLog, viewer *models.User) []models.AuditLog {
	if viewer == nil {
		return nil
	}
	if viewer.Role.SeesAllTenants() {
		return logs
	}
	out := make([]models.AuditLog, 0, len(logs))
	for _, l := range logs {
		if l.BusinessID == viewer.BusinessID {
			out = append(out, l)
		}
	}
	return out
}
