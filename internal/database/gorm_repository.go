package database

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bar-pos/internal/apperr"
	"bar-pos/internal/auth"
	"bar-pos/internal/models"
	"bar-pos/internal/remotestore"
)

// GormRepository is the relational remote store.
type GormRepository struct {
	db *gorm.DB
}

var _ remotestore.Repository = (*GormRepository)(nil)

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func toUserRow(a auth.Account) userRow {
	return userRow{
		ID:           a.ID,
		BusinessID:   a.BusinessID,
		NameKey:      remotestore.NameKey(a.Name),
		PasswordHash: a.PasswordHash,
		Data:         a.User.Sanitized(),
		UpdatedAt:    a.UpdatedAt,
	}
}

func (r userRow) account() auth.Account {
	return auth.Account{User: r.Data, PasswordHash: r.PasswordHash}
}

func toBusinessRow(b models.Business) businessRow {
	return businessRow{ID: b.ID, NameKey: remotestore.NameKey(b.Name), Data: b, UpdatedAt: b.UpdatedAt}
}

func (g *GormRepository) nameTaken(tx *gorm.DB, b models.Business) error {
	var n int64
	err := tx.Model(&businessRow{}).
		Where("name_key = ? AND id <> ?", remotestore.NameKey(b.Name), b.ID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict("business %q already exists", b.Name)
	}
	return nil
}

func (g *GormRepository) CreateTenant(ctx context.Context, b models.Business, owner auth.Account) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.nameTaken(tx, b); err != nil {
			return err
		}
		if err := tx.Create(ptr(toBusinessRow(b))).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("business %q already exists", b.Name)
			}
			return err
		}
		if err := tx.Create(ptr(toUserRow(owner))).Error; err != nil {
			return err
		}
		return tx.Create(&snapshotRow{
			BusinessID: b.ID,
			Products:   []models.Product{},
			Sales:      []models.Sale{},
			AuditLogs:  []models.AuditLog{},
			LastSync:   b.CreatedAt,
		}).Error
	})
}

func ptr[T any](v T) *T { return &v }

func (g *GormRepository) Business(ctx context.Context, id string) (models.Business, error) {
	var row businessRow
	err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Business{}, apperr.NotFound("business %s", id)
	}
	return row.Data, err
}

func (g *GormRepository) BusinessByName(ctx context.Context, name string) (models.Business, error) {
	var row businessRow
	err := g.db.WithContext(ctx).First(&row, "name_key = ?", remotestore.NameKey(name)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Business{}, apperr.NotFound("business %q", name)
	}
	return row.Data, err
}

func (g *GormRepository) Businesses(ctx context.Context) ([]models.Business, error) {
	var rows []businessRow
	if err := g.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Business, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Data)
	}
	return out, nil
}

func (g *GormRepository) SaveBusiness(ctx context.Context, b models.Business) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.nameTaken(tx, b); err != nil {
			return err
		}
		return tx.Save(ptr(toBusinessRow(b))).Error
	})
}

func (g *GormRepository) User(ctx context.Context, id string) (auth.Account, error) {
	var row userRow
	err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.Account{}, apperr.NotFound("user %s", id)
	}
	if err != nil {
		return auth.Account{}, err
	}
	return row.account(), nil
}

func (g *GormRepository) findUsers(ctx context.Context, query string, args ...any) ([]auth.Account, error) {
	var rows []userRow
	q := g.db.WithContext(ctx)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]auth.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.account())
	}
	return out, nil
}

func (g *GormRepository) UsersByName(ctx context.Context, name string) ([]auth.Account, error) {
	return g.findUsers(ctx, "name_key = ?", remotestore.NameKey(name))
}

func (g *GormRepository) Users(ctx context.Context, businessID string) ([]auth.Account, error) {
	if businessID == "" {
		return g.findUsers(ctx, "")
	}
	return g.findUsers(ctx, "business_id = ?", businessID)
}

func (g *GormRepository) SaveUser(ctx context.Context, a auth.Account) error {
	return g.db.WithContext(ctx).Save(ptr(toUserRow(a))).Error
}

func (g *GormRepository) DeleteUser(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Delete(&userRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user %s", id)
	}
	return nil
}

func (g *GormRepository) Snapshot(ctx context.Context, businessID string) (models.Snapshot, error) {
	var row snapshotRow
	err := g.db.WithContext(ctx).First(&row, "business_id = ?", businessID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Snapshot{BusinessID: businessID}, nil
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{
		BusinessID: row.BusinessID,
		Products:   row.Products,
		Sales:      row.Sales,
		AuditLogs:  row.AuditLogs,
		LastSync:   row.LastSync,
	}, nil
}

// lockSnapshot loads a tenant row FOR UPDATE, creating it when missing.
func lockSnapshot(tx *gorm.DB, businessID string) (*snapshotRow, error) {
	var row snapshotRow
	// Lock the row to prevent race conditions
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "business_id = ?", businessID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = snapshotRow{BusinessID: businessID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return nil, err
		}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "business_id = ?", businessID).Error
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (g *GormRepository) ReplaceProducts(ctx context.Context, businessID string, products []models.Product, at time.Time) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSnapshot(tx, businessID)
		if err != nil {
			return err
		}
		row.Products = products
		row.LastSync = at
		return tx.Save(row).Error
	})
}

func (g *GormRepository) AppendSale(ctx context.Context, businessID string, s models.Sale, at time.Time) (bool, error) {
	added := false
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSnapshot(tx, businessID)
		if err != nil {
			return err
		}
		for _, cur := range row.Sales {
			if cur.ID == s.ID {
				return nil
			}
		}
		row.Sales = append(row.Sales, s)
		row.LastSync = at
		added = true
		return tx.Save(row).Error
	})
	return added && err == nil, err
}

func (g *GormRepository) AppendAuditLog(ctx context.Context, businessID string, l models.AuditLog, at time.Time) (bool, error) {
	added := false
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockSnapshot(tx, businessID)
		if err != nil {
			return err
		}
		for _, cur := range row.AuditLogs {
			if cur.ID == l.ID {
				return nil
			}
		}
		row.AuditLogs = append(row.AuditLogs, l)
		row.LastSync = at
		added = true
		return tx.Save(row).Error
	})
	return added && err == nil, err
}
