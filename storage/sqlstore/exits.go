package sqlstore

import (
	"context"

	"github.com/jinzhu/gorm"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage"
)

type sqlExitTx struct {
	tx *gorm.DB
}

func (t *sqlExitTx) CreateExitSplit(e *models.ExitSplit) error {
	if e.ID == models.ZeroID {
		e.ID = models.NewID()
	}
	return t.tx.Create(e).Error
}

func (t *sqlExitTx) MarkHarvestsIncludedInExit(harvestIDs []models.ID, exitSplitID models.ID) error {
	if len(harvestIDs) == 0 {
		return nil
	}
	return t.tx.Model(&models.Harvest{}).
		Where("id IN (?)", harvestIDs).
		Updates(map[string]interface{}{"included_in_exit": true, "exit_split_id": exitSplitID}).Error
}

func (t *sqlExitTx) AppendAudit(a *models.ExitAuditLog) error {
	if a.ID == models.ZeroID {
		a.ID = models.NewID()
	}
	return t.tx.Create(a).Error
}

// InitiateExitTx runs the ExitSplit insert and the harvest include-marking
// inside one transaction.
func (d *DB) InitiateExitTx(ctx context.Context, fn func(tx storage.ExitTx) error) error {
	tx := d.conn.Begin()
	if tx.Error != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, tx.Error, "sqlstore: begin exit tx")
	}
	if err := fn(&sqlExitTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: commit exit tx")
	}
	return nil
}

func (d *DB) GetExitSplit(ctx context.Context, id models.ID) (*models.ExitSplit, error) {
	var e models.ExitSplit
	if err := d.conn.Where("id = ?", id).First(&e).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "exit split not found")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get exit split")
	}
	return &e, nil
}

func (d *DB) UpdateExitSplit(ctx context.Context, e *models.ExitSplit) error {
	if err := d.conn.Save(e).Error; err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: update exit split")
	}
	return nil
}

func (d *DB) HasProcessingExit(ctx context.Context, farmerID models.ID) (bool, error) {
	var count int
	err := d.conn.Model(&models.ExitSplit{}).
		Where("farmer_id = ? AND status = ?", farmerID, models.ExitProcessing).
		Count(&count).Error
	if err != nil {
		return false, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: has processing exit")
	}
	return count > 0, nil
}

func (d *DB) AppendAudit(ctx context.Context, a *models.ExitAuditLog) error {
	if a.ID == models.ZeroID {
		a.ID = models.NewID()
	}
	if err := d.conn.Create(a).Error; err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: append audit")
	}
	return nil
}

func (d *DB) ListStaleProcessingExits(ctx context.Context, olderThanSeconds int64, limit int) ([]*models.ExitSplit, error) {
	var out []*models.ExitSplit
	q := d.conn.Where("status = ? AND initiated_at < DATE_SUB(NOW(), INTERVAL ? SECOND)", models.ExitProcessing, olderThanSeconds)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: list stale processing exits")
	}
	return out, nil
}
