package sqlstore

import (
	"context"
	"strings"

	"github.com/jinzhu/gorm"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/models"
)

// isDuplicateKeyErr recognizes the MySQL "Duplicate entry" error produced
// when the unique (block_index, farmer_id) index is violated, the
// database-enforced half of the at-most-once recording invariant.
func isDuplicateKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

// --- PlantingStore ---

func (d *DB) RecordPlanting(ctx context.Context, p *models.Planting) error {
	if p.ID == models.ZeroID {
		p.ID = models.NewID()
	}
	if err := d.conn.Create(p).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return errkind.New(errkind.KindIdempotencyConflict, "duplicate successful planting")
		}
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: record planting")
	}
	return nil
}

func (d *DB) GetPlanting(ctx context.Context, blockIndex int64, farmerID models.ID) (*models.Planting, error) {
	var p models.Planting
	err := d.conn.Where("block_index = ? AND farmer_id = ?", blockIndex, farmerID).First(&p).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "planting not found")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get planting")
	}
	return &p, nil
}

func (d *DB) ListPlantingsForBlock(ctx context.Context, blockIndex int64) ([]*models.Planting, error) {
	var out []*models.Planting
	if err := d.conn.Where("block_index = ?", blockIndex).Find(&out).Error; err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: list plantings for block")
	}
	return out, nil
}

// --- WorkStore ---

func (d *DB) RecordWork(ctx context.Context, w *models.Work) error {
	if w.ID == models.ZeroID {
		w.ID = models.NewID()
	}
	if err := d.conn.Create(w).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return errkind.New(errkind.KindIdempotencyConflict, "duplicate successful work")
		}
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: record work")
	}
	return nil
}

func (d *DB) GetWork(ctx context.Context, blockIndex int64, farmerID models.ID) (*models.Work, error) {
	var w models.Work
	err := d.conn.Where("block_index = ? AND farmer_id = ?", blockIndex, farmerID).First(&w).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "work not found")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get work")
	}
	return &w, nil
}

func (d *DB) ListWorksForBlock(ctx context.Context, blockIndex int64) ([]*models.Work, error) {
	var out []*models.Work
	if err := d.conn.Where("block_index = ?", blockIndex).Find(&out).Error; err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: list works for block")
	}
	return out, nil
}

// --- HarvestStore ---

func (d *DB) RecordHarvest(ctx context.Context, h *models.Harvest) error {
	if h.ID == models.ZeroID {
		h.ID = models.NewID()
	}
	if err := d.conn.Create(h).Error; err != nil {
		if isDuplicateKeyErr(err) {
			return errkind.New(errkind.KindIdempotencyConflict, "duplicate successful harvest")
		}
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: record harvest")
	}
	return nil
}

func (d *DB) ListUnexitedHarvests(ctx context.Context, farmerID models.ID) ([]*models.Harvest, error) {
	var out []*models.Harvest
	err := d.conn.
		Where("farmer_id = ? AND status = ? AND included_in_exit = ?", farmerID, models.OpSuccess, false).
		Find(&out).Error
	if err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: list unexited harvests")
	}
	return out, nil
}

func (d *DB) MarkHarvestsIncludedInExit(ctx context.Context, harvestIDs []models.ID, exitSplitID models.ID) error {
	if len(harvestIDs) == 0 {
		return nil
	}
	err := d.conn.Model(&models.Harvest{}).
		Where("id IN (?)", harvestIDs).
		Updates(map[string]interface{}{"included_in_exit": true, "exit_split_id": exitSplitID}).Error
	if err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: mark harvests included in exit")
	}
	return nil
}
