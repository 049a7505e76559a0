package sqlstore

import (
	"context"

	"github.com/jinzhu/gorm"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/models"
)

// ListEligibleFarmers returns farmers with status=active_in_pool, is_funded,
// and an active contract with the given pooler.
func (d *DB) ListEligibleFarmers(ctx context.Context, poolerID models.ID) ([]*models.Farmer, error) {
	var farmers []*models.Farmer
	err := d.conn.
		Joins("JOIN pool_contracts ON pool_contracts.farmer_id = farmers.id").
		Where("farmers.status = ? AND farmers.is_funded = ?", models.FarmerActiveInPool, true).
		Where("pool_contracts.status = ? AND pool_contracts.pooler_id = ?", models.ContractActive, poolerID).
		Find(&farmers).Error
	if err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: list eligible farmers")
	}
	return farmers, nil
}

func (d *DB) GetFarmer(ctx context.Context, id models.ID) (*models.Farmer, error) {
	var f models.Farmer
	if err := d.conn.Where("id = ?", id).First(&f).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "farmer not found")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get farmer")
	}
	return &f, nil
}

func (d *DB) UpdateFarmer(ctx context.Context, f *models.Farmer) error {
	if err := d.conn.Save(f).Error; err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: update farmer")
	}
	return nil
}

func (d *DB) ListFarmersNeedingBalanceRecheck(ctx context.Context, limit int) ([]*models.Farmer, error) {
	var farmers []*models.Farmer
	q := d.conn.Where("needs_balance_recheck = ?", true)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&farmers).Error; err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: list farmers needing recheck")
	}
	return farmers, nil
}

func (d *DB) GetActiveContractForFarmer(ctx context.Context, farmerID models.ID) (*models.PoolContract, error) {
	var c models.PoolContract
	err := d.conn.Where("farmer_id = ? AND status = ?", farmerID, models.ContractActive).First(&c).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "no active contract for farmer")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get active contract")
	}
	return &c, nil
}

func (d *DB) GetContract(ctx context.Context, id models.ID) (*models.PoolContract, error) {
	var c models.PoolContract
	if err := d.conn.Where("id = ?", id).First(&c).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "contract not found")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get contract")
	}
	return &c, nil
}

func (d *DB) UpdateContract(ctx context.Context, c *models.PoolContract) error {
	if err := d.conn.Save(c).Error; err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: update contract")
	}
	return nil
}

func (d *DB) GetPooler(ctx context.Context, id models.ID) (*models.Pooler, error) {
	var p models.Pooler
	if err := d.conn.Where("id = ?", id).First(&p).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "pooler not found")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get pooler")
	}
	return &p, nil
}
