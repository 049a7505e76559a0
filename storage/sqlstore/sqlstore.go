// Package sqlstore is the relational implementation of storage.Store,
// built on github.com/jinzhu/gorm over github.com/go-sql-driver/mysql.
package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/log"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage"
)

var logger = log.NewModuleLogger(log.Storage)

// DB is the gorm-backed Store implementation.
type DB struct {
	conn *gorm.DB
}

var _ storage.Store = (*DB)(nil)

// Open connects to dsn (a go-sql-driver/mysql DSN) and runs the additive
// schema migrations.
func Open(dsn string) (*DB, error) {
	conn, err := gorm.Open("mysql", dsn)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: connect")
	}
	conn.LogMode(false)
	conn.DB().SetMaxOpenConns(50)
	conn.DB().SetMaxIdleConns(10)
	conn.DB().SetConnMaxLifetime(time.Hour)

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

// migrate runs AutoMigrate plus the hand-written constraints that gorm v1's
// AutoMigrate cannot express (unique composite indexes, the partial unique
// index on live PoolContract rows).
func migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Farmer{},
		&models.Pooler{},
		&models.PoolContract{},
		&models.BlockOperation{},
		&models.Planting{},
		&models.Work{},
		&models.Harvest{},
		&models.ExitSplit{},
		&models.ExitAuditLog{},
	).Error; err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: automigrate")
	}

	// Partial unique index: at most one contract with a live status per
	// farmer. MySQL has no native partial index, so this is enforced with a
	// generated column plus a unique index on it, a common MySQL workaround.
	stmts := []string{
		`ALTER TABLE pool_contracts ADD COLUMN IF NOT EXISTS live_farmer_id CHAR(36)
			GENERATED ALWAYS AS (CASE WHEN status IN ('pending','active','exiting') THEN farmer_id ELSE NULL END) STORED`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_live_contract_per_farmer ON pool_contracts (live_farmer_id)`,
	}
	for _, s := range stmts {
		if err := conn.Exec(s).Error; err != nil {
			logger.Warn("non-fatal migration statement failed (likely already applied)", "stmt", s, "err", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// --- BlockStore ---

func (d *DB) UpsertBlockOperation(ctx context.Context, op *models.BlockOperation) (*models.BlockOperation, bool, error) {
	var existing models.BlockOperation
	err := d.conn.Where("block_index = ?", op.BlockIndex).First(&existing).Error
	if err == nil {
		existing.Entropy = op.Entropy
		existing.BlockAgeS = op.BlockAgeS
		existing.Plantable = op.Plantable
		existing.MinZeros = op.MinZeros
		existing.MaxZeros = op.MaxZeros
		existing.MinStake = op.MinStake
		existing.MaxStake = op.MaxStake
		if saveErr := d.conn.Save(&existing).Error; saveErr != nil {
			return nil, false, errkind.Wrap(errkind.KindTransientNetwork, saveErr, "sqlstore: refresh block operation")
		}
		return &existing, false, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, false, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: lookup block operation")
	}

	if op.ID == models.ZeroID {
		op.ID = models.NewID()
	}
	if op.Status == "" {
		op.Status = models.BlockDiscovered
	}
	if op.DiscoveredAt.IsZero() {
		op.DiscoveredAt = time.Now()
	}
	if createErr := d.conn.Create(op).Error; createErr != nil {
		// A unique-constraint violation here means a concurrent discoverer
		// instance won the race; treat it as an idempotency conflict and
		// re-read instead of failing.
		var winner models.BlockOperation
		if reErr := d.conn.Where("block_index = ?", op.BlockIndex).First(&winner).Error; reErr == nil {
			return &winner, false, nil
		}
		return nil, false, errkind.Wrap(errkind.KindTransientNetwork, createErr, "sqlstore: create block operation")
	}
	return op, true, nil
}

func (d *DB) GetBlockOperation(ctx context.Context, blockIndex int64) (*models.BlockOperation, error) {
	var op models.BlockOperation
	if err := d.conn.Where("block_index = ?", blockIndex).First(&op).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, errkind.New(errkind.KindPermanentBadRequest, "block operation not found")
		}
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: get block operation")
	}
	return &op, nil
}

func (d *DB) UpdateBlockOperation(ctx context.Context, op *models.BlockOperation) error {
	tx := d.conn.Begin()
	if tx.Error != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, tx.Error, "sqlstore: begin block operation tx")
	}
	var existing models.BlockOperation
	if err := tx.Set("gorm:query_option", "FOR UPDATE").Where("block_index = ?", op.BlockIndex).First(&existing).Error; err != nil {
		tx.Rollback()
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: update block operation lookup")
	}
	if !models.CanAdvance(existing.Status, op.Status) {
		tx.Rollback()
		return errkind.New(errkind.KindPermanentBadRequest, "block operation status cannot move backward")
	}
	if err := tx.Save(op).Error; err != nil {
		tx.Rollback()
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: save block operation")
	}
	if err := tx.Commit().Error; err != nil {
		return errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: commit block operation tx")
	}
	return nil
}

// ClaimStaleProcessingBlocks uses raw SELECT ... FOR UPDATE SKIP LOCKED so
// multiple Discoverer/Executor instances can claim disjoint sets of stalled
// blocks without blocking each other.
func (d *DB) ClaimStaleProcessingBlocks(ctx context.Context, olderThanSeconds int64, limit int) ([]*models.BlockOperation, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var rows []*models.BlockOperation
	q := fmt.Sprintf(`SELECT * FROM block_operations
		WHERE status NOT IN ('%s','%s') AND discovered_at < ?
		ORDER BY block_index ASC LIMIT ? FOR UPDATE SKIP LOCKED`,
		models.BlockCompleted, models.BlockFailed)
	if err := d.conn.Raw(q, cutoff, limit).Scan(&rows).Error; err != nil {
		return nil, errkind.Wrap(errkind.KindTransientNetwork, err, "sqlstore: claim stale blocks")
	}
	return rows, nil
}
