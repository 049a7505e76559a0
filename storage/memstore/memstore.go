// Package memstore is an in-memory storage.Store fake. It enforces the same
// invariants sqlstore enforces via database constraints, in plain Go, so
// unit tests catch invariant violations without a real database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage"
)

type planteyKey struct {
	block  int64
	farmer models.ID
}

// Store is an in-memory, mutex-guarded implementation of storage.Store.
type Store struct {
	mu sync.Mutex

	blocksByIndex map[int64]*models.BlockOperation

	farmers   map[models.ID]*models.Farmer
	poolers   map[models.ID]*models.Pooler
	contracts map[models.ID]*models.PoolContract // by contract id
	// farmerContract indexes the live contract per farmer for fast lookup.
	farmerContract map[models.ID]models.ID

	plantings map[planteyKey]*models.Planting
	works     map[planteyKey]*models.Work
	harvests  map[planteyKey]*models.Harvest

	exits         map[models.ID]*models.ExitSplit
	processingFor map[models.ID]bool // farmerID -> has a processing exit
	audits        []*models.ExitAuditLog
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		blocksByIndex:  make(map[int64]*models.BlockOperation),
		farmers:        make(map[models.ID]*models.Farmer),
		poolers:        make(map[models.ID]*models.Pooler),
		contracts:      make(map[models.ID]*models.PoolContract),
		farmerContract: make(map[models.ID]models.ID),
		plantings:      make(map[planteyKey]*models.Planting),
		works:          make(map[planteyKey]*models.Work),
		harvests:       make(map[planteyKey]*models.Harvest),
		exits:          make(map[models.ID]*models.ExitSplit),
		processingFor:  make(map[models.ID]bool),
	}
}

var _ storage.Store = (*Store)(nil)

// --- BlockStore ---

func (s *Store) UpsertBlockOperation(ctx context.Context, op *models.BlockOperation) (*models.BlockOperation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.blocksByIndex[op.BlockIndex]; ok {
		existing.Entropy = op.Entropy
		existing.BlockAgeS = op.BlockAgeS
		existing.Plantable = op.Plantable
		existing.MinZeros = op.MinZeros
		existing.MaxZeros = op.MaxZeros
		existing.MinStake = op.MinStake
		existing.MaxStake = op.MaxStake
		cp := *existing
		return &cp, false, nil
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
	cp := *op
	s.blocksByIndex[op.BlockIndex] = &cp
	out := cp
	return &out, true, nil
}

func (s *Store) GetBlockOperation(ctx context.Context, blockIndex int64) (*models.BlockOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.blocksByIndex[blockIndex]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "block operation not found")
	}
	cp := *op
	return &cp, nil
}

func (s *Store) UpdateBlockOperation(ctx context.Context, op *models.BlockOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.blocksByIndex[op.BlockIndex]
	if !ok {
		return errkind.New(errkind.KindPermanentBadRequest, "block operation not found")
	}
	if !models.CanAdvance(existing.Status, op.Status) {
		return errkind.New(errkind.KindPermanentBadRequest, "block operation status cannot move backward")
	}
	cp := *op
	s.blocksByIndex[op.BlockIndex] = &cp
	return nil
}

func (s *Store) ClaimStaleProcessingBlocks(ctx context.Context, olderThanSeconds int64, limit int) ([]*models.BlockOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var out []*models.BlockOperation
	for _, op := range s.blocksByIndex {
		if op.Status == models.BlockCompleted || op.Status == models.BlockFailed {
			continue
		}
		if op.DiscoveredAt.Before(cutoff) {
			cp := *op
			out = append(out, &cp)
			if len(out) >= limit && limit > 0 {
				break
			}
		}
	}
	return out, nil
}

// --- FarmerStore ---

func (s *Store) ListEligibleFarmers(ctx context.Context, poolerID models.ID) ([]*models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Farmer
	for _, f := range s.farmers {
		if f.Status != models.FarmerActiveInPool || !f.IsFunded {
			continue
		}
		contractID, ok := s.farmerContract[f.ID]
		if !ok {
			continue
		}
		c, ok := s.contracts[contractID]
		if !ok || c.Status != models.ContractActive || c.PoolerID != poolerID {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetFarmer(ctx context.Context, id models.ID) (*models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.farmers[id]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "farmer not found")
	}
	cp := *f
	return &cp, nil
}

func (s *Store) UpdateFarmer(ctx context.Context, f *models.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.farmers[f.ID] = &cp
	return nil
}

func (s *Store) ListFarmersNeedingBalanceRecheck(ctx context.Context, limit int) ([]*models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Farmer
	for _, f := range s.farmers {
		if f.NeedsBalanceRecheck {
			cp := *f
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- ContractStore ---

func (s *Store) GetActiveContractForFarmer(ctx context.Context, farmerID models.ID) (*models.PoolContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.farmerContract[farmerID]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "no active contract for farmer")
	}
	c, ok := s.contracts[id]
	if !ok || c.Status != models.ContractActive {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "no active contract for farmer")
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetContract(ctx context.Context, id models.ID) (*models.PoolContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "contract not found")
	}
	cp := *c
	return &cp, nil
}

func (s *Store) UpdateContract(ctx context.Context, c *models.PoolContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contracts[c.ID] = &cp
	if c.IsLive() {
		s.farmerContract[c.FarmerID] = c.ID
	} else if s.farmerContract[c.FarmerID] == c.ID {
		delete(s.farmerContract, c.FarmerID)
	}
	return nil
}

func (s *Store) GetPooler(ctx context.Context, id models.ID) (*models.Pooler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.poolers[id]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "pooler not found")
	}
	cp := *p
	return &cp, nil
}

// SeedPooler inserts a pooler directly, for test setup.
func (s *Store) SeedPooler(p *models.Pooler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.poolers[p.ID] = &cp
}

// --- PlantingStore ---

func (s *Store) RecordPlanting(ctx context.Context, p *models.Planting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planteyKey{p.BlockIndex, p.FarmerID}
	if existing, ok := s.plantings[key]; ok && existing.Status == models.OpSuccess && p.Status == models.OpSuccess {
		return errkind.New(errkind.KindIdempotencyConflict, "duplicate successful planting")
	}
	if p.ID == models.ZeroID {
		p.ID = models.NewID()
	}
	cp := *p
	s.plantings[key] = &cp
	return nil
}

func (s *Store) GetPlanting(ctx context.Context, blockIndex int64, farmerID models.ID) (*models.Planting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plantings[planteyKey{blockIndex, farmerID}]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "planting not found")
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPlantingsForBlock(ctx context.Context, blockIndex int64) ([]*models.Planting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Planting
	for k, p := range s.plantings {
		if k.block == blockIndex {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- WorkStore ---

func (s *Store) RecordWork(ctx context.Context, w *models.Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planteyKey{w.BlockIndex, w.FarmerID}
	if existing, ok := s.works[key]; ok && existing.Status == models.OpSuccess && w.Status == models.OpSuccess {
		return errkind.New(errkind.KindIdempotencyConflict, "duplicate successful work")
	}
	if w.ID == models.ZeroID {
		w.ID = models.NewID()
	}
	cp := *w
	s.works[key] = &cp
	return nil
}

func (s *Store) GetWork(ctx context.Context, blockIndex int64, farmerID models.ID) (*models.Work, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.works[planteyKey{blockIndex, farmerID}]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "work not found")
	}
	cp := *w
	return &cp, nil
}

func (s *Store) ListWorksForBlock(ctx context.Context, blockIndex int64) ([]*models.Work, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Work
	for k, w := range s.works {
		if k.block == blockIndex {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- HarvestStore ---

func (s *Store) RecordHarvest(ctx context.Context, h *models.Harvest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := planteyKey{h.BlockIndex, h.FarmerID}
	if existing, ok := s.harvests[key]; ok && existing.Status == models.OpSuccess && h.Status == models.OpSuccess {
		return errkind.New(errkind.KindIdempotencyConflict, "duplicate successful harvest")
	}
	if h.ID == models.ZeroID {
		h.ID = models.NewID()
	}
	cp := *h
	s.harvests[key] = &cp
	return nil
}

func (s *Store) ListUnexitedHarvests(ctx context.Context, farmerID models.ID) ([]*models.Harvest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Harvest
	for _, h := range s.harvests {
		if h.FarmerID == farmerID && h.Status == models.OpSuccess && !h.IncludedInExit {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) MarkHarvestsIncludedInExit(ctx context.Context, harvestIDs []models.ID, exitSplitID models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markHarvestsIncludedLocked(harvestIDs, exitSplitID)
}

func (s *Store) markHarvestsIncludedLocked(harvestIDs []models.ID, exitSplitID models.ID) error {
	want := make(map[models.ID]bool, len(harvestIDs))
	for _, id := range harvestIDs {
		want[id] = true
	}
	for _, h := range s.harvests {
		if want[h.ID] {
			h.IncludedInExit = true
			id := exitSplitID
			h.ExitSplitID = &id
		}
	}
	return nil
}

// --- ExitStore ---

type memExitTx struct {
	s *Store
}

func (t *memExitTx) CreateExitSplit(e *models.ExitSplit) error {
	if e.ID == models.ZeroID {
		e.ID = models.NewID()
	}
	cp := *e
	t.s.exits[e.ID] = &cp
	t.s.processingFor[e.FarmerID] = e.Status == models.ExitProcessing
	return nil
}

func (t *memExitTx) MarkHarvestsIncludedInExit(harvestIDs []models.ID, exitSplitID models.ID) error {
	return t.s.markHarvestsIncludedLocked(harvestIDs, exitSplitID)
}

func (t *memExitTx) AppendAudit(a *models.ExitAuditLog) error {
	if a.ID == models.ZeroID {
		a.ID = models.NewID()
	}
	cp := *a
	t.s.audits = append(t.s.audits, &cp)
	return nil
}

func (s *Store) InitiateExitTx(ctx context.Context, fn func(tx storage.ExitTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memExitTx{s: s})
}

func (s *Store) GetExitSplit(ctx context.Context, id models.ID) (*models.ExitSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exits[id]
	if !ok {
		return nil, errkind.New(errkind.KindPermanentBadRequest, "exit split not found")
	}
	cp := *e
	return &cp, nil
}

func (s *Store) UpdateExitSplit(ctx context.Context, e *models.ExitSplit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.exits[e.ID] = &cp
	s.processingFor[e.FarmerID] = e.Status == models.ExitProcessing
	return nil
}

func (s *Store) HasProcessingExit(ctx context.Context, farmerID models.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processingFor[farmerID], nil
}

func (s *Store) AppendAudit(ctx context.Context, a *models.ExitAuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == models.ZeroID {
		a.ID = models.NewID()
	}
	cp := *a
	s.audits = append(s.audits, &cp)
	return nil
}

func (s *Store) ListStaleProcessingExits(ctx context.Context, olderThanSeconds int64, limit int) ([]*models.ExitSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var out []*models.ExitSplit
	for _, e := range s.exits {
		if e.Status == models.ExitProcessing && e.InitiatedAt.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// --- test seeding helpers (exported for package-external tests) ---

// SeedFarmer inserts a farmer directly, bypassing invariant checks, for test
// setup.
func (s *Store) SeedFarmer(f *models.Farmer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.farmers[f.ID] = &cp
}

// SeedContract inserts a contract directly and indexes it if live.
func (s *Store) SeedContract(c *models.PoolContract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contracts[c.ID] = &cp
	if c.IsLive() {
		s.farmerContract[c.FarmerID] = c.ID
	}
}

// SeedHarvest inserts a harvest directly, for settlement test setup.
func (s *Store) SeedHarvest(h *models.Harvest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == models.ZeroID {
		h.ID = models.NewID()
	}
	cp := *h
	s.harvests[planteyKey{h.BlockIndex, h.FarmerID}] = &cp
}

// Audits exposes recorded audit entries, for test assertions.
func (s *Store) Audits() []*models.ExitAuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ExitAuditLog, len(s.audits))
	copy(out, s.audits)
	return out
}
