package executor

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/executor/httpapi"
	"github.com/klaytn/kale-pool/executor/noncework"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/secretkey"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage/memstore"
	"github.com/klaytn/kale-pool/wallet/mockchain"
)

func init() {
	var raw [32]byte
	_, _ = rand.Read(raw[:])
	hexKey := make([]byte, 64)
	const hexdigits = "0123456789abcdef"
	for i, b := range raw {
		hexKey[i*2] = hexdigits[b>>4]
		hexKey[i*2+1] = hexdigits[b&0xf]
	}
	_ = secretkey.Set(string(hexKey))
}

type fakeNoncer struct {
	result noncework.Result
	err    error
	calls  int
}

func (f *fakeNoncer) Search(ctx context.Context, farmerHex string, blockIndex int64, entropyHex string, nonceCount int) (noncework.Result, error) {
	f.calls++
	return f.result, f.err
}

func seedExecFarmer(t *testing.T, store *memstore.Store, chain *mockchain.Chain, poolerID models.ID, harvestInterval int) *models.Farmer {
	t.Helper()
	secretPlain := "S" + models.NewID().String() + "FAKE"
	sealed, err := models.SealSecret(secretkey.Current(), []byte(secretPlain))
	require.NoError(t, err)

	pub := mockchain.PublicKeyFor(secretPlain)
	chain.SeedBalance(pub, 10_000_000)

	f := &models.Farmer{
		ID:                 models.NewID(),
		UserID:             models.NewID(),
		CustodialPublicKey: pub,
		CustodialSecretKey: sealed.Marshal(),
		Status:             models.FarmerActiveInPool,
		CurrentBalance:     10_000_000,
		IsFunded:           true,
	}
	store.SeedFarmer(f)
	store.SeedContract(&models.PoolContract{
		ID:              models.NewID(),
		FarmerID:        f.ID,
		PoolerID:        poolerID,
		StakePercentage: 0.5,
		HarvestInterval: harvestInterval,
		RewardSplit:     0.5,
		PlatformFee:     0.05,
		Status:          models.ContractActive,
		CreatedAt:       time.Now(),
	})
	return f
}

func newTestExecutor(t *testing.T) (*Executor, *memstore.Store, *mockchain.Chain) {
	t.Helper()
	cfg := config.Default()
	cfg.WorkDelayS = 0
	cfg.WorkDeadlineS = 60 * time.Second

	store := memstore.New()
	chain := mockchain.New()
	bus := event.New()

	e := New(cfg, chain, store, bus)
	return e, store, chain
}

func TestWorkAbortsPastDeadlineWithCompensationRequired(t *testing.T) {
	e, store, chain := newTestExecutor(t)
	poolerID := models.NewID()
	f := seedExecFarmer(t, store, chain, poolerID, 1)

	task := workTask{
		blockIndex: 10,
		entropy:    "ab",
		farmerID:   f.ID,
		workTime:   time.Now().Add(-2 * time.Hour), // deadline long past
	}
	e.executeWork(context.Background(), task)

	w, err := store.GetWork(context.Background(), 10, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpFailed, w.Status)
	assert.True(t, w.CompensationRequired)
}

func TestWorkSucceedsAndSchedulesHarvestWhenIntervalMet(t *testing.T) {
	e, store, chain := newTestExecutor(t)
	poolerID := models.NewID()
	f := seedExecFarmer(t, store, chain, poolerID, 1) // interval=1: every block harvests

	e.noncer = &fakeNoncer{result: noncework.Result{Nonce: 42, Hash: "00000abc", Zeros: 5}}
	chain.SetNextHarvestReward(500_000)

	task := workTask{
		blockIndex: 20,
		entropy:    "cd",
		farmerID:   f.ID,
		workTime:   time.Now(),
	}
	e.executeWork(context.Background(), task)

	w, err := store.GetWork(context.Background(), 20, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpSuccess, w.Status)
	assert.Equal(t, uint64(42), w.Nonce)

	// runHarvest is fired in a goroutine guarded by harvestSem; give it a
	// moment to land.
	require.Eventually(t, func() bool {
		h, err := store.GetFarmer(context.Background(), f.ID)
		return err == nil && h.CurrentBalance > 10_000_000
	}, time.Second, 10*time.Millisecond)
}

func TestHandlePlantedFarmersSchedulesOneTaskPerFarmer(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	farmerID := models.NewID()

	n := httpapi.PlantedFarmersNotification{
		BlockIndex:     5,
		Entropy:        "ab",
		BlockTimestamp: time.Now().Unix(),
		PlantedFarmers: []httpapi.PlantedFarmer{
			{FarmerID: farmerID.String(), CustodialWallet: "GABC", StakeAmount: "100", PlantingTime: time.Now().Format(time.RFC3339)},
			{FarmerID: "not-a-uuid"},
		},
	}
	scheduled, err := e.HandlePlantedFarmers(n)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, 1, e.sched.Len())
}
