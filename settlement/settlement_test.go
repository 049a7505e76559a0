package settlement

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func seedExitFarmer(t *testing.T, store *memstore.Store, chain *mockchain.Chain, totalReward int64) (*models.Farmer, *models.PoolContract, *models.Pooler) {
	t.Helper()
	secretPlain := "S" + models.NewID().String() + "FAKE"
	sealed, err := models.SealSecret(secretkey.Current(), []byte(secretPlain))
	require.NoError(t, err)
	pub := mockchain.PublicKeyFor(secretPlain)
	chain.SeedBalance(pub, 50_000_000)

	pooler := &models.Pooler{ID: models.NewID(), Name: "test-pooler", WalletAddress: poolerWallet, Status: models.PoolerActive}
	store.SeedPooler(pooler)

	farmer := &models.Farmer{
		ID:                 models.NewID(),
		UserID:             models.NewID(),
		CustodialPublicKey: pub,
		CustodialSecretKey: sealed.Marshal(),
		Status:             models.FarmerActiveInPool,
		CurrentBalance:     50_000_000,
		IsFunded:           true,
	}
	store.SeedFarmer(farmer)

	contract := &models.PoolContract{
		ID:              models.NewID(),
		FarmerID:        farmer.ID,
		PoolerID:        pooler.ID,
		StakePercentage: 0.5,
		HarvestInterval: 1,
		RewardSplit:     0.7,
		PlatformFee:     0.05,
		Status:          models.ContractActive,
		CreatedAt:       time.Now(),
	}
	store.SeedContract(contract)

	if totalReward > 0 {
		store.SeedHarvest(&models.Harvest{
			BlockIndex:   1,
			FarmerID:     farmer.ID,
			ContractID:   contract.ID,
			RewardAmount: totalReward,
			Status:       models.OpSuccess,
			HarvestedAt:  time.Now(),
		})
	}

	return farmer, contract, pooler
}

func newTestEngine(t *testing.T) (*Engine, *memstore.Store, *mockchain.Chain) {
	t.Helper()
	cfg := config.Default()
	store := memstore.New()
	chain := mockchain.New()
	e := New(cfg, chain, store, nil, platformWallet)
	return e, store, chain
}

const (
	validExternalWallet = "GFARMEREXTERNALWALLETAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	poolerWallet        = "GPOOLERWALLETAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	platformWallet      = "GPLATFORMWALLETAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

func TestInitiateExitSplitConservesTotal(t *testing.T) {
	e, store, chain := newTestEngine(t)
	farmer, _, _ := seedExitFarmer(t, store, chain, 10_000_000)

	exit, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.NoError(t, err)
	assert.Equal(t, exit.FarmerShare+exit.PoolerShare+exit.PlatformFee, exit.TotalRewards)
	assert.Equal(t, models.ExitProcessing, exit.Status)
}

func TestInitiateExitRejectsBelowMinExit(t *testing.T) {
	e, store, chain := newTestEngine(t)
	farmer, _, _ := seedExitFarmer(t, store, chain, 100) // far below MIN_EXIT

	_, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.Error(t, err)
}

func TestInitiateExitRejectsInvalidExternalWallet(t *testing.T) {
	e, store, chain := newTestEngine(t)
	farmer, _, _ := seedExitFarmer(t, store, chain, 10_000_000)

	_, err := e.InitiateExit(context.Background(), farmer.ID, "not-a-wallet", false)
	require.Error(t, err)
}

func TestInitiateExitRejectsSecondProcessingExit(t *testing.T) {
	e, store, chain := newTestEngine(t)
	farmer, _, _ := seedExitFarmer(t, store, chain, 10_000_000)

	_, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.NoError(t, err)

	_, err = e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.Error(t, err)
}

func TestInitiateExitMarksHarvestsIncludedOnlyOnce(t *testing.T) {
	e, store, chain := newTestEngine(t)
	farmer, _, _ := seedExitFarmer(t, store, chain, 10_000_000)

	_, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.NoError(t, err)

	remaining, err := store.ListUnexitedHarvests(context.Background(), farmer.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "harvests must be marked included_in_exit, unavailable to a second split")
}

func TestPayoutCompletesAllThreeLegsAndCompletesContract(t *testing.T) {
	e, store, chain := newTestEngine(t)
	farmer, contract, _ := seedExitFarmer(t, store, chain, 10_000_000)

	exit, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, true)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		reloaded, err := store.GetExitSplit(context.Background(), exit.ID)
		return err == nil && reloaded.Status == models.ExitCompleted
	}, time.Second, 5*time.Millisecond)

	reloaded, err := store.GetExitSplit(context.Background(), exit.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.AllLegsPaid())

	updatedContract, err := store.GetContract(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractComplete, updatedContract.Status)
}

func TestPayoutIdempotentSkipsAlreadyPaidLegs(t *testing.T) {
	e, store, chain := newTestEngine(t)
	farmer, _, _ := seedExitFarmer(t, store, chain, 10_000_000)

	exit, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.NoError(t, err)

	exit.FarmerTxHash = "already-paid-hash"
	require.NoError(t, store.UpdateExitSplit(context.Background(), exit))

	e.RunPayout(context.Background(), exit.ID)

	reloaded, err := store.GetExitSplit(context.Background(), exit.ID)
	require.NoError(t, err)
	assert.Equal(t, "already-paid-hash", reloaded.FarmerTxHash, "a pre-recorded leg must not be re-paid")
	assert.True(t, reloaded.AllLegsPaid())
}

func TestPayoutPermanentFailureKeepsSuccessfulLegs(t *testing.T) {
	e, store, chain := newTestEngine(t)
	e.cfg.RetryBaseDelay = time.Millisecond
	e.cfg.RetryCapDelay = 2 * time.Millisecond
	e.cfg.MaxRetry = 0 // the injected failure is single-use; no retry must be left to consume it
	farmer, _, _ := seedExitFarmer(t, store, chain, 10_000_000)

	sealed, _ := farmer.Sealed()
	secretBytes, _ := sealed.Open(secretkey.Current())
	chain.FailTransferFor(string(secretBytes), mockchain.FailureMode{Kind: 0, Msg: "chain rejected transfer"})

	exit, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.NoError(t, err)

	e.RunPayout(context.Background(), exit.ID)

	reloaded, err := store.GetExitSplit(context.Background(), exit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExitFailed, reloaded.Status)
	// the farmer leg failed (injected failure consumed on first attempt),
	// but pooler/platform legs (not failed) must still have been paid.
	assert.NotEmpty(t, reloaded.PoolerTxHash)
	assert.NotEmpty(t, reloaded.PlatformTxHash)
}

func TestPayoutRetrySucceedsRecordsCountAndAudit(t *testing.T) {
	e, store, chain := newTestEngine(t)
	e.cfg.RetryBaseDelay = time.Millisecond
	e.cfg.RetryCapDelay = 2 * time.Millisecond
	e.cfg.MaxRetry = 1 // enough for the single-use injected failure to be retried into success
	farmer, _, _ := seedExitFarmer(t, store, chain, 10_000_000)

	sealed, _ := farmer.Sealed()
	secretBytes, _ := sealed.Open(secretkey.Current())
	chain.FailTransferFor(string(secretBytes), mockchain.FailureMode{Kind: 0, Msg: "transient rejection"})

	exit, err := e.InitiateExit(context.Background(), farmer.ID, validExternalWallet, false)
	require.NoError(t, err)

	e.RunPayout(context.Background(), exit.ID)

	reloaded, err := store.GetExitSplit(context.Background(), exit.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.AllLegsPaid())
	assert.Equal(t, 1, reloaded.RetryCount, "the single retry on the farmer leg must be persisted")

	var sawRetryAudit bool
	for _, a := range store.Audits() {
		if a.ExitSplitID == exit.ID && a.Action == models.AuditFarmerRetried {
			sawRetryAudit = true
		}
	}
	assert.True(t, sawRetryAudit, "a farmer_retried audit row must be appended for the retried leg")
}
