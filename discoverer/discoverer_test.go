package discoverer

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/kale-pool/discoverer/queue"
	"github.com/klaytn/kale-pool/event"
	"github.com/klaytn/kale-pool/internal/config"
	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/secretkey"
	"github.com/klaytn/kale-pool/models"
	"github.com/klaytn/kale-pool/storage/memstore"
	"github.com/klaytn/kale-pool/wallet"
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

type fakeNotifier struct {
	calls []struct {
		blockIndex int64
		farmers    []plantedFarmer
	}
}

func (f *fakeNotifier) Notify(ctx context.Context, blockIndex int64, entropy string, blockTimestamp time.Time, farmers []plantedFarmer) (int, error) {
	f.calls = append(f.calls, struct {
		blockIndex int64
		farmers    []plantedFarmer
	}{blockIndex, farmers})
	return len(farmers), nil
}

func seedFarmer(t *testing.T, store *memstore.Store, chain *mockchain.Chain, poolerID models.ID, balance int64) *models.Farmer {
	t.Helper()
	secretPlain := "S" + models.NewID().String() + "FAKE"
	sealed, err := models.SealSecret(secretkey.Current(), []byte(secretPlain))
	require.NoError(t, err)

	pub := mockchain.PublicKeyFor(secretPlain)
	chain.SeedBalance(pub, balance)

	f := &models.Farmer{
		ID:                 models.NewID(),
		UserID:             models.NewID(),
		CustodialPublicKey: pub,
		CustodialSecretKey: sealed.Marshal(),
		Status:             models.FarmerActiveInPool,
		CurrentBalance:     balance,
		IsFunded:           true,
	}
	store.SeedFarmer(f)
	store.SeedContract(&models.PoolContract{
		ID:              models.NewID(),
		FarmerID:        f.ID,
		PoolerID:        poolerID,
		StakePercentage: 0.5,
		HarvestInterval: 5,
		RewardSplit:     0.5,
		PlatformFee:     0.05,
		Status:          models.ContractActive,
		CreatedAt:       time.Now(),
	})
	return f
}

func newTestDiscoverer(t *testing.T) (*Discoverer, *memstore.Store, *mockchain.Chain, *fakeNotifier, models.ID) {
	t.Helper()
	cfg := config.Default()
	poolerID := models.NewID()
	cfg.PoolerID = poolerID.String()

	store := memstore.New()
	chain := mockchain.New()
	notifier := &fakeNotifier{}
	bus := event.New()
	q := queue.NewInProcess()

	d := New(cfg, chain, store, bus, notifier, q)
	return d, store, chain, notifier, poolerID
}

func TestIdempotentDiscoveryUpsertsSingleRow(t *testing.T) {
	d, store, chain, _, poolerID := newTestDiscoverer(t)
	_ = poolerID
	chain.SetHead(wallet.BlockHead{BlockIndex: 42, Entropy: "ab", Timestamp: time.Now(), Plantable: true, MinStake: 100, MaxStake: 1000})

	ctx := context.Background()
	d.poll(ctx)
	d.wg.Wait()
	d.poll(ctx) // re-poll same head: must not create a second row

	op, err := store.GetBlockOperation(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), op.BlockIndex)
}

func TestBurstIsolationOneFailureDoesNotAbortOthers(t *testing.T) {
	d, store, chain, notifier, poolerID := newTestDiscoverer(t)

	a := seedFarmer(t, store, chain, poolerID, 1_000_000)
	b := seedFarmer(t, store, chain, poolerID, 1_000_000)
	c := seedFarmer(t, store, chain, poolerID, 1_000_000)

	sealedB, _ := b.Sealed()
	secretB, _ := sealedB.Open(secretkey.Current())
	chain.FailPlantFor(string(secretB), mockchain.FailureMode{Kind: errkind.KindInsufficientFunds, Msg: "insufficient_funds"})

	chain.SetHead(wallet.BlockHead{BlockIndex: 7, Entropy: "cd", Timestamp: time.Now(), Plantable: true, MinStake: 100, MaxStake: 1000})

	ctx := context.Background()
	d.poll(ctx)
	d.wg.Wait()

	plantings, err := store.ListPlantingsForBlock(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, plantings, 3)

	successCount := 0
	for _, p := range plantings {
		if p.Status == models.OpSuccess {
			successCount++
		}
	}
	assert.Equal(t, 2, successCount)

	op, err := store.GetBlockOperation(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, op.SuccessfulPlants)

	require.Len(t, notifier.calls, 1)
	assert.Len(t, notifier.calls[0].farmers, 2)

	_ = a
	_ = c
}
