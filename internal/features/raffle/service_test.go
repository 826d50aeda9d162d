package raffle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/features/raffle"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

const playerID = int64(1)

type ratesStub struct {
	rates map[ledger.Rank]float64
}

func (s ratesStub) WinRate(ctx context.Context, rank ledger.Rank) (float64, error) {
	return s.rates[rank], nil
}

func newTestService(t *testing.T, balance int64, rank ledger.Rank, winRate float64, rolls ...float64) (*raffle.Service, *ledger.Memory) {
	t.Helper()

	store := ledger.NewMemory(2 * time.Second)
	store.AddActor(playerID, "alice", rank, balance)

	clock := common.NewFixedClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	rng := common.NewScriptedRNG(rolls...)
	svc := raffle.NewService(store, ratesStub{rates: map[ledger.Rank]float64{rank: winRate}}, clock, rng, time.UTC)
	return svc, store
}

func TestParseTier(t *testing.T) {
	for input, want := range map[string]raffle.PrizeTier{
		"A": raffle.TierA, "a": raffle.TierA, "А": raffle.TierA,
		"b": raffle.TierB, "В": raffle.TierB,
		"C": raffle.TierC, "с": raffle.TierC,
	} {
		tier, err := raffle.ParseTier(input)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, tier, "input %q", input)
	}

	_, err := raffle.ParseTier("D")
	assert.ErrorIs(t, err, common.ErrInvalidPrize)
}

func TestTierCosts(t *testing.T) {
	assert.Equal(t, int64(2000), raffle.TierA.Cost())
	assert.Equal(t, int64(1000), raffle.TierB.Cost())
	assert.Equal(t, int64(500), raffle.TierC.Cost())
}

func TestDraw_WinBelowRate(t *testing.T) {
	// Шанс 50%, жребий 49.9 — выигрыш

	svc, _ := newTestService(t, 5000, ledger.RankGold, 50, 49.9)

	result, err := svc.Draw(context.Background(), playerID, raffle.TierB)
	require.NoError(t, err)

	assert.True(t, result.Record.Won)
	assert.Equal(t, int64(4000), result.NewBalance)
}

func TestDraw_LoseAboveRate(t *testing.T) {
	// Шанс 50%, жребий 50.1 — проигрыш, но списание то же

	svc, _ := newTestService(t, 5000, ledger.RankGold, 50, 50.1)

	result, err := svc.Draw(context.Background(), playerID, raffle.TierB)
	require.NoError(t, err)

	assert.False(t, result.Record.Won)
	assert.Equal(t, int64(4000), result.NewBalance)
}

func TestDraw_ExactRateLoses(t *testing.T) {
	// Граница строгая: жребий, равный шансу, не выигрывает

	svc, _ := newTestService(t, 5000, ledger.RankGold, 50, 50.0)

	result, err := svc.Draw(context.Background(), playerID, raffle.TierB)
	require.NoError(t, err)

	assert.False(t, result.Record.Won)
}

func TestDraw_ZeroRateNeverWins(t *testing.T) {
	// Дефолтный шанс 0: выигрыш невозможен при любом жребии

	svc, _ := newTestService(t, 5000, ledger.RankBronze, 0, 0.0)

	result, err := svc.Draw(context.Background(), playerID, raffle.TierC)
	require.NoError(t, err)

	assert.False(t, result.Record.Won)
}

func TestDraw_RecordKeepsRateAndRoll(t *testing.T) {
	// Исход хранится вместе с шансом и жребием на момент розыгрыша

	svc, store := newTestService(t, 5000, ledger.RankPlatinum, 33.5, 12.25)
	ctx := context.Background()

	_, err := svc.Draw(ctx, playerID, raffle.TierA)
	require.NoError(t, err)

	history, err := store.ListRaffleHistory(ctx, playerID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	rec := history[0]
	assert.Equal(t, "A", rec.PrizeTier)
	assert.Equal(t, int64(2000), rec.PointsWagered)
	assert.Equal(t, ledger.RankPlatinum, rec.RankAtDraw)
	assert.Equal(t, 33.5, rec.WinRateAtDraw)
	assert.Equal(t, 12.25, rec.RandomValue)
	assert.True(t, rec.Won)
}

func TestDraw_InsufficientPoints(t *testing.T) {
	svc, store := newTestService(t, 499, ledger.RankBronze, 0, 10.0)
	ctx := context.Background()

	_, err := svc.Draw(ctx, playerID, raffle.TierC)

	var pointsErr *common.InsufficientPointsError
	require.ErrorAs(t, err, &pointsErr)
	assert.Equal(t, int64(500), pointsErr.Required)
	assert.Equal(t, int64(499), pointsErr.Current)

	// Ничего не списано и не записано
	actor, err := store.GetActor(ctx, playerID)
	require.NoError(t, err)
	assert.Equal(t, int64(499), actor.Balance)

	history, err := store.ListRaffleHistory(ctx, playerID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDraw_InvalidTier(t *testing.T) {
	svc, _ := newTestService(t, 5000, ledger.RankBronze, 0, 10.0)

	_, err := svc.Draw(context.Background(), playerID, raffle.PrizeTier("X"))

	assert.ErrorIs(t, err, common.ErrInvalidPrize)
}

func TestDraw_WritesUseAudit(t *testing.T) {
	svc, store := newTestService(t, 5000, ledger.RankGold, 50, 99.0)
	ctx := context.Background()

	_, err := svc.Draw(ctx, playerID, raffle.TierB)
	require.NoError(t, err)

	txs, err := store.ListTransactions(ctx, playerID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxKindUse, txs[0].Kind)
	assert.Equal(t, int64(1000), txs[0].Amount)
}
