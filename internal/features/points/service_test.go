package points_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/features/points"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

const receiverID = int64(1)

type limitsStub struct {
	limit int64
}

func (s limitsStub) MonthlyLimit(ctx context.Context) (int64, error) {
	return s.limit, nil
}

func newTestService(t *testing.T, monthlyLimit int64) (*points.Service, *ledger.Memory, *common.FixedClock) {
	t.Helper()

	store := ledger.NewMemory(2 * time.Second)
	store.AddActor(receiverID, "alice", ledger.RankBronze, 0)

	clock := common.NewFixedClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	svc := points.NewService(store, limitsStub{limit: monthlyLimit}, clock, time.UTC)
	return svc, store, clock
}

// seedLikes создаёт n лайков для получателя от разных отправителей,
// по минуте между ними начиная с at.
func seedLikes(t *testing.T, store *ledger.Memory, n int, at time.Time) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		senderID := int64(1000 + i)
		store.AddActor(senderID, fmt.Sprintf("sender%d", i), ledger.RankBronze, 0)
		ts := at.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.WithActorTx(ctx, senderID, func(tx ledger.Tx) error {
			return tx.InsertLike(&ledger.Like{ReceiverID: receiverID, CreatedAt: ts})
		}))
	}
}

func TestConvert_All(t *testing.T) {
	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 7, clock.Now().Add(-time.Hour))
	ctx := context.Background()

	result, err := svc.Convert(ctx, receiverID, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(7), result.LikesConverted)
	assert.Equal(t, int64(700), result.PointsCredited)
	assert.Equal(t, int64(700), result.NewBalance)

	count, err := store.CountUnconverted(ctx, receiverID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConvert_Partial_OldestFirst(t *testing.T) {
	// Обмениваются 2 самых старых лайка из 5

	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 5, clock.Now().Add(-time.Hour))
	ctx := context.Background()

	result, err := svc.Convert(ctx, receiverID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.LikesConverted)
	assert.Equal(t, int64(200), result.PointsCredited)

	// ListReceivedLikes отдаёт от новых к старым: обменяны два последних в списке
	all, err := store.ListReceivedLikes(ctx, receiverID, 10)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.False(t, all[0].Converted)
	assert.False(t, all[1].Converted)
	assert.False(t, all[2].Converted)
	assert.True(t, all[3].Converted)
	assert.True(t, all[4].Converted)
}

func TestConvert_RequestedMoreThanAvailable(t *testing.T) {
	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 3, clock.Now().Add(-time.Hour))

	result, err := svc.Convert(context.Background(), receiverID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.LikesConverted)
}

func TestConvert_NothingToConvert(t *testing.T) {
	svc, _, _ := newTestService(t, 3000)

	_, err := svc.Convert(context.Background(), receiverID, 0)

	assert.ErrorIs(t, err, common.ErrNothingToConvert)
}

func TestConvert_MonthlyLimitAllOrNothing(t *testing.T) {
	// GIVEN: лимит 3000 баллов, 31 лайк (3100 баллов)
	// WHEN: обмен всех сразу
	// THEN: обмен отклонён целиком с подсказкой «влезает 30»

	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 31, clock.Now().Add(-2*time.Hour))
	ctx := context.Background()

	_, err := svc.Convert(ctx, receiverID, 0)
	var limitErr *common.MonthlyLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(3000), limitErr.MonthlyLimit)
	assert.Equal(t, int64(0), limitErr.AlreadyConverted)
	assert.Equal(t, int64(3000), limitErr.RemainingLimit)
	assert.Equal(t, int64(30), limitErr.MaxLikesCanConvert)

	// Ничего не изменилось: все 31 лайк по-прежнему доступны, баланс нулевой
	count, err := store.CountUnconverted(ctx, receiverID)
	require.NoError(t, err)
	assert.Equal(t, 31, count)

	actor, err := store.GetActor(ctx, receiverID)
	require.NoError(t, err)
	assert.Zero(t, actor.Balance)

	// Ровно в лимит — проходит
	result, err := svc.Convert(ctx, receiverID, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), result.PointsCredited)
}

func TestConvert_MonthlyLimitAccumulates(t *testing.T) {
	// Уже обменяно 2900 в этом месяце: второй обмен на 2 лайка не влезает

	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 31, clock.Now().Add(-2*time.Hour))
	ctx := context.Background()

	_, err := svc.Convert(ctx, receiverID, 29)
	require.NoError(t, err)

	_, err = svc.Convert(ctx, receiverID, 2)
	var limitErr *common.MonthlyLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(2900), limitErr.AlreadyConverted)
	assert.Equal(t, int64(100), limitErr.RemainingLimit)
	assert.Equal(t, int64(1), limitErr.MaxLikesCanConvert)

	// Один лайк ещё влезает
	result, err := svc.Convert(ctx, receiverID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), result.NewBalance)
}

func TestConvert_LimitWindowResetsNextMonth(t *testing.T) {
	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 31, clock.Now().Add(-2*time.Hour))
	ctx := context.Background()

	_, err := svc.Convert(ctx, receiverID, 30)
	require.NoError(t, err)

	// В марте остаток 0 — отказ
	_, err = svc.Convert(ctx, receiverID, 1)
	var limitErr *common.MonthlyLimitError
	require.ErrorAs(t, err, &limitErr)

	// 1 апреля окно новое
	clock.Set(time.Date(2026, time.April, 1, 0, 0, 1, 0, time.UTC))
	result, err := svc.Convert(ctx, receiverID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.LikesConverted)
}

func TestConvert_WritesAuditRecord(t *testing.T) {
	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 2, clock.Now().Add(-time.Hour))
	ctx := context.Background()

	_, err := svc.Convert(ctx, receiverID, 0)
	require.NoError(t, err)

	txs, err := store.ListTransactions(ctx, receiverID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, ledger.TxKindConvert, txs[0].Kind)
	assert.Equal(t, int64(200), txs[0].Amount)
	assert.Nil(t, txs[0].RelatedActorID)
}

func TestConvert_ConcurrentConvertsEachLikeOnce(t *testing.T) {
	// GIVEN: 10 лайков и 5 конкурентных обменов «всё сразу»
	// THEN: каждый лайк обменян ровно один раз, баланс ровно 1000

	svc, store, clock := newTestService(t, 100000)
	seedLikes(t, store, 10, clock.Now().Add(-time.Hour))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Либо успех, либо «нечего обменивать» — двойного обмена не бывает
			_, _ = svc.Convert(ctx, receiverID, 0)
		}()
	}
	wg.Wait()

	actor, err := store.GetActor(ctx, receiverID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), actor.Balance)

	count, err := store.CountUnconverted(ctx, receiverID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMonthStatus(t *testing.T) {
	svc, store, clock := newTestService(t, 3000)
	seedLikes(t, store, 4, clock.Now().Add(-time.Hour))
	ctx := context.Background()

	_, err := svc.Convert(ctx, receiverID, 4)
	require.NoError(t, err)

	status, err := svc.MonthStatus(ctx, receiverID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), status.MonthlyLimit)
	assert.Equal(t, int64(400), status.AlreadyConverted)
	assert.Equal(t, int64(2600), status.RemainingLimit)
}
