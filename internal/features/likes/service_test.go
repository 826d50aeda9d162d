package likes_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/features/likes"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

const (
	senderID   = int64(1)
	receiverID = int64(2)
	thirdID    = int64(3)
)

func newTestService(t *testing.T, cooldown time.Duration, dailyCap int) (*likes.Service, *ledger.Memory, *common.FixedClock) {
	t.Helper()

	store := ledger.NewMemory(2 * time.Second)
	store.AddActor(senderID, "alice", ledger.RankBronze, 0)
	store.AddActor(receiverID, "bob", ledger.RankSilver, 0)
	store.AddActor(thirdID, "carol", ledger.RankBronze, 0)

	clock := common.NewFixedClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	svc := likes.NewService(store, nil, clock, cooldown, dailyCap, time.UTC)
	return svc, store, clock
}

func TestSendLike_Success(t *testing.T) {
	svc, store, clock := newTestService(t, 30*time.Minute, 5)
	ctx := context.Background()

	like, err := svc.SendLike(ctx, senderID, receiverID, "за помощь с релизом")
	require.NoError(t, err)

	assert.Equal(t, senderID, like.SenderID)
	assert.Equal(t, receiverID, like.ReceiverID)
	assert.Equal(t, "за помощь с релизом", like.Comment)
	assert.False(t, like.Converted)
	assert.Equal(t, clock.Now(), like.CreatedAt)

	count, err := store.CountUnconverted(ctx, receiverID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSendLike_SelfRejected(t *testing.T) {
	svc, _, _ := newTestService(t, 30*time.Minute, 5)

	_, err := svc.SendLike(context.Background(), senderID, senderID, "")

	assert.ErrorIs(t, err, common.ErrSelfLike)
}

func TestSendLike_UnknownReceiver(t *testing.T) {
	svc, _, _ := newTestService(t, 30*time.Minute, 5)

	_, err := svc.SendLike(context.Background(), senderID, 404, "")

	assert.ErrorIs(t, err, common.ErrReceiverNotFound)
}

func TestSendLike_CooldownBoundary(t *testing.T) {
	// GIVEN: лайк отправлен, кулдаун 30 минут
	// WHEN: прошло 29 минут — отказ с остатком 1 минута; ровно 30 — успех

	svc, _, clock := newTestService(t, 30*time.Minute, 5)
	ctx := context.Background()

	_, err := svc.SendLike(ctx, senderID, receiverID, "")
	require.NoError(t, err)

	clock.Advance(29 * time.Minute)
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	var cooldownErr *common.CooldownError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Equal(t, 1, cooldownErr.RemainingMinutes)

	clock.Advance(1 * time.Minute)
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	assert.NoError(t, err)
}

func TestSendLike_CooldownRemainingRoundsUp(t *testing.T) {
	svc, _, clock := newTestService(t, 30*time.Minute, 5)
	ctx := context.Background()

	_, err := svc.SendLike(ctx, senderID, receiverID, "")
	require.NoError(t, err)

	// Осталось 10 минут 30 секунд — пользователю говорим 11
	clock.Advance(19*time.Minute + 30*time.Second)
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	var cooldownErr *common.CooldownError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Equal(t, 11, cooldownErr.RemainingMinutes)
}

func TestSendLike_DailyCap(t *testing.T) {
	// Кулдаун нулевой, лимит 2: третий лайк за день отклоняется

	svc, store, clock := newTestService(t, 0, 2)
	ctx := context.Background()
	store.AddActor(4, "dave", ledger.RankBronze, 0)

	_, err := svc.SendLike(ctx, senderID, receiverID, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = svc.SendLike(ctx, senderID, 4, "")
	assert.ErrorIs(t, err, common.ErrDailyCapReached)
}

func TestSendLike_DailyCapResetsAtMidnight(t *testing.T) {
	svc, _, clock := newTestService(t, 0, 1)
	ctx := context.Background()

	// 23:59 — лимит исчерпан
	clock.Set(time.Date(2026, time.March, 10, 23, 59, 0, 0, time.UTC))
	_, err := svc.SendLike(ctx, senderID, receiverID, "")
	require.NoError(t, err)
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	require.ErrorIs(t, err, common.ErrDailyCapReached)

	// 00:01 следующего дня — окно новое
	clock.Set(time.Date(2026, time.March, 11, 0, 1, 0, 0, time.UTC))
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	assert.NoError(t, err)
}

func TestSendLike_SameReceiverOncePerDay(t *testing.T) {
	svc, _, clock := newTestService(t, 0, 5)
	ctx := context.Background()

	_, err := svc.SendLike(ctx, senderID, receiverID, "")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = svc.SendLike(ctx, senderID, receiverID, "")
	assert.ErrorIs(t, err, common.ErrAlreadySentToday)

	// Другому получателю — можно
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	assert.NoError(t, err)
}

func TestSendLike_RejectionLeavesNoTrace(t *testing.T) {
	// Отклонённый лайк не появляется ни в отправленных, ни в полученных

	svc, store, clock := newTestService(t, 0, 1)
	ctx := context.Background()

	_, err := svc.SendLike(ctx, senderID, receiverID, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.SendLike(ctx, senderID, thirdID, "")
	require.ErrorIs(t, err, common.ErrDailyCapReached)

	sent, err := store.ListSentLikes(ctx, senderID, 10)
	require.NoError(t, err)
	assert.Len(t, sent, 1)

	got, err := store.ListReceivedLikes(ctx, thirdID, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSendLike_ConcurrentSendsRespectDailyCap(t *testing.T) {
	// GIVEN: дневной лимит 1 и два параллельных лайка разным получателям
	// THEN: проходит ровно один — проверки и запись идут в одной транзакции отправителя

	svc, store, _ := newTestService(t, 0, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	var successes atomic.Int32
	for _, rid := range []int64{receiverID, thirdID} {
		wg.Add(1)
		go func(rid int64) {
			defer wg.Done()
			if _, err := svc.SendLike(ctx, senderID, rid, ""); err == nil {
				successes.Add(1)
			}
		}(rid)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())

	sent, err := store.ListSentLikes(ctx, senderID, 10)
	require.NoError(t, err)
	assert.Len(t, sent, 1)
}

func TestIsThankYou(t *testing.T) {
	assert.True(t, likes.IsThankYou("спасибо"))
	assert.True(t, likes.IsThankYou("Спасибо!"))
	assert.True(t, likes.IsThankYou("  СПАСИБО  "))
	assert.False(t, likes.IsThankYou("большое спасибо"))
	assert.False(t, likes.IsThankYou("ок"))
}
