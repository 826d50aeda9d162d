package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

func newTestStore(t *testing.T) *ledger.Memory {
	t.Helper()
	return ledger.NewMemory(2 * time.Second)
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestMemory_WithActorTx_UnknownActor(t *testing.T) {
	store := newTestStore(t)

	err := store.WithActorTx(context.Background(), 404, func(tx ledger.Tx) error {
		t.Fatal("fn не должна вызываться для незарегистрированного пользователя")
		return nil
	})

	assert.ErrorIs(t, err, common.ErrActorNotFound)
}

func TestMemory_WithActorTx_RollbackOnError(t *testing.T) {
	// GIVEN: пользователь с балансом 100
	// WHEN: транзакция меняет баланс и пишет лайк, а затем возвращает ошибку
	// THEN: ни одна запись не видна после отката

	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 100)
	store.AddActor(2, "bob", ledger.RankBronze, 0)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
		require.NoError(t, tx.AdjustBalance(50))
		require.NoError(t, tx.InsertLike(&ledger.Like{ReceiverID: 2, CreatedAt: at(1, 12, 0)}))
		require.NoError(t, tx.AppendTransaction(&ledger.PointTransaction{
			Kind: ledger.TxKindCharge, Amount: 50, CreatedAt: at(1, 12, 0),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	actor, err := store.GetActor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), actor.Balance, "баланс не должен измениться")

	likes, err := store.ListSentLikes(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, likes)

	txs, err := store.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestMemory_WithActorTx_CancelBeforeCommitRollsBack(t *testing.T) {
	// GIVEN: транзакция меняет баланс и пишет лайк
	// WHEN: контекст отменяется до возврата из fn
	// THEN: фиксации нет, все staged-записи выброшены

	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	store.AddActor(2, "bob", ledger.RankBronze, 0)

	ctx, cancel := context.WithCancel(context.Background())
	err := store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
		require.NoError(t, tx.AdjustBalance(50))
		require.NoError(t, tx.InsertLike(&ledger.Like{ReceiverID: 2, CreatedAt: at(1, 12, 0)}))
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	actor, err := store.GetActor(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, actor.Balance, "отменённая транзакция не должна фиксироваться")

	likes, err := store.ListSentLikes(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, likes)
}

func TestMemory_WithActorTx_ContentionOnHeldLock(t *testing.T) {
	// Блокировка счёта удерживается дольше lockTimeout:
	// вторая операция получает ErrContention, а не висит

	store := ledger.NewMemory(50 * time.Millisecond)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	ctx := context.Background()

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := store.WithActorTx(ctx, 1, func(tx ledger.Tx) error { return nil })
	assert.ErrorIs(t, err, common.ErrContention)

	close(release)
	require.NoError(t, <-done)
}

func TestMemory_AdjustBalance_NeverNegative(t *testing.T) {
	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 30)
	ctx := context.Background()

	err := store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
		return tx.AdjustBalance(-50)
	})
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	actor, err := store.GetActor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(30), actor.Balance)
}

func TestMemory_TxReadsSeeStagedWrites(t *testing.T) {
	// Чтения внутри транзакции видят её собственные незафиксированные записи

	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	store.AddActor(2, "bob", ledger.RankBronze, 0)
	ctx := context.Background()

	err := store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
		require.NoError(t, tx.AdjustBalance(70))
		balance, err := tx.GetBalance()
		require.NoError(t, err)
		assert.Equal(t, int64(70), balance)

		require.NoError(t, tx.InsertLike(&ledger.Like{ReceiverID: 2, CreatedAt: at(1, 12, 0)}))
		count, err := tx.CountLikesSentBetween(at(1, 0, 0), at(2, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		has, err := tx.HasLikeToBetween(2, at(1, 0, 0), at(2, 0, 0))
		require.NoError(t, err)
		assert.True(t, has)
		return nil
	})
	require.NoError(t, err)
}

func TestMemory_MarkLikesConverted_RejectsForeignAndDouble(t *testing.T) {
	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	store.AddActor(2, "bob", ledger.RankBronze, 0)
	ctx := context.Background()

	var likeID int64
	require.NoError(t, store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
		like := &ledger.Like{ReceiverID: 2, CreatedAt: at(1, 10, 0)}
		if err := tx.InsertLike(like); err != nil {
			return err
		}
		likeID = like.ID
		return nil
	}))

	// Чужой лайк (получатель — 2, а не 1) обменять нельзя
	err := store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
		return tx.MarkLikesConverted([]int64{likeID})
	})
	assert.Error(t, err)

	// Получатель обменивает свой лайк
	require.NoError(t, store.WithActorTx(ctx, 2, func(tx ledger.Tx) error {
		return tx.MarkLikesConverted([]int64{likeID})
	}))

	// Повторный обмен того же лайка отклоняется
	err = store.WithActorTx(ctx, 2, func(tx ledger.Tx) error {
		return tx.MarkLikesConverted([]int64{likeID})
	})
	assert.Error(t, err)
}

func TestMemory_FindUnconvertedLikes_OldestFirst(t *testing.T) {
	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	store.AddActor(2, "bob", ledger.RankBronze, 0)
	ctx := context.Background()

	// Вставляем в перемешанном порядке по времени
	for _, ts := range []time.Time{at(3, 9, 0), at(1, 9, 0), at(2, 9, 0)} {
		require.NoError(t, store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
			return tx.InsertLike(&ledger.Like{ReceiverID: 2, CreatedAt: ts})
		}))
	}

	require.NoError(t, store.WithActorTx(ctx, 2, func(tx ledger.Tx) error {
		likes, err := tx.FindUnconvertedLikes()
		require.NoError(t, err)
		require.Len(t, likes, 3)
		assert.True(t, likes[0].CreatedAt.Before(likes[1].CreatedAt))
		assert.True(t, likes[1].CreatedAt.Before(likes[2].CreatedAt))
		return nil
	}))
}

func TestMemory_ConcurrentActorTx_Serialized(t *testing.T) {
	// GIVEN: 20 конкурентных транзакций, каждая добавляет 1 балл
	// THEN: итоговый баланс ровно 20 — ни одно приращение не потеряно

	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
				if _, err := tx.GetBalance(); err != nil {
					return err
				}
				return tx.AdjustBalance(1)
			})
		}()
	}
	wg.Wait()

	actor, err := store.GetActor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), actor.Balance)
}

func TestMemory_PurgeDuringConversionCommitsCleanly(t *testing.T) {
	// Зачистка берёт только мьютекс хранилища, не блокировку счёта, и может
	// удалить лайк, чья пометка «обменян» ещё не зафиксирована.
	// Фиксация обязана это пережить: баллы и аудит остаются, лайка уже нет.

	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	store.AddActor(2, "bob", ledger.RankBronze, 0)
	ctx := context.Background()

	var likeID int64
	require.NoError(t, store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
		like := &ledger.Like{ReceiverID: 2, CreatedAt: at(1, 10, 0)}
		if err := tx.InsertLike(like); err != nil {
			return err
		}
		likeID = like.ID
		return nil
	}))

	require.NoError(t, store.WithActorTx(ctx, 2, func(tx ledger.Tx) error {
		if err := tx.MarkLikesConverted([]int64{likeID}); err != nil {
			return err
		}
		if err := tx.AdjustBalance(100); err != nil {
			return err
		}
		// Лайк исчезает ровно между пометкой и фиксацией
		_, _, err := store.PurgeOlderThan(ctx, at(5, 0, 0))
		return err
	}))

	actor, err := store.GetActor(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(100), actor.Balance)

	count, err := store.CountUnconverted(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemory_PurgeOlderThan(t *testing.T) {
	store := newTestStore(t)
	store.AddActor(1, "alice", ledger.RankBronze, 0)
	store.AddActor(2, "bob", ledger.RankBronze, 0)
	ctx := context.Background()

	old := at(1, 10, 0)
	fresh := at(20, 10, 0)
	for _, ts := range []time.Time{old, fresh} {
		require.NoError(t, store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
			if err := tx.InsertLike(&ledger.Like{ReceiverID: 2, CreatedAt: ts}); err != nil {
				return err
			}
			return tx.AppendTransaction(&ledger.PointTransaction{
				Kind: ledger.TxKindCharge, Amount: 10, CreatedAt: ts,
			})
		}))
	}

	likes, txs, err := store.PurgeOlderThan(ctx, at(10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), likes)
	assert.Equal(t, int64(1), txs)

	remaining, err := store.ListSentLikes(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh, remaining[0].CreatedAt)
}
