package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/jobs"
	"serotonyl.ru/kudos-bot/internal/ledger"
	"serotonyl.ru/kudos-bot/internal/notify"
)

func TestRetentionSweep_PurgesOnlyOldRecords(t *testing.T) {
	// GIVEN: лайк и транзакция старше года и свежая пара
	// WHEN: зачистка
	// THEN: удалена только старая пара, балансы не тронуты

	store := ledger.NewMemory(2 * time.Second)
	store.AddActor(1, "alice", ledger.RankBronze, 500)
	store.AddActor(2, "bob", ledger.RankBronze, 0)
	ctx := context.Background()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(-1, 0, -1)
	fresh := now.AddDate(0, -1, 0)

	for _, ts := range []time.Time{old, fresh} {
		require.NoError(t, store.WithActorTx(ctx, 1, func(tx ledger.Tx) error {
			if err := tx.InsertLike(&ledger.Like{ReceiverID: 2, CreatedAt: ts}); err != nil {
				return err
			}
			return tx.AppendTransaction(&ledger.PointTransaction{
				Kind: ledger.TxKindCharge, Amount: 100, CreatedAt: ts,
			})
		}))
	}

	clock := common.NewFixedClock(now)
	scheduler := jobs.NewScheduler(store, notify.Nop{}, clock, time.UTC)
	scheduler.RunRetentionSweep(ctx)

	likes, err := store.ListSentLikes(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, likes, 1)
	assert.Equal(t, fresh, likes[0].CreatedAt)

	txs, err := store.ListTransactions(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	actor, err := store.GetActor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), actor.Balance, "зачистка не трогает балансы")
}

func TestRetentionSweep_EmptyStoreIsNoop(t *testing.T) {
	store := ledger.NewMemory(2 * time.Second)
	clock := common.NewFixedClock(time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC))
	scheduler := jobs.NewScheduler(store, notify.Nop{}, clock, time.UTC)

	// Не должно паниковать и что-либо менять
	scheduler.RunRetentionSweep(context.Background())
}
