package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/features/settings"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

func newTestService() *settings.Service {
	return settings.NewService(settings.NewMemoryRepository())
}

func TestMonthlyLimit_Default(t *testing.T) {
	svc := newTestService()

	limit, err := svc.MonthlyLimit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, settings.DefaultMonthlyLimit, limit)
}

func TestMonthlyLimit_SetAndGet(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetMonthlyLimit(ctx, 5000))

	limit, err := svc.MonthlyLimit(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), limit)
}

func TestSetMonthlyLimit_RejectsNonPositive(t *testing.T) {
	svc := newTestService()

	assert.ErrorIs(t, svc.SetMonthlyLimit(context.Background(), 0), common.ErrInvalidAmount)
	assert.ErrorIs(t, svc.SetMonthlyLimit(context.Background(), -100), common.ErrInvalidAmount)
}

func TestWinRate_DefaultZero(t *testing.T) {
	svc := newTestService()

	rate, err := svc.WinRate(context.Background(), ledger.RankGold)
	require.NoError(t, err)

	assert.Zero(t, rate)
}

func TestWinRate_SetPerRank(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.SetWinRate(ctx, ledger.RankGold, 25))
	require.NoError(t, svc.SetWinRate(ctx, ledger.RankBronze, 5))

	gold, err := svc.WinRate(ctx, ledger.RankGold)
	require.NoError(t, err)
	assert.Equal(t, 25.0, gold)

	// Остальные ранги не задеты
	silver, err := svc.WinRate(ctx, ledger.RankSilver)
	require.NoError(t, err)
	assert.Zero(t, silver)
}

func TestSetWinRate_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	assert.Error(t, svc.SetWinRate(ctx, ledger.Rank("diamond"), 10))
	assert.Error(t, svc.SetWinRate(ctx, ledger.RankGold, -1))
	assert.Error(t, svc.SetWinRate(ctx, ledger.RankGold, 100.5))

	assert.NoError(t, svc.SetWinRate(ctx, ledger.RankGold, 0))
	assert.NoError(t, svc.SetWinRate(ctx, ledger.RankGold, 100))
}
