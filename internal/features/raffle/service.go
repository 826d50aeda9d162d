// Package raffle — service.go координирует розыгрыш от списания до записи исхода.
// Исход решается жребием против шанса ранга и сохраняется вместе с ними:
// по записи розыгрыш можно перепроверить, даже если шанс потом поменяли.
package raffle

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

// WinRates отдаёт действующий шанс выигрыша ранга в процентах [0, 100].
type WinRates interface {
	WinRate(ctx context.Context, rank ledger.Rank) (float64, error)
}

// DrawResult — итог одного розыгрыша.
type DrawResult struct {
	Record     *ledger.RaffleRecord
	NewBalance int64
}

// Service управляет розыгрышами.
type Service struct {
	store ledger.Store
	rates WinRates
	clock common.Clock
	rng   common.RNG
	loc   *time.Location
}

// NewService создаёт сервис розыгрышей.
func NewService(store ledger.Store, rates WinRates, clock common.Clock, rng common.RNG, loc *time.Location) *Service {
	return &Service{store: store, rates: rates, clock: clock, rng: rng, loc: loc}
}

// Draw разыгрывает приз категории tier для actorID.
// Стоимость участия списывается независимо от исхода. Списание, запись аудита
// и запись исхода фиксируются одной транзакцией: проигрыш без списания или
// списание без записанного исхода невозможны.
func (s *Service) Draw(ctx context.Context, actorID int64, tier PrizeTier) (*DrawResult, error) {
	if !tier.Valid() {
		return nil, common.ErrInvalidPrize
	}
	cost := tier.Cost()

	actor, err := s.store.GetActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.WinRate(ctx, actor.Rank)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения шанса выигрыша: %w", err)
	}

	// Жребий бросается до транзакции: источник случайности не должен
	// зависеть от времени удержания блокировки
	roll := s.rng.Percent()
	won := roll < rate
	now := s.clock.Now().In(s.loc)

	record := &ledger.RaffleRecord{
		PrizeTier:     string(tier),
		PointsWagered: cost,
		Won:           won,
		RankAtDraw:    actor.Rank,
		WinRateAtDraw: rate,
		RandomValue:   roll,
		CreatedAt:     now,
	}

	var newBalance int64
	err = s.store.WithActorTx(ctx, actorID, func(tx ledger.Tx) error {
		balance, err := tx.GetBalance()
		if err != nil {
			return err
		}
		if balance < cost {
			return &common.InsufficientPointsError{Required: cost, Current: balance}
		}

		if err := tx.AdjustBalance(-cost); err != nil {
			return err
		}
		if err := tx.AppendTransaction(&ledger.PointTransaction{
			Kind:        ledger.TxKindUse,
			Amount:      cost,
			Description: fmt.Sprintf("Участие в розыгрыше категории %s", tier),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := tx.InsertRaffleRecord(record); err != nil {
			return err
		}

		newBalance, err = tx.GetBalance()
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": actorID,
		"tier":    tier,
		"won":     won,
		"roll":    roll,
		"rate":    rate,
	}).Info("Розыгрыш сыгран")

	return &DrawResult{Record: record, NewBalance: newBalance}, nil
}

// History возвращает последние розыгрыши пользователя.
func (s *Service) History(ctx context.Context, actorID int64, limit int) ([]*ledger.RaffleRecord, error) {
	return s.store.ListRaffleHistory(ctx, actorID, limit)
}

// RecentAll возвращает последние розыгрыши всех пользователей (для админки).
func (s *Service) RecentAll(ctx context.Context, limit int) ([]*ledger.RaffleRecord, error) {
	return s.store.ListRecentRaffles(ctx, limit)
}
