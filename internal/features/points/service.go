// Package points — service.go содержит бизнес-логику обмена лайков на баллы.
// Обмен атомарный и всё-или-ничего: либо все запрошенные лайки превращаются
// в баллы одной транзакцией, либо ничего не меняется.
package points

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

// PointsPerLike — курс обмена: один лайк равен ста баллам.
const PointsPerLike int64 = 100

// Limits отдаёт действующий месячный потолок обмена.
type Limits interface {
	MonthlyLimit(ctx context.Context) (int64, error)
}

// ConversionResult — итог успешного обмена.
type ConversionResult struct {
	LikesConverted int64 // Сколько лайков обменяно
	PointsCredited int64 // Сколько баллов начислено
	NewBalance     int64 // Баланс после обмена
}

// MonthStatus — состояние месячного лимита пользователя (для !баланс).
type MonthStatus struct {
	MonthlyLimit     int64 // Потолок на месяц
	AlreadyConverted int64 // Обменяно в этом месяце
	RemainingLimit   int64 // Остаток потолка в баллах
}

// Service управляет баллами.
type Service struct {
	store  ledger.Store
	limits Limits
	clock  common.Clock
	loc    *time.Location
}

// NewService создаёт сервис баллов.
func NewService(store ledger.Store, limits Limits, clock common.Clock, loc *time.Location) *Service {
	return &Service{store: store, limits: limits, clock: clock, loc: loc}
}

// Convert обменивает лайки пользователя на баллы.
// requested — сколько лайков обменять; 0 означает «все доступные».
// Обмениваются самые старые лайки. Если обмен не влезает в остаток
// месячного потолка, он отклоняется целиком с подсказкой, сколько влезет
// (MonthlyLimitError). Частичный обмен сервис не делает никогда.
func (s *Service) Convert(ctx context.Context, actorID int64, requested int) (*ConversionResult, error) {
	if requested < 0 {
		return nil, common.ErrInvalidAmount
	}

	limit, err := s.limits.MonthlyLimit(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения месячного лимита: %w", err)
	}

	now := s.clock.Now().In(s.loc)
	monthStart, monthEnd := common.MonthBounds(now)

	var result ConversionResult
	err = s.store.WithActorTx(ctx, actorID, func(tx ledger.Tx) error {
		converted, err := tx.SumConvertedBetween(monthStart, monthEnd)
		if err != nil {
			return err
		}

		likes, err := tx.FindUnconvertedLikes()
		if err != nil {
			return err
		}
		if len(likes) == 0 {
			return common.ErrNothingToConvert
		}

		toConvert := len(likes)
		if requested > 0 && requested < toConvert {
			toConvert = requested
		}
		points := int64(toConvert) * PointsPerLike

		if converted+points > limit {
			remaining := limit - converted
			if remaining < 0 {
				remaining = 0
			}
			return &common.MonthlyLimitError{
				MonthlyLimit:       limit,
				AlreadyConverted:   converted,
				RemainingLimit:     remaining,
				MaxLikesCanConvert: remaining / PointsPerLike,
			}
		}

		ids := make([]int64, toConvert)
		for i := 0; i < toConvert; i++ {
			ids[i] = likes[i].ID
		}
		if err := tx.MarkLikesConverted(ids); err != nil {
			return err
		}
		if err := tx.AdjustBalance(points); err != nil {
			return err
		}
		if err := tx.AppendTransaction(&ledger.PointTransaction{
			Kind:   ledger.TxKindConvert,
			Amount: points,
			Description: fmt.Sprintf("Обмен %d %s на %d %s",
				toConvert, common.PluralizeLikes(int64(toConvert)),
				points, common.PluralizePoints(points)),
			CreatedAt: now,
		}); err != nil {
			return err
		}

		balance, err := tx.GetBalance()
		if err != nil {
			return err
		}
		result = ConversionResult{
			LikesConverted: int64(toConvert),
			PointsCredited: points,
			NewBalance:     balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"user_id": actorID,
		"likes":   result.LikesConverted,
		"points":  result.PointsCredited,
	}).Info("Лайки обменяны на баллы")

	return &result, nil
}

// Balance возвращает счёт пользователя.
func (s *Service) Balance(ctx context.Context, actorID int64) (*ledger.Actor, error) {
	return s.store.GetActor(ctx, actorID)
}

// MonthStatus возвращает состояние месячного лимита пользователя.
func (s *Service) MonthStatus(ctx context.Context, actorID int64) (*MonthStatus, error) {
	limit, err := s.limits.MonthlyLimit(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения месячного лимита: %w", err)
	}

	now := s.clock.Now().In(s.loc)
	monthStart, monthEnd := common.MonthBounds(now)

	var converted int64
	err = s.store.WithActorTx(ctx, actorID, func(tx ledger.Tx) error {
		converted, err = tx.SumConvertedBetween(monthStart, monthEnd)
		return err
	})
	if err != nil {
		return nil, err
	}

	remaining := limit - converted
	if remaining < 0 {
		remaining = 0
	}
	return &MonthStatus{
		MonthlyLimit:     limit,
		AlreadyConverted: converted,
		RemainingLimit:   remaining,
	}, nil
}

// History возвращает последние записи аудита пользователя.
func (s *Service) History(ctx context.Context, actorID int64, limit int) ([]*ledger.PointTransaction, error) {
	return s.store.ListTransactions(ctx, actorID, limit)
}
