// Package settings — service.go отдаёт параметры с дефолтами и валидирует их изменение.
package settings

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

const (
	// KeyMonthlyLimit — ключ месячного потолка обмена (в баллах).
	KeyMonthlyLimit = "monthly_conversion_limit"

	// DefaultMonthlyLimit — потолок обмена, пока админ не задал свой.
	DefaultMonthlyLimit int64 = 3000
	// DefaultWinRate — шанс выигрыша ранга, пока админ не задал свой.
	// Ноль: ранг без настроенного шанса не выигрывает никогда.
	DefaultWinRate float64 = 0
)

// Service — чтение и изменение настроек системы.
type Service struct {
	repo Repository
}

// NewService создаёт сервис настроек.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// MonthlyLimit возвращает действующий месячный потолок обмена в баллах.
func (s *Service) MonthlyLimit(ctx context.Context) (int64, error) {
	value, found, err := s.repo.GetValue(ctx, KeyMonthlyLimit)
	if err != nil {
		return 0, err
	}
	if !found {
		return DefaultMonthlyLimit, nil
	}
	limit, err := parseInt64(value)
	if err != nil {
		// Испорченное значение в базе: работаем на дефолте, не роняем обмен
		log.WithFields(log.Fields{"key": KeyMonthlyLimit, "value": value}).
			Warn("Некорректное значение настройки, используется дефолт")
		return DefaultMonthlyLimit, nil
	}
	return limit, nil
}

// SetMonthlyLimit меняет месячный потолок обмена.
// Действует на текущий месяц немедленно: уже выполненные обмены не трогаются,
// следующие проверяются по новому значению.
func (s *Service) SetMonthlyLimit(ctx context.Context, limit int64) error {
	if limit <= 0 {
		return common.ErrInvalidAmount
	}
	if err := s.repo.SetValue(ctx, KeyMonthlyLimit, fmt.Sprintf("%d", limit)); err != nil {
		return err
	}
	log.WithField("limit", limit).Info("Месячный лимит обмена изменён")
	return nil
}

// WinRate возвращает шанс выигрыша ранга в процентах [0, 100].
func (s *Service) WinRate(ctx context.Context, rank ledger.Rank) (float64, error) {
	rate, found, err := s.repo.GetWinRate(ctx, rank)
	if err != nil {
		return 0, err
	}
	if !found {
		return DefaultWinRate, nil
	}
	return rate, nil
}

// SetWinRate меняет шанс выигрыша ранга.
// На уже сыгранные розыгрыши не влияет: их исход хранится вместе с шансом,
// действовавшим на момент розыгрыша.
func (s *Service) SetWinRate(ctx context.Context, rank ledger.Rank, rate float64) error {
	if !rank.Valid() {
		return fmt.Errorf("неизвестный ранг: %s", rank)
	}
	if rate < 0 || rate > 100 {
		return fmt.Errorf("шанс должен быть от 0 до 100, получено %.2f", rate)
	}
	if err := s.repo.SetWinRate(ctx, rank, rate); err != nil {
		return err
	}
	log.WithFields(log.Fields{"rank": rank, "rate": rate}).Info("Шанс выигрыша ранга изменён")
	return nil
}
