// Package likes — service.go содержит бизнес-логику отправки лайков.
// Все проверки (кулдаун, дневной лимит, дедупликация получателя) и сама запись
// выполняются в одной транзакции журнала, эксклюзивной для отправителя:
// параллельные лайки одного человека не могут проскочить мимо лимитов.
package likes

import (
	"context"
	"errors"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

// Notifier — побочный канал уведомлений. Публикация не влияет на исход
// операции: лайк уже зафиксирован, уведомление может и не дойти.
type Notifier interface {
	PublishLikeEvent(ctx context.Context, senderName, receiverName, comment string, at time.Time) error
}

// Service управляет лайками.
type Service struct {
	store    ledger.Store
	notifier Notifier
	clock    common.Clock
	cooldown time.Duration
	dailyCap int
	loc      *time.Location
}

// NewService создаёт сервис лайков.
func NewService(store ledger.Store, notifier Notifier, clock common.Clock, cooldown time.Duration, dailyCap int, loc *time.Location) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    clock,
		cooldown: cooldown,
		dailyCap: dailyCap,
		loc:      loc,
	}
}

// SendLike отправляет лайк от senderID к receiverID.
//
// Порядок проверок фиксированный, пользователь всегда видит первую
// непройденную:
//  1. не самому себе
//  2. получатель зарегистрирован
//  3. с прошлого лайка отправителя прошёл кулдаун
//  4. дневной лимит отправителя не исчерпан
//  5. этому получателю сегодня лайк ещё не отправлялся
func (s *Service) SendLike(ctx context.Context, senderID, receiverID int64, comment string) (*ledger.Like, error) {
	if senderID == receiverID {
		return nil, common.ErrSelfLike
	}

	receiver, err := s.store.GetActor(ctx, receiverID)
	if err != nil {
		if errors.Is(err, common.ErrActorNotFound) {
			return nil, common.ErrReceiverNotFound
		}
		return nil, err
	}

	now := s.clock.Now().In(s.loc)
	like := &ledger.Like{
		ReceiverID: receiverID,
		Comment:    comment,
		CreatedAt:  now,
	}

	err = s.store.WithActorTx(ctx, senderID, func(tx ledger.Tx) error {
		last, err := tx.FindLastLikeBySender()
		if err != nil {
			return err
		}
		if last != nil {
			elapsed := now.Sub(last.CreatedAt)
			if elapsed < s.cooldown {
				// Остаток округляется вверх: «осталось 1 минута» даже при 10 секундах
				remaining := int(math.Ceil((s.cooldown - elapsed).Minutes()))
				return &common.CooldownError{RemainingMinutes: remaining}
			}
		}

		dayStart, dayEnd := common.DayBounds(now)
		sentToday, err := tx.CountLikesSentBetween(dayStart, dayEnd)
		if err != nil {
			return err
		}
		if sentToday >= s.dailyCap {
			return common.ErrDailyCapReached
		}

		alreadySent, err := tx.HasLikeToBetween(receiverID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if alreadySent {
			return common.ErrAlreadySentToday
		}

		return tx.InsertLike(like)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"like_id":     like.ID,
		"sender_id":   senderID,
		"receiver_id": receiverID,
	}).Info("Лайк отправлен")

	// Уведомление — после фиксации, best-effort
	if s.notifier != nil {
		sender, err := s.store.GetActor(ctx, senderID)
		senderName := ""
		if err == nil {
			senderName = sender.Name
		}
		if err := s.notifier.PublishLikeEvent(ctx, senderName, receiver.Name, comment, now); err != nil {
			log.WithError(err).Warn("Не удалось отправить уведомление о лайке")
		}
	}

	return like, nil
}

// ReceivedLikes возвращает последние полученные лайки пользователя.
func (s *Service) ReceivedLikes(ctx context.Context, userID int64, limit int) ([]*ledger.Like, error) {
	return s.store.ListReceivedLikes(ctx, userID, limit)
}

// SentLikes возвращает последние отправленные лайки пользователя.
func (s *Service) SentLikes(ctx context.Context, userID int64, limit int) ([]*ledger.Like, error) {
	return s.store.ListSentLikes(ctx, userID, limit)
}

// UnconvertedCount возвращает число лайков, доступных пользователю для обмена.
func (s *Service) UnconvertedCount(ctx context.Context, userID int64) (int, error) {
	return s.store.CountUnconverted(ctx, userID)
}
