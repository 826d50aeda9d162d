// Package notify — побочный канал уведомлений: зеркалирование событий
// в отдельный анонс-чат. Все публикации best-effort: ошибка канала
// логируется и никогда не влияет на операцию, породившую событие.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
)

// Publisher публикует события системы во внешний канал.
type Publisher interface {
	// PublishLikeEvent зеркалирует отправленный лайк.
	PublishLikeEvent(ctx context.Context, senderName, receiverName, comment string, at time.Time) error
	// PublishPurge зеркалирует итог ретеншн-зачистки.
	PublishPurge(ctx context.Context, likes, transactions int64, cutoff time.Time) error
}

// Telegram публикует события сообщениями в анонс-чат.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	loc    *time.Location
}

// NewTelegram создаёт публикатор в чат chatID.
func NewTelegram(api *tgbotapi.BotAPI, chatID int64, loc *time.Location) *Telegram {
	return &Telegram{api: api, chatID: chatID, loc: loc}
}

func (t *Telegram) PublishLikeEvent(ctx context.Context, senderName, receiverName, comment string, at time.Time) error {
	text := fmt.Sprintf("❤️ %s → %s", senderName, receiverName)
	if comment != "" {
		text += fmt.Sprintf("\n«%s»", comment)
	}
	return t.send(text)
}

func (t *Telegram) PublishPurge(ctx context.Context, likes, transactions int64, cutoff time.Time) error {
	text := fmt.Sprintf("🧹 Зачистка истории: удалено %d %s и %d транзакций старше %s",
		likes, common.PluralizeLikes(likes), transactions, common.FormatDateTime(cutoff, t.loc))
	return t.send(text)
}

func (t *Telegram) send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("ошибка публикации в анонс-чат: %w", err)
	}
	return nil
}

// Nop — публикатор-заглушка: события только логируются.
// Используется, когда анонс-чат не настроен, и в тестах.
type Nop struct{}

func (Nop) PublishLikeEvent(ctx context.Context, senderName, receiverName, comment string, at time.Time) error {
	log.WithFields(log.Fields{"sender": senderName, "receiver": receiverName}).Debug("Лайк (анонс-чат не настроен)")
	return nil
}

func (Nop) PublishPurge(ctx context.Context, likes, transactions int64, cutoff time.Time) error {
	log.WithFields(log.Fields{"likes": likes, "transactions": transactions}).Debug("Зачистка (анонс-чат не настроен)")
	return nil
}
