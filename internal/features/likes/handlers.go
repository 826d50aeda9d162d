// Package likes — handlers.go обрабатывает команды:
// !лайк (отправка), «спасибо» в ответе, !лайки (полученные), !отправленные.
package likes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/features/staff"
)

const historyPageSize = 10

// Handler обрабатывает команды лайков.
type Handler struct {
	service      *Service
	staffService *staff.Service // Для поиска получателя по @username
	bot          *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд лайков.
func NewHandler(service *Service, staffService *staff.Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, staffService: staffService, bot: bot}
}

// HandleLike обрабатывает команду !лайк @username [комментарий].
func (h *Handler) HandleLike(ctx context.Context, chatID int64, senderID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Формат: !лайк @username комментарий")
		return
	}

	username := strings.TrimPrefix(args[0], "@")
	if username == "" {
		h.sendMessage(chatID, "❌ Укажите @username получателя")
		return
	}
	comment := strings.Join(args[1:], " ")

	receiver, err := h.staffService.ResolveUsername(ctx, username)
	if err != nil {
		h.sendMessage(chatID, "❌ Получатель не найден")
		return
	}

	h.sendLike(ctx, chatID, senderID, receiver.UserID, comment, false)
}

// HandleThankYou обрабатывает «спасибо» в ответе на сообщение.
// Ошибки лимитов не шумят в чате: спасибо остаётся спасибо,
// даже если лайк за него не прошёл.
func (h *Handler) HandleThankYou(ctx context.Context, chatID int64, senderID, receiverID int64) {
	h.sendLike(ctx, chatID, senderID, receiverID, "спасибо", true)
}

func (h *Handler) sendLike(ctx context.Context, chatID, senderID, receiverID int64, comment string, quiet bool) {
	_, err := h.service.SendLike(ctx, senderID, receiverID, comment)
	if err == nil {
		h.sendMessage(chatID, "❤️ Лайк отправлен!")
		return
	}

	if quiet {
		log.WithError(err).Debug("Лайк за спасибо не прошёл")
		return
	}

	var cooldownErr *common.CooldownError
	switch {
	case errors.Is(err, common.ErrSelfLike):
		h.sendMessage(chatID, "❌ Нельзя отправить лайк самому себе")
	case errors.Is(err, common.ErrReceiverNotFound):
		h.sendMessage(chatID, "❌ Получатель не найден")
	case errors.As(err, &cooldownErr):
		h.sendMessage(chatID, fmt.Sprintf("⏳ Подождите ещё %d %s до следующего лайка",
			cooldownErr.RemainingMinutes, common.PluralizeMinutes(cooldownErr.RemainingMinutes)))
	case errors.Is(err, common.ErrDailyCapReached):
		h.sendMessage(chatID, "❌ Лимит лайков на сегодня исчерпан, возвращайтесь завтра")
	case errors.Is(err, common.ErrAlreadySentToday):
		h.sendMessage(chatID, "❌ Этому человеку вы уже отправили лайк сегодня")
	case errors.Is(err, common.ErrContention):
		h.sendMessage(chatID, "⏳ Попробуйте ещё раз через пару секунд")
	default:
		log.WithError(err).Error("Ошибка отправки лайка")
		h.sendMessage(chatID, "❌ Ошибка отправки лайка")
	}
}

// HandleReceived обрабатывает команду !лайки — полученные лайки.
func (h *Handler) HandleReceived(ctx context.Context, chatID int64, userID int64) {
	unconverted, err := h.service.UnconvertedCount(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка подсчёта лайков")
		h.sendMessage(chatID, "❌ Ошибка получения лайков")
		return
	}

	likes, err := h.service.ReceivedLikes(ctx, userID, historyPageSize)
	if err != nil {
		log.WithError(err).Error("Ошибка получения лайков")
		h.sendMessage(chatID, "❌ Ошибка получения лайков")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("❤️ Доступно для обмена: %d %s\n",
		unconverted, common.PluralizeLikes(int64(unconverted))))
	if len(likes) > 0 {
		sb.WriteString("\nПоследние полученные:\n")
		for _, l := range likes {
			line := "• " + l.CreatedAt.Format("02.01 15:04")
			if l.Comment != "" {
				line += " — «" + l.Comment + "»"
			}
			if l.Converted {
				line += " (обменян)"
			}
			sb.WriteString(line + "\n")
		}
	}
	h.sendMessage(chatID, sb.String())
}

// HandleSent обрабатывает команду !отправленные — отправленные лайки.
func (h *Handler) HandleSent(ctx context.Context, chatID int64, userID int64) {
	likes, err := h.service.SentLikes(ctx, userID, historyPageSize)
	if err != nil {
		log.WithError(err).Error("Ошибка получения лайков")
		h.sendMessage(chatID, "❌ Ошибка получения лайков")
		return
	}
	if len(likes) == 0 {
		h.sendMessage(chatID, "Вы ещё не отправили ни одного лайка")
		return
	}

	var sb strings.Builder
	sb.WriteString("📤 Последние отправленные:\n")
	for _, l := range likes {
		line := "• " + l.CreatedAt.Format("02.01 15:04")
		if l.Comment != "" {
			line += " — «" + l.Comment + "»"
		}
		sb.WriteString(line + "\n")
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
