// Package points — handlers.go обрабатывает команды:
// !баланс, !обмен (лайки → баллы), !история (аудит).
package points

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

const historyPageSize = 10

// Handler обрабатывает команды баллов.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд баллов.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleBalance обрабатывает команду !баланс.
func (h *Handler) HandleBalance(ctx context.Context, chatID int64, userID int64) {
	actor, err := h.service.Balance(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}

	status, err := h.service.MonthStatus(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения статуса месяца")
		h.sendMessage(chatID, fmt.Sprintf("💰 Баланс: %s", common.FormatPoints(actor.Balance)))
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"💰 Баланс: %s\n🏅 Ранг: %s\n📅 Лимит обмена в этом месяце: осталось %s из %s",
		common.FormatPoints(actor.Balance), actor.Rank,
		common.FormatPoints(status.RemainingLimit), common.FormatPoints(status.MonthlyLimit)))
}

// HandleConvert обрабатывает команду !обмен [количество].
// Без аргумента обмениваются все доступные лайки.
func (h *Handler) HandleConvert(ctx context.Context, chatID int64, userID int64, args []string) {
	requested := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			h.sendMessage(chatID, "❌ Количество должно быть положительным числом")
			return
		}
		requested = n
	}

	result, err := h.service.Convert(ctx, userID, requested)
	if err != nil {
		var limitErr *common.MonthlyLimitError
		switch {
		case errors.Is(err, common.ErrNothingToConvert):
			h.sendMessage(chatID, "❌ Нет лайков для обмена")
		case errors.As(err, &limitErr):
			h.sendMessage(chatID, fmt.Sprintf(
				"❌ Обмен превысил бы месячный лимит\n"+
					"Лимит: %s, обменяно: %s\n"+
					"Доступно ещё: %s (максимум %d %s)",
				common.FormatPoints(limitErr.MonthlyLimit),
				common.FormatPoints(limitErr.AlreadyConverted),
				common.FormatPoints(limitErr.RemainingLimit),
				limitErr.MaxLikesCanConvert,
				common.PluralizeLikes(limitErr.MaxLikesCanConvert)))
		case errors.Is(err, common.ErrContention):
			h.sendMessage(chatID, "⏳ Попробуйте ещё раз через пару секунд")
		default:
			log.WithError(err).Error("Ошибка обмена лайков")
			h.sendMessage(chatID, "❌ Ошибка обмена")
		}
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Обменяно %d %s на %s\nТвой баланс: %s",
		result.LikesConverted, common.PluralizeLikes(result.LikesConverted),
		common.FormatPoints(result.PointsCredited),
		common.FormatPoints(result.NewBalance)))
}

// HandleHistory обрабатывает команду !история — показывает аудит баллов.
func (h *Handler) HandleHistory(ctx context.Context, chatID int64, userID int64) {
	history, err := h.service.History(ctx, userID, historyPageSize)
	if err != nil {
		log.WithError(err).Error("Ошибка получения истории")
		h.sendMessage(chatID, "❌ Ошибка получения истории")
		return
	}
	if len(history) == 0 {
		h.sendMessage(chatID, "История пока пуста")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 Последние операции:\n")
	for _, rec := range history {
		sign := "+"
		if rec.Kind == ledger.TxKindUse {
			sign = "-"
		}
		sb.WriteString(fmt.Sprintf("• %s %s%d — %s\n",
			rec.CreatedAt.Format("02.01 15:04"), sign, rec.Amount, rec.Description))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
