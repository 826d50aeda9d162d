// Package raffle — handlers.go обрабатывает команды:
// !розыгрыш (участие), !розыгрыши (своя история).
package raffle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
)

const historyPageSize = 10

// Handler обрабатывает команды розыгрышей.
type Handler struct {
	service *Service
	bot     *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик розыгрышей.
func NewHandler(service *Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleDraw обрабатывает команду !розыгрыш A|B|C.
func (h *Handler) HandleDraw(ctx context.Context, chatID int64, userID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, fmt.Sprintf(
			"🎁 Формат: !розыгрыш A|B|C\nA — %s, B — %s, C — %s",
			common.FormatPoints(TierA.Cost()), common.FormatPoints(TierB.Cost()), common.FormatPoints(TierC.Cost())))
		return
	}

	tier, err := ParseTier(args[0])
	if err != nil {
		h.sendMessage(chatID, "❌ Выберите категорию приза: A, B или C")
		return
	}

	result, err := h.service.Draw(ctx, userID, tier)
	if err != nil {
		var pointsErr *common.InsufficientPointsError
		switch {
		case errors.As(err, &pointsErr):
			h.sendMessage(chatID, fmt.Sprintf("❌ Недостаточно баллов: нужно %s, на счету %s",
				common.FormatPoints(pointsErr.Required), common.FormatPoints(pointsErr.Current)))
		case errors.Is(err, common.ErrContention):
			h.sendMessage(chatID, "⏳ Попробуйте ещё раз через пару секунд")
		default:
			log.WithError(err).Error("Ошибка розыгрыша")
			h.sendMessage(chatID, "❌ Ошибка розыгрыша")
		}
		return
	}

	if result.Record.Won {
		h.sendMessage(chatID, fmt.Sprintf(
			"🎉 Поздравляем, вы выиграли приз категории %s!\nСписано %s, баланс: %s",
			tier, common.FormatPoints(tier.Cost()), common.FormatPoints(result.NewBalance)))
	} else {
		h.sendMessage(chatID, fmt.Sprintf(
			"😔 Увы, приз категории %s не выигран\nСписано %s, баланс: %s",
			tier, common.FormatPoints(tier.Cost()), common.FormatPoints(result.NewBalance)))
	}
}

// HandleHistory обрабатывает команду !розыгрыши — своя история участия.
func (h *Handler) HandleHistory(ctx context.Context, chatID int64, userID int64) {
	history, err := h.service.History(ctx, userID, historyPageSize)
	if err != nil {
		log.WithError(err).Error("Ошибка получения истории розыгрышей")
		h.sendMessage(chatID, "❌ Ошибка получения истории")
		return
	}
	if len(history) == 0 {
		h.sendMessage(chatID, "Вы ещё не участвовали в розыгрышах")
		return
	}

	var sb strings.Builder
	sb.WriteString("🎁 Последние розыгрыши:\n")
	for _, rec := range history {
		outcome := "проигрыш"
		if rec.Won {
			outcome = "выигрыш 🎉"
		}
		sb.WriteString(fmt.Sprintf("• %s категория %s, %s — %s\n",
			rec.CreatedAt.Format("02.01 15:04"), rec.PrizeTier,
			common.FormatPoints(rec.PointsWagered), outcome))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
