// Package admin — handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает в личных сообщениях.
// Поток: /login → ввод пароля → текстовые команды панели.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/features/raffle"
	"serotonyl.ru/kudos-bot/internal/features/staff"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

const helpText = `⚙️ Команды админ-панели:
лимит <баллы> — месячный лимит обмена
шанс <ранг> <процент> — шанс выигрыша ранга
ранг @username <bronze|silver|gold|platinum> — ранг сотрудника
начислить @username <баллы> [описание] — начислить баллы
розыгрыши — последние розыгрыши всех сотрудников
выход — завершить сессию`

// Handler обрабатывает админ-команды.
type Handler struct {
	service       *Service
	staffService  *staff.Service
	raffleService *raffle.Service
	bot           *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, staffService *staff.Service, raffleService *raffle.Service, bot *tgbotapi.BotAPI) *Handler {
	return &Handler{
		service:       service,
		staffService:  staffService,
		raffleService: raffleService,
		bot:           bot,
	}
}

// HandleAdminMessage обрабатывает любое сообщение администратора в DM.
// Возвращает true, если сообщение было админ-взаимодействием.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID int64, userID int64, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}

	text = strings.TrimSpace(text)

	// Ждём пароль следующим сообщением после /login
	state := h.service.GetState(userID)
	if state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	// /login [пароль] — вход в панель
	if strings.HasPrefix(text, "/login") {
		password := strings.TrimSpace(strings.TrimPrefix(text, "/login"))
		if password == "" {
			h.sendMessage(chatID, "🔐 Введите пароль для доступа к админ-панели:")
			h.service.SetState(userID, StateAwaitingPassword)
		} else {
			h.handlePasswordInput(ctx, chatID, userID, password)
		}
		return true
	}

	if !h.service.HasActiveSession(ctx, userID) {
		return false
	}

	// Дальше — команды авторизованной панели
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "лимит":
		h.handleSetLimit(ctx, chatID, userID, parts[1:])
	case "шанс":
		h.handleSetWinRate(ctx, chatID, userID, parts[1:])
	case "ранг":
		h.handleSetRank(ctx, chatID, userID, parts[1:])
	case "начислить":
		h.handleCharge(ctx, chatID, userID, parts[1:])
	case "розыгрыши":
		h.handleRecentRaffles(ctx, chatID)
	case "выход":
		if err := h.service.Logout(ctx, userID); err != nil {
			log.WithError(err).Error("Ошибка выхода из панели")
		}
		h.sendMessage(chatID, "👋 Сессия завершена")
	case "помощь", "панель", "админ":
		h.sendMessage(chatID, helpText)
	default:
		return false
	}
	return true
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID int64, userID int64, password string) {
	h.service.ClearState(userID)

	if err := h.service.VerifyPassword(ctx, userID, password); err != nil {
		switch {
		case errors.Is(err, common.ErrTooManyAttempts):
			h.sendMessage(chatID, "❌ Слишком много попыток, подождите 1 час")
		case errors.Is(err, common.ErrWrongPassword):
			h.sendMessage(chatID, "❌ Неверный пароль")
		default:
			log.WithError(err).Error("Ошибка проверки пароля")
			h.sendMessage(chatID, "❌ Ошибка аутентификации")
		}
		return
	}

	h.sendMessage(chatID, "✅ Аутентификация успешна!\n\n"+helpText)
}

// handleSetLimit — команда «лимит 3000».
func (h *Handler) handleSetLimit(ctx context.Context, chatID int64, adminID int64, args []string) {
	if len(args) != 1 {
		h.sendMessage(chatID, "❌ Формат: лимит <баллы>")
		return
	}
	limit, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || limit <= 0 {
		h.sendMessage(chatID, "❌ Лимит должен быть положительным числом")
		return
	}

	if err := h.service.SetMonthlyLimit(ctx, adminID, limit); err != nil {
		h.replyError(chatID, err, "Ошибка изменения лимита")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Месячный лимит обмена: %s", common.FormatPoints(limit)))
}

// handleSetWinRate — команда «шанс gold 15».
func (h *Handler) handleSetWinRate(ctx context.Context, chatID int64, adminID int64, args []string) {
	if len(args) != 2 {
		h.sendMessage(chatID, "❌ Формат: шанс <ранг> <процент>")
		return
	}
	rank := ledger.Rank(strings.ToLower(args[0]))
	if !rank.Valid() {
		h.sendMessage(chatID, "❌ Ранг: bronze, silver, gold или platinum")
		return
	}
	rate, err := strconv.ParseFloat(args[1], 64)
	if err != nil || rate < 0 || rate > 100 {
		h.sendMessage(chatID, "❌ Процент должен быть числом от 0 до 100")
		return
	}

	if err := h.service.SetWinRate(ctx, adminID, rank, rate); err != nil {
		h.replyError(chatID, err, "Ошибка изменения шанса")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Шанс выигрыша %s: %.2f%%", rank, rate))
}

// handleSetRank — команда «ранг @user gold».
func (h *Handler) handleSetRank(ctx context.Context, chatID int64, adminID int64, args []string) {
	if len(args) != 2 {
		h.sendMessage(chatID, "❌ Формат: ранг @username <bronze|silver|gold|platinum>")
		return
	}
	member, err := h.staffService.ResolveUsername(ctx, args[0])
	if err != nil {
		h.sendMessage(chatID, "❌ Сотрудник не найден")
		return
	}
	rank := ledger.Rank(strings.ToLower(args[1]))
	if !rank.Valid() {
		h.sendMessage(chatID, "❌ Ранг: bronze, silver, gold или platinum")
		return
	}

	if err := h.service.SetRank(ctx, adminID, member.UserID, rank); err != nil {
		h.replyError(chatID, err, "Ошибка изменения ранга")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Ранг %s: %s", member.DisplayName(), rank))
}

// handleCharge — команда «начислить @user 500 [описание]».
func (h *Handler) handleCharge(ctx context.Context, chatID int64, adminID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Формат: начислить @username <баллы> [описание]")
		return
	}
	member, err := h.staffService.ResolveUsername(ctx, args[0])
	if err != nil {
		h.sendMessage(chatID, "❌ Сотрудник не найден")
		return
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		h.sendMessage(chatID, "❌ Сумма должна быть положительным числом")
		return
	}
	description := strings.Join(args[2:], " ")

	newBalance, err := h.service.ChargePoints(ctx, adminID, member.UserID, amount, description)
	if err != nil {
		h.replyError(chatID, err, "Ошибка начисления")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Начислено %s для %s\nНовый баланс: %s",
		common.FormatPoints(amount), member.DisplayName(), common.FormatPoints(newBalance)))
}

// handleRecentRaffles — команда «розыгрыши»: последние розыгрыши всех сотрудников.
func (h *Handler) handleRecentRaffles(ctx context.Context, chatID int64) {
	records, err := h.raffleService.RecentAll(ctx, 20)
	if err != nil {
		log.WithError(err).Error("Ошибка получения розыгрышей")
		h.sendMessage(chatID, "❌ Ошибка получения розыгрышей")
		return
	}
	if len(records) == 0 {
		h.sendMessage(chatID, "Розыгрышей пока не было")
		return
	}

	var sb strings.Builder
	sb.WriteString("🎁 Последние розыгрыши:\n")
	for _, rec := range records {
		outcome := "проигрыш"
		if rec.Won {
			outcome = "выигрыш"
		}
		sb.WriteString(fmt.Sprintf("• %s user=%d кат.%s (%s, шанс %.1f%%, жребий %.1f) — %s\n",
			rec.CreatedAt.Format("02.01 15:04"), rec.ActorID, rec.PrizeTier,
			rec.RankAtDraw, rec.WinRateAtDraw, rec.RandomValue, outcome))
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) replyError(chatID int64, err error, logMsg string) {
	switch {
	case errors.Is(err, common.ErrSessionExpired):
		h.sendMessage(chatID, "❌ Сессия истекла, выполните /login")
	case errors.Is(err, common.ErrActorNotFound):
		h.sendMessage(chatID, "❌ Сотрудник не найден")
	case errors.Is(err, common.ErrInvalidAmount):
		h.sendMessage(chatID, "❌ Сумма должна быть положительной")
	default:
		log.WithError(err).Error(logMsg)
		h.sendMessage(chatID, "❌ "+logMsg)
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
