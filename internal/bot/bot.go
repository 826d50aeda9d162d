// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go принимает апдейты Telegram, фильтрует их и маршрутизирует команды
// к обработчикам фич.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/bot/filters"
	"serotonyl.ru/kudos-bot/internal/bot/middleware"
	"serotonyl.ru/kudos-bot/internal/config"
	"serotonyl.ru/kudos-bot/internal/features/admin"
	"serotonyl.ru/kudos-bot/internal/features/likes"
	"serotonyl.ru/kudos-bot/internal/features/points"
	"serotonyl.ru/kudos-bot/internal/features/raffle"
	"serotonyl.ru/kudos-bot/internal/features/staff"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	staffService *staff.Service

	likesHandler  *likes.Handler
	pointsHandler *points.Handler
	raffleHandler *raffle.Handler
	adminHandler  *admin.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	staffService *staff.Service,
	likesHandler *likes.Handler,
	pointsHandler *points.Handler,
	raffleHandler *raffle.Handler,
	adminHandler *admin.Handler,
	chatFilter *filters.ChatFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:           api,
		cfg:           cfg,
		chatFilter:    chatFilter,
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		staffService:  staffService,
		likesHandler:  likesHandler,
		pointsHandler: pointsHandler,
		raffleHandler: raffleHandler,
		adminHandler:  adminHandler,
		parser:        NewCommandParser(),
		inflight:      make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	// Обрабатываем новых сотрудников (событие вступления)
	if update.Message != nil && update.Message.NewChatMembers != nil {
		if update.Message.Chat != nil && update.Message.Chat.ID == b.cfg.StaffChatID {
			b.handleNewMembers(ctx, update.Message.NewChatMembers)
		}
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		return
	}

	message := update.Message

	middleware.LogMessage(message)

	// Проверяем доступ (STAFF_CHAT_ID или DM сотрудника)
	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}

	// Rate limiting
	if message.From != nil && !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	// EnsureMember — ошибки нельзя игнорировать, иначе потом будет "оно не работает"
	if err := b.staffService.EnsureMember(ctx, userID,
		message.From.UserName, message.From.FirstName, message.From.LastName,
	); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureMember failed")
	}

	// В DM проверяем админ-панель
	if message.Chat.IsPrivate() {
		if b.adminHandler.HandleAdminMessage(ctx, chatID, userID, message.Text) {
			return
		}
	}

	// «Спасибо» в ответе на сообщение = лайк автору
	if b.cfg.FeatureLikesEnabled && message.ReplyToMessage != nil && message.ReplyToMessage.From != nil {
		if likes.IsThankYou(message.Text) {
			b.likesHandler.HandleThankYou(ctx, chatID, userID, message.ReplyToMessage.From.ID)
			return
		}
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if isCommand {
		b.routeCommand(ctx, chatID, userID, cmd, args)
	}
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	switch cmd {
	case "start", "help", "помощь":
		b.sendMessage(chatID, "Привет! Команды: !лайк @username, !лайки, !отправленные, "+
			"!обмен [N], !баланс, !история, !розыгрыш A|B|C, !розыгрыши. Админ: /login <пароль>")

	case "login":
		if chatID == userID {
			b.adminHandler.HandleAdminMessage(ctx, chatID, userID, "/login "+strings.Join(args, " "))
		}

	case "лайк":
		if b.cfg.FeatureLikesEnabled {
			b.likesHandler.HandleLike(ctx, chatID, userID, args)
		}

	case "лайки":
		if b.cfg.FeatureLikesEnabled {
			b.likesHandler.HandleReceived(ctx, chatID, userID)
		}

	case "отправленные":
		if b.cfg.FeatureLikesEnabled {
			b.likesHandler.HandleSent(ctx, chatID, userID)
		}

	case "обмен":
		b.pointsHandler.HandleConvert(ctx, chatID, userID, args)

	case "баланс":
		b.pointsHandler.HandleBalance(ctx, chatID, userID)

	case "история":
		b.pointsHandler.HandleHistory(ctx, chatID, userID)

	case "розыгрыш":
		if b.cfg.FeatureRaffleEnabled {
			b.raffleHandler.HandleDraw(ctx, chatID, userID, args)
		} else {
			b.sendMessage(chatID, "🎁 Розыгрыши временно отключены")
		}

	case "розыгрыши":
		if b.cfg.FeatureRaffleEnabled {
			b.raffleHandler.HandleHistory(ctx, chatID, userID)
		}
	}
}

// handleNewMembers обрабатывает вступление новых сотрудников.
func (b *Bot) handleNewMembers(ctx context.Context, newMembers []tgbotapi.User) {
	for _, user := range newMembers {
		if user.IsBot {
			continue
		}
		if err := b.staffService.HandleNewMember(ctx, user.ID, user.UserName, user.FirstName, user.LastName); err != nil {
			log.WithError(err).WithField("user_id", user.ID).Warn("HandleNewMember failed")
		}
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит русские команды с префиксами !, . и /
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	text = strings.TrimSpace(text)
	parts := strings.Fields(text)

	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
