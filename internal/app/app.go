// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, журнал, репозитории, сервисы,
// обработчики, фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/bot"
	"serotonyl.ru/kudos-bot/internal/bot/filters"
	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/config"
	"serotonyl.ru/kudos-bot/internal/db/postgres"
	"serotonyl.ru/kudos-bot/internal/features/admin"
	"serotonyl.ru/kudos-bot/internal/features/likes"
	"serotonyl.ru/kudos-bot/internal/features/points"
	"serotonyl.ru/kudos-bot/internal/features/raffle"
	"serotonyl.ru/kudos-bot/internal/features/settings"
	"serotonyl.ru/kudos-bot/internal/features/staff"
	"serotonyl.ru/kudos-bot/internal/jobs"
	"serotonyl.ru/kudos-bot/internal/ledger"
	"serotonyl.ru/kudos-bot/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loc := cfg.Location()
	clock := common.SystemClock{}
	rng := common.SystemRNG{}

	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Журнал и репозитории ===
	store := ledger.NewPostgres(pool, cfg.LedgerLockTimeout)
	staffRepo := staff.NewRepository(pool)
	settingsRepo := settings.NewPostgresRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 4. Побочный канал уведомлений ===
	var notifier notify.Publisher = notify.Nop{}
	if cfg.AnnounceChatID != 0 {
		notifier = notify.NewTelegram(botAPI, cfg.AnnounceChatID, loc)
	}

	// === 5. Сервисы ===
	staffService := staff.NewService(staffRepo)
	settingsService := settings.NewService(settingsRepo)
	likesService := likes.NewService(store, notifier, clock, cfg.LikeCooldown, cfg.LikeDailyLimit, loc)
	pointsService := points.NewService(store, settingsService, clock, loc)
	raffleService := raffle.NewService(store, settingsService, clock, rng, loc)
	adminService := admin.NewService(adminRepo, store, settingsService, staffService, cfg, clock)

	// === 6. Обработчики ===
	likesHandler := likes.NewHandler(likesService, staffService, botAPI)
	pointsHandler := points.NewHandler(pointsService, botAPI)
	raffleHandler := raffle.NewHandler(raffleService, botAPI)
	adminHandler := admin.NewHandler(adminService, staffService, raffleService, botAPI)

	// === 7. Фильтры ===
	chatFilter := filters.NewChatFilter(cfg.StaffChatID, staffService, botAPI)

	// === 8. Собираем бота ===
	b := bot.New(
		botAPI, cfg,
		staffService,
		likesHandler,
		pointsHandler,
		raffleHandler,
		adminHandler,
		chatFilter,
	)

	// === 9. Планировщик задач ===
	scheduler := jobs.NewScheduler(store, notifier, clock, loc)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Members},
		{2, migration002Balances},
		{3, migration003Likes},
		{4, migration004Transactions},
		{5, migration005Raffle},
		{6, migration006Settings},
		{7, migration007Admin},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Members = `
CREATE TABLE IF NOT EXISTS members (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL,
    last_name VARCHAR(255),
    rank VARCHAR(16) NOT NULL DEFAULT 'bronze',
    joined_at TIMESTAMPTZ DEFAULT NOW(),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_members_user_id ON members(user_id);
CREATE INDEX IF NOT EXISTS idx_members_username ON members(username);
`

var migration002Balances = `
CREATE TABLE IF NOT EXISTS balances (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL REFERENCES members(user_id),
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    total_earned BIGINT NOT NULL DEFAULT 0,
    total_spent BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
`

var migration003Likes = `
CREATE TABLE IF NOT EXISTS likes (
    id BIGSERIAL PRIMARY KEY,
    sender_id BIGINT NOT NULL REFERENCES members(user_id),
    receiver_id BIGINT NOT NULL REFERENCES members(user_id),
    comment TEXT NOT NULL DEFAULT '',
    converted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_likes_sender_created ON likes(sender_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_likes_receiver_unconverted ON likes(receiver_id, created_at) WHERE converted = FALSE;
CREATE INDEX IF NOT EXISTS idx_likes_created_at ON likes(created_at);
`

var migration004Transactions = `
CREATE TABLE IF NOT EXISTS point_transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES members(user_id),
    kind VARCHAR(16) NOT NULL CHECK (kind IN ('charge', 'convert', 'use')),
    amount BIGINT NOT NULL CHECK (amount > 0),
    description TEXT NOT NULL DEFAULT '',
    related_user_id BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_point_tx_user_created ON point_transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_point_tx_user_kind_created ON point_transactions(user_id, kind, created_at);
CREATE INDEX IF NOT EXISTS idx_point_tx_created_at ON point_transactions(created_at);
`

var migration005Raffle = `
CREATE TABLE IF NOT EXISTS raffle_history (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES members(user_id),
    prize_tier VARCHAR(1) NOT NULL CHECK (prize_tier IN ('A', 'B', 'C')),
    points_wagered BIGINT NOT NULL,
    won BOOLEAN NOT NULL,
    rank_at_draw VARCHAR(16) NOT NULL,
    win_rate_at_draw DOUBLE PRECISION NOT NULL,
    random_value DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_raffle_history_user_created ON raffle_history(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_raffle_history_created_at ON raffle_history(created_at DESC);
`

var migration006Settings = `
CREATE TABLE IF NOT EXISTS settings (
    key VARCHAR(64) PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS raffle_settings (
    rank VARCHAR(16) PRIMARY KEY,
    win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
`

var migration007Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMPTZ DEFAULT NOW(),
    expires_at TIMESTAMPTZ,
    last_activity TIMESTAMPTZ DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMPTZ DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
`
