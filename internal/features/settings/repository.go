// Package settings — repository.go хранит изменяемые параметры системы:
// месячный лимит обмена и шансы выигрыша по рангам.
// Отсутствующая строка означает «значение по умолчанию», поэтому чистая база
// работает без какого-либо сидинга.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/kudos-bot/internal/ledger"
)

// Repository — доступ к таблицам settings и raffle_settings.
type Repository interface {
	// GetValue возвращает значение ключа ("" и found=false, если ключа нет).
	GetValue(ctx context.Context, key string) (value string, found bool, err error)
	// SetValue записывает значение ключа (upsert).
	SetValue(ctx context.Context, key, value string) error
	// GetWinRate возвращает шанс выигрыша ранга (found=false, если не задан).
	GetWinRate(ctx context.Context, rank ledger.Rank) (rate float64, found bool, err error)
	// SetWinRate записывает шанс выигрыша ранга (upsert).
	SetWinRate(ctx context.Context, rank ledger.Rank, rate float64) error
}

// PostgresRepository — боевая реализация на pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository создаёт репозиторий настроек.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("ошибка чтения настройки %s: %w", key, err)
	}
	return value, true, nil
}

func (r *PostgresRepository) SetValue(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("ошибка записи настройки %s: %w", key, err)
	}
	return nil
}

func (r *PostgresRepository) GetWinRate(ctx context.Context, rank ledger.Rank) (float64, bool, error) {
	var rate float64
	err := r.db.QueryRow(ctx,
		`SELECT win_rate FROM raffle_settings WHERE rank = $1`, string(rank),
	).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("ошибка чтения шанса ранга %s: %w", rank, err)
	}
	return rate, true, nil
}

func (r *PostgresRepository) SetWinRate(ctx context.Context, rank ledger.Rank, rate float64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO raffle_settings (rank, win_rate, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (rank) DO UPDATE SET win_rate = EXCLUDED.win_rate, updated_at = NOW()
	`, string(rank), rate)
	if err != nil {
		return fmt.Errorf("ошибка записи шанса ранга %s: %w", rank, err)
	}
	return nil
}

// MemoryRepository — настройки в памяти (тесты и локальная разработка).
type MemoryRepository struct {
	mu       sync.RWMutex
	values   map[string]string
	winRates map[ledger.Rank]float64
}

// NewMemoryRepository создаёт пустой репозиторий настроек.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		values:   make(map[string]string),
		winRates: make(map[ledger.Rank]float64),
	}
}

func (r *MemoryRepository) GetValue(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *MemoryRepository) SetValue(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

func (r *MemoryRepository) GetWinRate(ctx context.Context, rank ledger.Rank) (float64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rate, ok := r.winRates[rank]
	return rate, ok, nil
}

func (r *MemoryRepository) SetWinRate(ctx context.Context, rank ledger.Rank, rate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winRates[rank] = rate
	return nil
}

// parseInt64 конвертирует строковое значение настройки в число.
func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
