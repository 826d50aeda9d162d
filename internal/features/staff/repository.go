// Package staff — repository.go отвечает за все операции с таблицами members и balances.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package staff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create добавляет нового сотрудника в таблицу members.
// На конфликте по user_id обновляет только имя/username (не трогает ранг).
func (r *Repository) Create(ctx context.Context, m *Member) error {
	query := `
		INSERT INTO members (user_id, username, first_name, last_name, rank, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query,
		m.UserID, m.Username, m.FirstName, m.LastName,
		string(m.Rank), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления сотрудника: %w", err)
	}
	return nil
}

// EnsureBalance создаёт счёт сотрудника с нулевым балансом.
// Повторный вызов безопасен: существующий счёт не трогается.
func (r *Repository) EnsureBalance(ctx context.Context, userID int64) error {
	query := `
		INSERT INTO balances (user_id, balance, total_earned, total_spent)
		VALUES ($1, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("ошибка создания счёта: %w", err)
	}
	return nil
}

// GetByUserID: если не найден — common.ErrActorNotFound
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	query := `
		SELECT id, user_id, username, first_name, last_name, rank,
		       joined_at, created_at, updated_at
		FROM members
		WHERE user_id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

// GetByUsername: если не найден — common.ErrActorNotFound
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Member, error) {
	query := `
		SELECT id, user_id, username, first_name, last_name, rank,
		       joined_at, created_at, updated_at
		FROM members
		WHERE LOWER(username) = LOWER($1)
	`
	return r.scanOne(r.db.QueryRow(ctx, query, username))
}

func (r *Repository) scanOne(row pgx.Row) (*Member, error) {
	var m Member
	var rank string
	err := row.Scan(
		&m.ID, &m.UserID, &m.Username, &m.FirstName, &m.LastName, &rank,
		&m.JoinedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrActorNotFound
		}
		return nil, fmt.Errorf("ошибка чтения сотрудника: %w", err)
	}
	m.Rank = ledger.Rank(rank)
	return &m, nil
}

func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM members WHERE user_id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
	return exists, nil
}

// UpdateInfo обновляет имя и username сотрудника.
func (r *Repository) UpdateInfo(ctx context.Context, userID int64, info UpdateInfo) error {
	query := `
		UPDATE members
		SET username = $2, first_name = $3, last_name = $4, updated_at = NOW()
		WHERE user_id = $1
	`
	_, err := r.db.Exec(ctx, query, userID, info.Username, info.FirstName, info.LastName)
	if err != nil {
		return fmt.Errorf("ошибка обновления сотрудника: %w", err)
	}
	return nil
}

// SetRank меняет ранг сотрудника. Вызывается только из админки.
func (r *Repository) SetRank(ctx context.Context, userID int64, rank ledger.Rank) error {
	query := `UPDATE members SET rank = $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, string(rank))
	if err != nil {
		return fmt.Errorf("ошибка изменения ранга: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrActorNotFound
	}
	return nil
}
