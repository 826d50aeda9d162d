// Package ledger — postgres.go: боевая реализация журнала на pgx.
// Сериализация операций одного пользователя — блокировка его строки в balances
// (SELECT ... FOR UPDATE) первым же запросом транзакции. Ожидание блокировки
// ограничено lock_timeout: зависшая операция возвращает ErrContention,
// а не висит вечно.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/kudos-bot/internal/common"
)

// Postgres — журнал поверх пула pgx.
type Postgres struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgres создаёт журнал. lockTimeout — сколько ждать блокировку счёта.
func NewPostgres(db *pgxpool.Pool, lockTimeout time.Duration) *Postgres {
	return &Postgres{db: db, lockTimeout: lockTimeout}
}

// WithActorTx выполняет fn в транзакции, удерживающей строку баланса actorID.
func (p *Postgres) WithActorTx(ctx context.Context, actorID int64, fn func(Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так (после Commit — no-op)
	defer tx.Rollback(ctx)

	// Ограничиваем ожидание блокировки. SET не принимает параметры,
	// поэтому значение подставляется форматированием — это наше число, не ввод пользователя.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", p.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("ошибка установки lock_timeout: %w", err)
	}

	// Блокируем строку баланса — с этого момента конкурентные операции
	// того же пользователя стоят в очереди.
	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE`, actorID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrActorNotFound
		}
		if isRetryableLockErr(err) {
			return common.ErrContention
		}
		return fmt.Errorf("ошибка блокировки счёта: %w", err)
	}

	if err := fn(&pgTx{ctx: ctx, tx: tx, actorID: actorID}); err != nil {
		if isRetryableLockErr(err) {
			return common.ErrContention
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// isRetryableLockErr распознаёт таймаут блокировки (55P03) и дедлок (40P01):
// обе ситуации временные, операцию можно повторить целиком.
func isRetryableLockErr(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "55P03" || pgErr.Code == "40P01"
}

// pgTx — примитивы журнала внутри одной открытой транзакции.
// ctx — контекст вызова WithActorTx: отмена снаружи прерывает запросы внутри.
type pgTx struct {
	ctx     context.Context
	tx      pgx.Tx
	actorID int64
}

func (t *pgTx) GetBalance() (int64, error) {
	ctx := t.ctx
	var balance int64
	err := t.tx.QueryRow(ctx,
		`SELECT balance FROM balances WHERE user_id = $1`, t.actorID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

func (t *pgTx) AdjustBalance(delta int64) error {
	ctx := t.ctx
	// Условие balance + delta >= 0 — страховка инварианта на уровне SQL:
	// строка уже под блокировкой, но минусовой баланс невозможен даже при баге выше.
	tag, err := t.tx.Exec(ctx, `
		UPDATE balances
		SET balance = balance + $2,
		    total_earned = total_earned + CASE WHEN $2 > 0 THEN $2 ELSE 0 END,
		    total_spent = total_spent + CASE WHEN $2 < 0 THEN -$2 ELSE 0 END,
		    updated_at = NOW()
		WHERE user_id = $1 AND balance + $2 >= 0
	`, t.actorID, delta)
	if err != nil {
		return fmt.Errorf("ошибка изменения баланса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrInsufficientBalance
	}
	return nil
}

func (t *pgTx) AppendTransaction(rec *PointTransaction) error {
	ctx := t.ctx
	err := t.tx.QueryRow(ctx, `
		INSERT INTO point_transactions (user_id, kind, amount, description, related_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.actorID, string(rec.Kind), rec.Amount, rec.Description, rec.RelatedActorID, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	rec.ActorID = t.actorID
	return nil
}

func (t *pgTx) InsertLike(like *Like) error {
	ctx := t.ctx
	err := t.tx.QueryRow(ctx, `
		INSERT INTO likes (sender_id, receiver_id, comment, converted, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id
	`, t.actorID, like.ReceiverID, like.Comment, like.CreatedAt,
	).Scan(&like.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания лайка: %w", err)
	}
	like.SenderID = t.actorID
	like.Converted = false
	return nil
}

func (t *pgTx) FindLastLikeBySender() (*Like, error) {
	ctx := t.ctx
	var l Like
	err := t.tx.QueryRow(ctx, `
		SELECT id, sender_id, receiver_id, comment, converted, created_at
		FROM likes
		WHERE sender_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, t.actorID).Scan(&l.ID, &l.SenderID, &l.ReceiverID, &l.Comment, &l.Converted, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка поиска последнего лайка: %w", err)
	}
	return &l, nil
}

func (t *pgTx) CountLikesSentBetween(from, to time.Time) (int, error) {
	ctx := t.ctx
	var count int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM likes
		WHERE sender_id = $1 AND created_at >= $2 AND created_at < $3
	`, t.actorID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта лайков за день: %w", err)
	}
	return count, nil
}

func (t *pgTx) HasLikeToBetween(receiverID int64, from, to time.Time) (bool, error) {
	ctx := t.ctx
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM likes
			WHERE sender_id = $1 AND receiver_id = $2 AND created_at >= $3 AND created_at < $4
		)
	`, t.actorID, receiverID, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки дневной дедупликации: %w", err)
	}
	return exists, nil
}

func (t *pgTx) FindUnconvertedLikes() ([]*Like, error) {
	ctx := t.ctx
	// Старые лайки обмениваются первыми — порядок обмена честный, не оптимизационный.
	rows, err := t.tx.Query(ctx, `
		SELECT id, sender_id, receiver_id, comment, converted, created_at
		FROM likes
		WHERE receiver_id = $1 AND converted = FALSE
		ORDER BY created_at ASC, id ASC
	`, t.actorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки необменянных лайков: %w", err)
	}
	defer rows.Close()

	var likes []*Like
	for rows.Next() {
		var l Like
		if err := rows.Scan(&l.ID, &l.SenderID, &l.ReceiverID, &l.Comment, &l.Converted, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования лайка: %w", err)
		}
		likes = append(likes, &l)
	}
	return likes, rows.Err()
}

func (t *pgTx) MarkLikesConverted(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx := t.ctx
	tag, err := t.tx.Exec(ctx, `
		UPDATE likes
		SET converted = TRUE
		WHERE id = ANY($1) AND receiver_id = $2 AND converted = FALSE
	`, ids, t.actorID)
	if err != nil {
		return fmt.Errorf("ошибка пометки лайков обменянными: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		// Какой-то лайк не наш или уже обменян — баг логики, откатываем всё.
		return fmt.Errorf("обменяно %d лайков из %d: нарушение инварианта", tag.RowsAffected(), len(ids))
	}
	return nil
}

func (t *pgTx) SumConvertedBetween(from, to time.Time) (int64, error) {
	ctx := t.ctx
	var sum int64
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM point_transactions
		WHERE user_id = $1 AND kind = 'convert' AND created_at >= $2 AND created_at < $3
	`, t.actorID, from, to).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта обменянного за месяц: %w", err)
	}
	return sum, nil
}

func (t *pgTx) InsertRaffleRecord(rec *RaffleRecord) error {
	ctx := t.ctx
	err := t.tx.QueryRow(ctx, `
		INSERT INTO raffle_history (user_id, prize_tier, points_wagered, won, rank_at_draw, win_rate_at_draw, random_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, t.actorID, rec.PrizeTier, rec.PointsWagered, rec.Won,
		string(rec.RankAtDraw), rec.WinRateAtDraw, rec.RandomValue, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("ошибка записи розыгрыша: %w", err)
	}
	rec.ActorID = t.actorID
	return nil
}

// --- Read-only запросы вне транзакций ---

func (p *Postgres) GetActor(ctx context.Context, actorID int64) (*Actor, error) {
	var a Actor
	err := p.db.QueryRow(ctx, `
		SELECT m.user_id, COALESCE(NULLIF(m.username, ''), m.first_name), m.rank, b.balance
		FROM members m
		JOIN balances b ON b.user_id = m.user_id
		WHERE m.user_id = $1
	`, actorID).Scan(&a.ID, &a.Name, &a.Rank, &a.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrActorNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя: %w", err)
	}
	return &a, nil
}

func (p *Postgres) ListReceivedLikes(ctx context.Context, actorID int64, limit int) ([]*Like, error) {
	return p.queryLikes(ctx, `
		SELECT id, sender_id, receiver_id, comment, converted, created_at
		FROM likes
		WHERE receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, actorID, limit)
}

func (p *Postgres) ListSentLikes(ctx context.Context, actorID int64, limit int) ([]*Like, error) {
	return p.queryLikes(ctx, `
		SELECT id, sender_id, receiver_id, comment, converted, created_at
		FROM likes
		WHERE sender_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, actorID, limit)
}

func (p *Postgres) queryLikes(ctx context.Context, query string, args ...any) ([]*Like, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки лайков: %w", err)
	}
	defer rows.Close()

	var likes []*Like
	for rows.Next() {
		var l Like
		if err := rows.Scan(&l.ID, &l.SenderID, &l.ReceiverID, &l.Comment, &l.Converted, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования лайка: %w", err)
		}
		likes = append(likes, &l)
	}
	return likes, rows.Err()
}

func (p *Postgres) CountUnconverted(ctx context.Context, actorID int64) (int, error) {
	var count int
	err := p.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM likes WHERE receiver_id = $1 AND converted = FALSE
	`, actorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта необменянных лайков: %w", err)
	}
	return count, nil
}

func (p *Postgres) ListTransactions(ctx context.Context, actorID int64, limit int) ([]*PointTransaction, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, user_id, kind, amount, description, related_user_id, created_at
		FROM point_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки транзакций: %w", err)
	}
	defer rows.Close()

	var txs []*PointTransaction
	for rows.Next() {
		var t PointTransaction
		var kind string
		if err := rows.Scan(&t.ID, &t.ActorID, &kind, &t.Amount, &t.Description, &t.RelatedActorID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		t.Kind = TxKind(kind)
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

func (p *Postgres) ListRaffleHistory(ctx context.Context, actorID int64, limit int) ([]*RaffleRecord, error) {
	return p.queryRaffles(ctx, `
		SELECT id, user_id, prize_tier, points_wagered, won, rank_at_draw, win_rate_at_draw, random_value, created_at
		FROM raffle_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, actorID, limit)
}

func (p *Postgres) ListRecentRaffles(ctx context.Context, limit int) ([]*RaffleRecord, error) {
	return p.queryRaffles(ctx, `
		SELECT id, user_id, prize_tier, points_wagered, won, rank_at_draw, win_rate_at_draw, random_value, created_at
		FROM raffle_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
}

func (p *Postgres) queryRaffles(ctx context.Context, query string, args ...any) ([]*RaffleRecord, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки розыгрышей: %w", err)
	}
	defer rows.Close()

	var recs []*RaffleRecord
	for rows.Next() {
		var r RaffleRecord
		var rank string
		if err := rows.Scan(&r.ID, &r.ActorID, &r.PrizeTier, &r.PointsWagered, &r.Won,
			&rank, &r.WinRateAtDraw, &r.RandomValue, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования розыгрыша: %w", err)
		}
		r.RankAtDraw = Rank(rank)
		recs = append(recs, &r)
	}
	return recs, rows.Err()
}

// PurgeOlderThan удаляет записи старше cutoff. Вызывается только ретеншн-джобой.
func (p *Postgres) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	likesTag, err := tx.Exec(ctx, `DELETE FROM likes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка удаления старых лайков: %w", err)
	}
	txTag, err := tx.Exec(ctx, `DELETE FROM point_transactions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка удаления старых транзакций: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return likesTag.RowsAffected(), txTag.RowsAffected(), nil
}
