// Package ledger — memory.go: реализация журнала в памяти.
// Используется в тестах и при локальной разработке без Postgres.
// Семантика повторяет postgres.go: одна эксклюзивная транзакция на пользователя,
// все записи либо применяются целиком, либо не видны вообще.
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/kudos-bot/internal/common"
)

// Memory — журнал в памяти.
type Memory struct {
	mu          sync.Mutex
	lockTimeout time.Duration

	actors  map[int64]*Actor
	likes   map[int64]*Like
	txs     []*PointTransaction
	raffles []*RaffleRecord

	nextLikeID   int64
	nextTxID     int64
	nextRaffleID int64

	// Токен эксклюзивного доступа к счёту: канал ёмкости 1 на пользователя.
	locks map[int64]chan struct{}
}

// NewMemory создаёт пустой журнал. lockTimeout — сколько ждать занятый счёт.
func NewMemory(lockTimeout time.Duration) *Memory {
	return &Memory{
		lockTimeout: lockTimeout,
		actors:      make(map[int64]*Actor),
		likes:       make(map[int64]*Like),
		locks:       make(map[int64]chan struct{}),
	}
}

// AddActor регистрирует пользователя со стартовым балансом.
// Повторный вызов обновляет имя и ранг, баланс не трогает.
func (m *Memory) AddActor(id int64, name string, rank Rank, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.actors[id]; ok {
		a.Name = name
		a.Rank = rank
		return
	}
	m.actors[id] = &Actor{ID: id, Name: name, Rank: rank, Balance: balance}
}

// SetRank меняет ранг пользователя.
func (m *Memory) SetRank(id int64, rank Rank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[id]
	if !ok {
		return common.ErrActorNotFound
	}
	a.Rank = rank
	return nil
}

func (m *Memory) actorLock(actorID int64) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[actorID]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[actorID] = ch
	}
	return ch
}

// WithActorTx выполняет fn под эксклюзивной блокировкой счёта actorID.
func (m *Memory) WithActorTx(ctx context.Context, actorID int64, fn func(Tx) error) error {
	m.mu.Lock()
	_, exists := m.actors[actorID]
	m.mu.Unlock()
	if !exists {
		return common.ErrActorNotFound
	}

	lock := m.actorLock(actorID)
	timer := time.NewTimer(m.lockTimeout)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
		defer func() { <-lock }()
	case <-timer.C:
		return common.ErrContention
	case <-ctx.Done():
		return ctx.Err()
	}

	tx := &memTx{store: m, actorID: actorID}
	if err := fn(tx); err != nil {
		return err
	}
	// Отмена до фиксации откатывает всё. У pgx это делает Commit(ctx),
	// здесь проверяем сами: staged-записи просто выбрасываются.
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx накапливает записи и применяет их одним махом в commit.
// До commit staged-записи видны только самой транзакции.
type memTx struct {
	store   *Memory
	actorID int64

	balanceDelta int64
	newLikes     []*Like
	newTxs       []*PointTransaction
	newRaffles   []*RaffleRecord
	convertedIDs []int64
}

func (t *memTx) commit() {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	m.actors[t.actorID].Balance += t.balanceDelta
	for _, l := range t.newLikes {
		m.likes[l.ID] = l
	}
	m.txs = append(m.txs, t.newTxs...)
	m.raffles = append(m.raffles, t.newRaffles...)
	for _, id := range t.convertedIDs {
		// Ретеншн-зачистка берёт только мьютекс хранилища, не блокировку счёта,
		// и могла удалить лайк между пометкой и фиксацией.
		if l, ok := m.likes[id]; ok {
			l.Converted = true
		}
	}
}

func (t *memTx) GetBalance() (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.actors[t.actorID].Balance + t.balanceDelta, nil
}

func (t *memTx) AdjustBalance(delta int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.actors[t.actorID].Balance+t.balanceDelta+delta < 0 {
		return common.ErrInsufficientBalance
	}
	t.balanceDelta += delta
	return nil
}

func (t *memTx) AppendTransaction(rec *PointTransaction) error {
	t.store.mu.Lock()
	t.store.nextTxID++
	rec.ID = t.store.nextTxID
	t.store.mu.Unlock()

	rec.ActorID = t.actorID
	cp := *rec
	t.newTxs = append(t.newTxs, &cp)
	return nil
}

func (t *memTx) InsertLike(like *Like) error {
	t.store.mu.Lock()
	t.store.nextLikeID++
	like.ID = t.store.nextLikeID
	t.store.mu.Unlock()

	like.SenderID = t.actorID
	like.Converted = false
	cp := *like
	t.newLikes = append(t.newLikes, &cp)
	return nil
}

// sentLikes собирает лайки отправителя: зафиксированные плюс staged этой транзакции.
func (t *memTx) sentLikes() []*Like {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []*Like
	for _, l := range t.store.likes {
		if l.SenderID == t.actorID {
			out = append(out, l)
		}
	}
	out = append(out, t.newLikes...)
	return out
}

func (t *memTx) FindLastLikeBySender() (*Like, error) {
	likes := t.sentLikes()
	var last *Like
	for _, l := range likes {
		if last == nil || l.CreatedAt.After(last.CreatedAt) ||
			(l.CreatedAt.Equal(last.CreatedAt) && l.ID > last.ID) {
			last = l
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (t *memTx) CountLikesSentBetween(from, to time.Time) (int, error) {
	count := 0
	for _, l := range t.sentLikes() {
		if inWindow(l.CreatedAt, from, to) {
			count++
		}
	}
	return count, nil
}

func (t *memTx) HasLikeToBetween(receiverID int64, from, to time.Time) (bool, error) {
	for _, l := range t.sentLikes() {
		if l.ReceiverID == receiverID && inWindow(l.CreatedAt, from, to) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) FindUnconvertedLikes() ([]*Like, error) {
	t.store.mu.Lock()
	staged := make(map[int64]bool, len(t.convertedIDs))
	for _, id := range t.convertedIDs {
		staged[id] = true
	}
	var out []*Like
	for _, l := range t.store.likes {
		if l.ReceiverID == t.actorID && !l.Converted && !staged[l.ID] {
			cp := *l
			out = append(out, &cp)
		}
	}
	t.store.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memTx) MarkLikesConverted(ids []int64) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	staged := make(map[int64]bool, len(t.convertedIDs))
	for _, id := range t.convertedIDs {
		staged[id] = true
	}
	for _, id := range ids {
		l, ok := t.store.likes[id]
		if !ok || l.ReceiverID != t.actorID || l.Converted || staged[id] {
			return common.ErrNothingToConvert
		}
	}
	t.convertedIDs = append(t.convertedIDs, ids...)
	return nil
}

func (t *memTx) SumConvertedBetween(from, to time.Time) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var sum int64
	all := append(append([]*PointTransaction{}, t.store.txs...), t.newTxs...)
	for _, rec := range all {
		if rec.ActorID == t.actorID && rec.Kind == TxKindConvert && inWindow(rec.CreatedAt, from, to) {
			sum += rec.Amount
		}
	}
	return sum, nil
}

func (t *memTx) InsertRaffleRecord(rec *RaffleRecord) error {
	t.store.mu.Lock()
	t.store.nextRaffleID++
	rec.ID = t.store.nextRaffleID
	t.store.mu.Unlock()

	rec.ActorID = t.actorID
	cp := *rec
	t.newRaffles = append(t.newRaffles, &cp)
	return nil
}

func inWindow(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}

// --- Read-only запросы ---

func (m *Memory) GetActor(ctx context.Context, actorID int64) (*Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[actorID]
	if !ok {
		return nil, common.ErrActorNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) ListReceivedLikes(ctx context.Context, actorID int64, limit int) ([]*Like, error) {
	return m.listLikes(func(l *Like) bool { return l.ReceiverID == actorID }, limit), nil
}

func (m *Memory) ListSentLikes(ctx context.Context, actorID int64, limit int) ([]*Like, error) {
	return m.listLikes(func(l *Like) bool { return l.SenderID == actorID }, limit), nil
}

func (m *Memory) listLikes(match func(*Like) bool, limit int) []*Like {
	m.mu.Lock()
	var out []*Like
	for _, l := range m.likes {
		if match(l) {
			cp := *l
			out = append(out, &cp)
		}
	}
	m.mu.Unlock()

	sortNewestFirst(out, func(l *Like) (time.Time, int64) { return l.CreatedAt, l.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) CountUnconverted(ctx context.Context, actorID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, l := range m.likes {
		if l.ReceiverID == actorID && !l.Converted {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ListTransactions(ctx context.Context, actorID int64, limit int) ([]*PointTransaction, error) {
	m.mu.Lock()
	var out []*PointTransaction
	for _, rec := range m.txs {
		if rec.ActorID == actorID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	m.mu.Unlock()

	sortNewestFirst(out, func(r *PointTransaction) (time.Time, int64) { return r.CreatedAt, r.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListRaffleHistory(ctx context.Context, actorID int64, limit int) ([]*RaffleRecord, error) {
	return m.listRaffles(func(r *RaffleRecord) bool { return r.ActorID == actorID }, limit), nil
}

func (m *Memory) ListRecentRaffles(ctx context.Context, limit int) ([]*RaffleRecord, error) {
	return m.listRaffles(func(*RaffleRecord) bool { return true }, limit), nil
}

func (m *Memory) listRaffles(match func(*RaffleRecord) bool, limit int) []*RaffleRecord {
	m.mu.Lock()
	var out []*RaffleRecord
	for _, r := range m.raffles {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	m.mu.Unlock()

	sortNewestFirst(out, func(r *RaffleRecord) (time.Time, int64) { return r.CreatedAt, r.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purgedLikes int64
	for id, l := range m.likes {
		if l.CreatedAt.Before(cutoff) {
			delete(m.likes, id)
			purgedLikes++
		}
	}

	var purgedTxs int64
	kept := m.txs[:0]
	for _, rec := range m.txs {
		if rec.CreatedAt.Before(cutoff) {
			purgedTxs++
			continue
		}
		kept = append(kept, rec)
	}
	m.txs = kept

	return purgedLikes, purgedTxs, nil
}

func sortNewestFirst[T any](items []T, key func(T) (time.Time, int64)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
}
