// Package ledger — единственная граница изменяемого состояния бота.
// Все операции, меняющие баланс, лайки и историю розыгрышей, проходят через
// WithActorTx: одна логическая транзакция на одного пользователя, внутри которой
// чтения и записи не перемешиваются с конкурентными операциями того же пользователя.
//
// ledger.go описывает записи журнала и контракт хранилища. Реализации:
// postgres.go (боевая, pgx) и memory.go (тесты и локальная разработка).
package ledger

import (
	"context"
	"time"
)

// Rank — ранг пользователя. Управляется админом, читается розыгрышем.
type Rank string

const (
	RankBronze   Rank = "bronze"
	RankSilver   Rank = "silver"
	RankGold     Rank = "gold"
	RankPlatinum Rank = "platinum"
)

// Valid сообщает, входит ли значение в допустимый набор рангов.
func (r Rank) Valid() bool {
	switch r {
	case RankBronze, RankSilver, RankGold, RankPlatinum:
		return true
	}
	return false
}

// Actor — пользователь глазами журнала: счёт и ранг.
// Баланс никогда не уходит в минус — это гарантирует AdjustBalance.
type Actor struct {
	ID      int64
	Name    string
	Rank    Rank
	Balance int64
}

// Like — один лайк. Создаётся при отправке, ровно один раз помечается
// обменянным (Converted: false → true), больше не меняется.
type Like struct {
	ID         int64     `db:"id"`
	SenderID   int64     `db:"sender_id"`
	ReceiverID int64     `db:"receiver_id"`
	Comment    string    `db:"comment"`
	Converted  bool      `db:"converted"`
	CreatedAt  time.Time `db:"created_at"`
}

// TxKind — тип записи в журнале баллов.
type TxKind string

const (
	// TxKindCharge — начисление администратором
	TxKindCharge TxKind = "charge"
	// TxKindConvert — обмен лайков на баллы
	TxKindConvert TxKind = "convert"
	// TxKindUse — трата баллов (участие в розыгрыше)
	TxKindUse TxKind = "use"
)

// PointTransaction — запись аудита. Только добавляется, никогда не меняется.
// Каждое изменение баланса сопровождается ровно одной такой записью
// в той же транзакции.
type PointTransaction struct {
	ID             int64     `db:"id"`
	ActorID        int64     `db:"actor_id"`
	Kind           TxKind    `db:"kind"`
	Amount         int64     `db:"amount"` // Всегда положительная; знак определяется Kind
	Description    string    `db:"description"`
	RelatedActorID *int64    `db:"related_actor_id"` // Админ для charge, nil для остальных
	CreatedAt      time.Time `db:"created_at"`
}

// RaffleRecord — результат одного розыгрыша. Записывается один раз и хранит
// именно те вероятность и жребий, по которым решался исход: исход никогда
// не пересчитывается из настроек задним числом, только перепроверяется по записи.
type RaffleRecord struct {
	ID            int64     `db:"id"`
	ActorID       int64     `db:"actor_id"`
	PrizeTier     string    `db:"prize_tier"` // A, B или C
	PointsWagered int64     `db:"points_wagered"`
	Won           bool      `db:"won"`
	RankAtDraw    Rank      `db:"rank_at_draw"`
	WinRateAtDraw float64   `db:"win_rate_at_draw"` // Процент на момент розыгрыша
	RandomValue   float64   `db:"random_value"`     // Выпавший жребий из [0, 100)
	CreatedAt     time.Time `db:"created_at"`
}

// Tx — примитивы журнала внутри одной транзакции, привязанной к пользователю.
// Любая ошибка примитива откатывает транзакцию целиком: частичные записи
// не видны никому и никогда.
type Tx interface {
	// GetBalance возвращает баланс заблокированного пользователя.
	GetBalance() (int64, error)
	// AdjustBalance меняет баланс на delta.
	// Возвращает common.ErrInsufficientBalance, если баланс ушёл бы в минус.
	AdjustBalance(delta int64) error
	// AppendTransaction добавляет запись аудита.
	AppendTransaction(tx *PointTransaction) error

	// InsertLike создаёт лайк (заблокированный пользователь — отправитель)
	// и проставляет like.ID.
	InsertLike(like *Like) error
	// FindLastLikeBySender возвращает последний по времени лайк отправителя
	// (nil, если лайков ещё не было).
	FindLastLikeBySender() (*Like, error)
	// CountLikesSentBetween считает лайки отправителя в окне [from, to).
	CountLikesSentBetween(from, to time.Time) (int, error)
	// HasLikeToBetween сообщает, отправлял ли пользователь лайк receiverID в окне [from, to).
	HasLikeToBetween(receiverID int64, from, to time.Time) (bool, error)

	// FindUnconvertedLikes возвращает необменянные лайки, полученные
	// заблокированным пользователем, от старых к новым.
	FindUnconvertedLikes() ([]*Like, error)
	// MarkLikesConverted помечает лайки обменянными. Ошибка, если какой-то id
	// не существует, принадлежит другому получателю или уже обменян.
	MarkLikesConverted(ids []int64) error
	// SumConvertedBetween суммирует convert-записи пользователя в окне [from, to).
	SumConvertedBetween(from, to time.Time) (int64, error)

	// InsertRaffleRecord сохраняет результат розыгрыша и проставляет rec.ID.
	InsertRaffleRecord(rec *RaffleRecord) error
}

// Store — хранилище журнала.
type Store interface {
	// WithActorTx выполняет fn в транзакции, эксклюзивной для actorID.
	// Конкурентные вызовы для одного пользователя сериализуются; для разных —
	// не мешают друг другу. Если блокировку не удалось получить за отведённое
	// время — common.ErrContention, и операцию можно повторить целиком.
	// Ошибка fn (или отмена ctx) откатывает все записи.
	WithActorTx(ctx context.Context, actorID int64, fn func(Tx) error) error

	// GetActor возвращает счёт и ранг пользователя
	// (common.ErrActorNotFound, если его нет).
	GetActor(ctx context.Context, actorID int64) (*Actor, error)

	// ListReceivedLikes возвращает полученные лайки, от новых к старым.
	ListReceivedLikes(ctx context.Context, actorID int64, limit int) ([]*Like, error)
	// ListSentLikes возвращает отправленные лайки, от новых к старым.
	ListSentLikes(ctx context.Context, actorID int64, limit int) ([]*Like, error)
	// CountUnconverted считает необменянные лайки пользователя.
	CountUnconverted(ctx context.Context, actorID int64) (int, error)
	// ListTransactions возвращает записи аудита пользователя, от новых к старым.
	ListTransactions(ctx context.Context, actorID int64, limit int) ([]*PointTransaction, error)
	// ListRaffleHistory возвращает розыгрыши пользователя, от новых к старым.
	ListRaffleHistory(ctx context.Context, actorID int64, limit int) ([]*RaffleRecord, error)
	// ListRecentRaffles возвращает последние розыгрыши всех пользователей (для админки).
	ListRecentRaffles(ctx context.Context, limit int) ([]*RaffleRecord, error)

	// PurgeOlderThan удаляет лайки и записи аудита старше cutoff (ретеншн).
	// Возвращает количество удалённых лайков и записей.
	// Все инварианты журнала считаются по окнам не шире месяца, поэтому
	// удаление годовалых записей на них не влияет.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (likes int64, transactions int64, err error)
}
