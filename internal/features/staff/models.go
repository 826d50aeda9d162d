// Package staff управляет сотрудниками: регистрацией, рангами, счетами.
// models.go описывает структуры данных для работы с таблицей members.
package staff

import (
	"time"

	"serotonyl.ru/kudos-bot/internal/ledger"
)

// Member представляет сотрудника в базе данных.
// Каждый пользователь, вступивший в STAFF_CHAT_ID, автоматически
// создаётся в этой таблице вместе со счётом баллов.
type Member struct {
	ID        int64       `db:"id"`         // Автоинкрементный ID записи в БД
	UserID    int64       `db:"user_id"`    // Telegram user ID (уникальный)
	Username  string      `db:"username"`   // @username (может быть пустым)
	FirstName string      `db:"first_name"` // Имя пользователя
	LastName  string      `db:"last_name"`  // Фамилия (может быть пустой)
	Rank      ledger.Rank `db:"rank"`       // Ранг сотрудника (влияет на шанс в розыгрыше)
	JoinedAt  time.Time   `db:"joined_at"`  // Когда вступил в чат
	CreatedAt time.Time   `db:"created_at"` // Когда запись создана в БД
	UpdatedAt time.Time   `db:"updated_at"` // Последнее обновление записи
}

// UpdateInfo содержит данные для обновления информации о сотруднике.
// Используется, когда сотрудник возвращается в чат и его имя/username могли измениться.
type UpdateInfo struct {
	Username  string // Новый @username
	FirstName string // Новое имя
	LastName  string // Новая фамилия
}

// DisplayName возвращает отображаемое имя сотрудника.
// Если есть @username — возвращает его, иначе — имя + фамилию.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	return name
}
