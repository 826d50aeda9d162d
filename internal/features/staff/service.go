// Package staff — service.go содержит бизнес-логику управления сотрудниками.
// Сервис координирует регистрацию, заведение счетов и смену рангов.
package staff

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/ledger"
)

// Service управляет сотрудниками.
// Связывает обработчики Telegram-событий с репозиторием БД.
type Service struct {
	repo *Repository
}

// NewService создаёт новый сервис сотрудников.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// EnsureMember регистрирует сотрудника, если его ещё нет, и обновляет
// имя/username, если он уже есть. Новый сотрудник получает ранг bronze
// и счёт с нулевым балансом; существующим ранг и баланс не трогаются.
// Вызывается на каждое сообщение, поэтому молчалив.
func (s *Service) EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	member := &Member{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
		Rank:      ledger.RankBronze,
	}
	if err := s.repo.Create(ctx, member); err != nil {
		return fmt.Errorf("ошибка регистрации сотрудника: %w", err)
	}

	// Счёт заводится сразу: лайк можно получить в первую же минуту в чате
	if err := s.repo.EnsureBalance(ctx, userID); err != nil {
		return fmt.Errorf("ошибка заведения счёта: %w", err)
	}
	return nil
}

// HandleNewMember обрабатывает вступление сотрудника в рабочий чат.
func (s *Service) HandleNewMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	if err := s.EnsureMember(ctx, userID, username, firstName, lastName); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"username": username,
	}).Info("Сотрудник зарегистрирован")

	return nil
}

// IsMember проверяет, зарегистрирован ли пользователь как сотрудник.
func (s *Service) IsMember(ctx context.Context, userID int64) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

// GetByUserID возвращает сотрудника по его Telegram user ID.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// ResolveUsername возвращает сотрудника по @username (@ в начале допустим).
func (s *Service) ResolveUsername(ctx context.Context, username string) (*Member, error) {
	return s.repo.GetByUsername(ctx, strings.TrimPrefix(username, "@"))
}

// SetRank меняет ранг сотрудника. Шанс выигрыша нового ранга начинает
// действовать со следующего розыгрыша.
func (s *Service) SetRank(ctx context.Context, userID int64, rank ledger.Rank) error {
	if !rank.Valid() {
		return fmt.Errorf("неизвестный ранг: %s", rank)
	}
	if err := s.repo.SetRank(ctx, userID, rank); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "rank": rank}).Info("Ранг сотрудника изменён")
	return nil
}
