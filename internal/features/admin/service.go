// Package admin — service.go содержит логику аутентификации, управления сессиями
// и сами админ-операции: лимит обмена, шансы рангов, ранги, начисление баллов.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/config"
	"serotonyl.ru/kudos-bot/internal/features/settings"
	"serotonyl.ru/kudos-bot/internal/features/staff"
	"serotonyl.ru/kudos-bot/internal/ledger"
)

const (
	maxFailedAttempts = 3
	attemptsWindow    = 1 * time.Hour
	sessionTTL        = 24 * time.Hour
	stateTTL          = 5 * time.Minute
)

// Service управляет админ-панелью.
type Service struct {
	repo     *Repository
	store    ledger.Store
	settings *settings.Service
	staff    *staff.Service
	cfg      *config.Config
	clock    common.Clock

	states   map[int64]*State // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
}

// NewService создаёт сервис админ-панели.
func NewService(repo *Repository, store ledger.Store, settingsSvc *settings.Service, staffSvc *staff.Service, cfg *config.Config, clock common.Clock) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		settings: settingsSvc,
		staff:    staffSvc,
		cfg:      cfg,
		clock:    clock,
		states:   make(map[int64]*State),
	}
}

// IsAdmin проверяет, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(userID int64) bool {
	for _, id := range s.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// VerifyPassword проверяет пароль администратора с использованием Argon2id.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
// Успех создаёт сессию на 24 часа.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	if !s.IsAdmin(userID) {
		return common.ErrNotAdmin
	}

	attempts, err := s.repo.GetRecentFailedAttempts(ctx, userID, attemptsWindow)
	if err != nil {
		return err
	}
	if attempts >= maxFailedAttempts {
		return common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)

	if err := s.repo.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).Error("Ошибка записи попытки входа")
	}

	if !match {
		return common.ErrWrongPassword
	}

	session := &Session{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    s.clock.Now().Add(sessionTTL),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return err
	}

	log.WithField("user_id", userID).Info("Администратор авторизован")
	return nil
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.repo.GetActiveSession(ctx, userID)
	if err != nil || session == nil {
		return false
	}
	if err := s.repo.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).Warn("Ошибка обновления активности сессии")
	}
	return true
}

// Logout деактивирует сессии пользователя.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.repo.DeactivateSession(ctx, userID)
}

// requireSession — общая проверка для всех админ-операций.
func (s *Service) requireSession(ctx context.Context, adminID int64) error {
	if !s.IsAdmin(adminID) {
		return common.ErrNotAdmin
	}
	if !s.HasActiveSession(ctx, adminID) {
		return common.ErrSessionExpired
	}
	return nil
}

// --- Состояние диалога ---

// GetState возвращает текущее состояние диалога (nil, если его нет или оно истекло).
func (s *Service) GetState(userID int64) *State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok || s.clock.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	s.states[userID] = &State{
		State:     stateName,
		ExpiresAt: s.clock.Now().Add(stateTTL),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Админ-операции ---

// SetMonthlyLimit меняет месячный потолок обмена лайков.
func (s *Service) SetMonthlyLimit(ctx context.Context, adminID int64, limit int64) error {
	if err := s.requireSession(ctx, adminID); err != nil {
		return err
	}
	if err := s.settings.SetMonthlyLimit(ctx, limit); err != nil {
		return err
	}
	log.WithFields(log.Fields{"admin_id": adminID, "limit": limit}).Info("Админ изменил месячный лимит")
	return nil
}

// SetWinRate меняет шанс выигрыша ранга.
func (s *Service) SetWinRate(ctx context.Context, adminID int64, rank ledger.Rank, rate float64) error {
	if err := s.requireSession(ctx, adminID); err != nil {
		return err
	}
	if err := s.settings.SetWinRate(ctx, rank, rate); err != nil {
		return err
	}
	log.WithFields(log.Fields{"admin_id": adminID, "rank": rank, "rate": rate}).Info("Админ изменил шанс ранга")
	return nil
}

// SetRank меняет ранг сотрудника.
func (s *Service) SetRank(ctx context.Context, adminID, targetID int64, rank ledger.Rank) error {
	if err := s.requireSession(ctx, adminID); err != nil {
		return err
	}
	if err := s.staff.SetRank(ctx, targetID, rank); err != nil {
		return err
	}
	log.WithFields(log.Fields{"admin_id": adminID, "target_id": targetID, "rank": rank}).Info("Админ изменил ранг")
	return nil
}

// ChargePoints начисляет баллы сотруднику вручную, минуя обмен лайков.
// В аудите начисление помечается админом, который его сделал.
func (s *Service) ChargePoints(ctx context.Context, adminID, targetID, amount int64, description string) (int64, error) {
	if err := s.requireSession(ctx, adminID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if description == "" {
		description = fmt.Sprintf("Начисление от администратора: %s", common.FormatPoints(amount))
	}

	now := s.clock.Now()
	var newBalance int64
	err := s.store.WithActorTx(ctx, targetID, func(tx ledger.Tx) error {
		if err := tx.AdjustBalance(amount); err != nil {
			return err
		}
		if err := tx.AppendTransaction(&ledger.PointTransaction{
			Kind:           ledger.TxKindCharge,
			Amount:         amount,
			Description:    description,
			RelatedActorID: &adminID,
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		var err error
		newBalance, err = tx.GetBalance()
		return err
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"admin_id":  adminID,
		"target_id": targetID,
		"amount":    amount,
	}).Info("Админ начислил баллы")

	return newBalance, nil
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени (защита от timing attack)
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
