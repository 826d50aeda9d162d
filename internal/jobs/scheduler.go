// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежедневная зачистка устаревшей истории.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/kudos-bot/internal/common"
	"serotonyl.ru/kudos-bot/internal/ledger"
	"serotonyl.ru/kudos-bot/internal/notify"
)

// RetentionHorizon — сколько хранится история лайков и транзакций.
// Балансы и история розыгрышей зачистке не подлежат.
const RetentionHorizon = 365 * 24 * time.Hour

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	store    ledger.Store
	notifier notify.Publisher
	clock    common.Clock
	loc      *time.Location
}

// NewScheduler создаёт планировщик задач в часовом поясе loc.
func NewScheduler(store ledger.Store, notifier notify.Publisher, clock common.Clock, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		store:    store,
		notifier: notifier,
		clock:    clock,
		loc:      loc,
	}
}

// Start запускает фоновые задачи. Зачистка выполняется сразу при старте
// (бот мог неделями лежать) и дальше каждый день в 02:00.
func (s *Scheduler) Start(ctx context.Context) {
	s.RunRetentionSweep(ctx)

	s.cron.AddFunc("0 2 * * *", func() {
		log.Info("[CRON] Ежедневная зачистка истории")
		s.RunRetentionSweep(ctx)
	})

	s.cron.Start()
	log.WithField("tz", s.loc.String()).Info("Планировщик задач запущен")
}

// RunRetentionSweep удаляет лайки и записи аудита старше года.
// Необменянные лайки удаляются наравне с обменянными: год на обмен было достаточно.
func (s *Scheduler) RunRetentionSweep(ctx context.Context) {
	cutoff := s.clock.Now().In(s.loc).Add(-RetentionHorizon)

	likes, transactions, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка зачистки истории")
		return
	}
	if likes == 0 && transactions == 0 {
		log.Debug("[CRON] Зачистка: удалять нечего")
		return
	}

	log.WithFields(log.Fields{
		"likes":        likes,
		"transactions": transactions,
		"cutoff":       cutoff,
	}).Info("[CRON] История зачищена")

	if err := s.notifier.PublishPurge(ctx, likes, transactions, cutoff); err != nil {
		log.WithError(err).Warn("[CRON] Не удалось опубликовать итог зачистки")
	}
}

// Stop останавливает планировщик, дождавшись текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
