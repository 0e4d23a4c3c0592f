// Package scheduler runs the periodic due-event worker: it drains the
// persisted event log and executes unlock_lesson, send_email and
// overview_statistics work exactly once per event.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"classhub/internal/core"
	"classhub/internal/mailer"
	"classhub/internal/repository"
	"classhub/pkg/logger"
	"classhub/pkg/models"
)

// DefaultInterval is how often the scheduler scans for due events.
const DefaultInterval = 60 * time.Second

// tickLockKey guards against overlapping ticks when several processes
// share the event table.
const tickLockKey = "classhub:scheduler:tick"

// Clock abstracts wall-clock time so tests can produce due events
// deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Scheduler executes due events serially. One Tick is one scan; wiring it
// to a cron entry happens in main.
type Scheduler struct {
	events   repository.EventRepository
	lessons  repository.LessonRepository
	overview core.OverviewService
	mail     mailer.Mailer
	rdb      *redis.Client // optional tick guard; nil disables it
	clock    Clock
	interval time.Duration
}

// New creates a scheduler. rdb may be nil; clock defaults to SystemClock.
func New(
	events repository.EventRepository,
	lessons repository.LessonRepository,
	overview core.OverviewService,
	mail mailer.Mailer,
	rdb *redis.Client,
	clock Clock,
	interval time.Duration,
) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		events:   events,
		lessons:  lessons,
		overview: overview,
		mail:     mail,
		rdb:      rdb,
		clock:    clock,
		interval: interval,
	}
}

// Tick scans for due events and processes them serially. Every processed
// event is marked done whether its work succeeded or not; downstream
// systems own their retries.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.acquireTickLock(ctx) {
		logger.Debug("scheduler tick skipped: lease held elsewhere")
		return
	}

	now := s.clock.Now()
	due, err := s.events.QueryDue(ctx, now)
	if err != nil {
		logger.Errorf("scheduler: querying due events failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	logger.Infof("scheduler: processing %d due event(s)", len(due))

	for _, ev := range due {
		if err := s.process(ctx, ev); err != nil {
			logger.Errorf("scheduler: event %s (%s) failed: %v", ev.ID, ev.Type, err)
		}
		if err := s.events.MarkDone(ctx, ev.ID); err != nil {
			logger.Errorf("scheduler: marking event %s done failed: %v", ev.ID, err)
		}
	}
}

// acquireTickLock takes a short Redis lease so overlapping ticks never
// double-process. Without Redis (or with Redis down) the guard degrades to
// a no-op.
func (s *Scheduler) acquireTickLock(ctx context.Context) bool {
	if s.rdb == nil {
		return true
	}
	ok, err := s.rdb.SetNX(ctx, tickLockKey, s.clock.Now().UnixMilli(), s.interval).Result()
	if err != nil {
		logger.Warnf("scheduler: tick lease unavailable, proceeding unguarded: %v", err)
		return true
	}
	return ok
}

func (s *Scheduler) process(ctx context.Context, ev *models.ScheduledEvent) error {
	switch ev.Type {
	case models.EventUnlockLesson:
		return s.unlockLesson(ctx, ev)
	case models.EventSendEmail:
		return s.sendEmail(ctx, ev)
	case models.EventOverviewStatistics:
		return s.overviewStatistics(ctx, ev)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (s *Scheduler) unlockLesson(ctx context.Context, ev *models.ScheduledEvent) error {
	var data models.UnlockLessonData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return fmt.Errorf("decode unlock_lesson data: %w", err)
	}
	lesson, err := s.lessons.FindByTitles(ctx, data.NamespaceName, data.LessonName)
	if err != nil {
		return fmt.Errorf("resolve lesson %s/%s: %w", data.NamespaceName, data.LessonName, err)
	}
	if err := s.lessons.SetActive(ctx, lesson.ID, true); err != nil {
		return err
	}
	if err := s.lessons.ClearLockUntil(ctx, lesson.ID); err != nil {
		return err
	}
	logger.Infof("scheduler: unlocked lesson %s/%s", data.NamespaceName, data.LessonName)
	return nil
}

func (s *Scheduler) sendEmail(ctx context.Context, ev *models.ScheduledEvent) error {
	var data models.SendEmailData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return fmt.Errorf("decode send_email data: %w", err)
	}
	if err := s.mail.Send(ctx, data); err != nil {
		return fmt.Errorf("mail hand-off: %w", err)
	}
	return nil
}

// overviewStatistics persists a usage snapshot and queues the next run for
// one minute after the coming midnight.
func (s *Scheduler) overviewStatistics(ctx context.Context, ev *models.ScheduledEvent) error {
	now := s.clock.Now()
	row, err := s.overview.Collect(ctx, now)
	if err != nil {
		return err
	}
	if err := s.overview.Persist(ctx, row); err != nil {
		return err
	}

	next := nextMidnight(now).Add(time.Minute)
	followUp := &models.ScheduledEvent{
		Type: models.EventOverviewStatistics,
		Time: next.UnixMilli(),
		Data: json.RawMessage(`{}`),
		User: ev.User,
	}
	if err := s.events.Insert(ctx, followUp); err != nil {
		return fmt.Errorf("enqueue follow-up snapshot: %w", err)
	}
	logger.Infof("scheduler: overview snapshot stored, next run %s", next.Format(time.RFC3339))
	return nil
}

// nextMidnight returns the first midnight strictly after now, in now's
// location.
func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
