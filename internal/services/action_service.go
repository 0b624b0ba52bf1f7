package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/iotguard/guardd/internal/engine"
	"github.com/iotguard/guardd/internal/logger"
	"github.com/iotguard/guardd/internal/models"
)

// ActionService persists the engine's action stream and keeps the
// blocked-source registry current. It implements engine.Recorder.
type ActionService struct {
	db     *gorm.DB
	notify *NotificationService
}

// NewActionService returns an ActionService. ns may be nil to disable
// external notifications.
func NewActionService(db *gorm.DB, ns *NotificationService) *ActionService {
	return &ActionService{db: db, notify: ns}
}

// Record stores one action. Plain "none" decisions are not persisted (every
// benign window would otherwise flood the table); cooldown suppressions are,
// since operators tune cooldown_sec off them. Persistence failures are
// logged and swallowed: the decision loop must never stall on the database.
func (s *ActionService) Record(a engine.Action) {
	if a.Kind == engine.ActionNone && !a.Suppressed {
		return
	}

	rec := models.ActionRecord{
		UUID:        uuid.NewString(),
		SourceID:    a.SourceID,
		Action:      string(a.Kind),
		Reason:      a.Reason,
		Score:       a.Score,
		WindowIndex: a.WindowIndex,
		Hits:        a.Hits,
		CreatedAt:   a.At,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		logger.Log().WithError(err).Warn("failed to persist action record")
	}

	switch a.Kind {
	case engine.ActionBlock:
		s.markBlocked(a)
		if s.notify != nil {
			s.notify.Send(
				fmt.Sprintf("Blocked %s", a.SourceID),
				fmt.Sprintf("score=%.3f hits=%d: %s", a.Score, a.Hits, a.Reason),
			)
		}
	case engine.ActionFailed:
		if s.notify != nil {
			s.notify.Send(
				fmt.Sprintf("Block failed for %s", a.SourceID),
				a.Reason,
			)
		}
	}
}

func (s *ActionService) markBlocked(a engine.Action) {
	blocked := models.BlockedSource{
		SourceID:  a.SourceID,
		Score:     a.Score,
		Hits:      a.Hits,
		Reason:    a.Reason,
		BlockedAt: a.At,
	}

	var existing models.BlockedSource
	err := s.db.Where("source_id = ?", a.SourceID).First(&existing).Error
	if err == nil {
		existing.Score = a.Score
		existing.Hits = a.Hits
		existing.Reason = a.Reason
		existing.BlockedAt = a.At
		if err := s.db.Save(&existing).Error; err != nil {
			logger.Log().WithError(err).Warn("failed to update blocked source")
		}
		return
	}
	if err := s.db.Create(&blocked).Error; err != nil {
		logger.Log().WithError(err).Warn("failed to record blocked source")
	}
}

// ListRecent returns recent action records, newest first.
func (s *ActionService) ListRecent(limit int) ([]models.ActionRecord, error) {
	var res []models.ActionRecord
	q := s.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// ListBlocked returns the blocked-source registry, newest first.
func (s *ActionService) ListBlocked() ([]models.BlockedSource, error) {
	var res []models.BlockedSource
	if err := s.db.Order("blocked_at desc").Find(&res).Error; err != nil {
		return nil, err
	}
	return res, nil
}

// ClearBlocked removes a source from the blocked registry (manual unblock).
func (s *ActionService) ClearBlocked(sourceID string) error {
	return s.db.Where("source_id = ?", sourceID).Delete(&models.BlockedSource{}).Error
}

// Prune deletes action records older than cutoff and returns how many went.
func (s *ActionService) Prune(cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff).Delete(&models.ActionRecord{})
	return res.RowsAffected, res.Error
}
