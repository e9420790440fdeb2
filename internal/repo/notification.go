package repo

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/amoralabs/amora-client/pkg/conn"
)

// NotificationCounters is the per-user row of locally cached badge counts.
type NotificationCounters struct {
	UserID      string    `gorm:"primaryKey;column:user_id"`
	UnreadCount int       `gorm:"column:unread_count"`
	LikeCount   int       `gorm:"column:like_count"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (NotificationCounters) TableName() string {
	return "notification_counters"
}

// NotificationRepo persists badge counters in the local cache database.
type NotificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo migrates and wraps the counters table.
func NewNotificationRepo(client *conn.Client) (*NotificationRepo, error) {
	db := client.DB()
	if db == nil {
		return nil, errors.New("nil database client")
	}
	if err := db.AutoMigrate(&NotificationCounters{}); err != nil {
		return nil, errors.Wrap(err, "migrate notification counters")
	}
	return &NotificationRepo{db: db}, nil
}

// IncrementUnread adds delta to a user's unread count, creating the row on
// first touch. The count never goes below zero.
func (r *NotificationRepo) IncrementUnread(ctx context.Context, userID string, delta int) error {
	return r.increment(ctx, userID, "unread_count", delta)
}

// IncrementLikes adds delta to a user's like count.
func (r *NotificationRepo) IncrementLikes(ctx context.Context, userID string, delta int) error {
	return r.increment(ctx, userID, "like_count", delta)
}

func (r *NotificationRepo) increment(ctx context.Context, userID, column string, delta int) error {
	if userID == "" {
		return errors.New("empty user id")
	}
	row := NotificationCounters{UserID: userID, UpdatedAt: time.Now()}
	if delta > 0 {
		switch column {
		case "unread_count":
			row.UnreadCount = delta
		case "like_count":
			row.LikeCount = delta
		}
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			column:       gorm.Expr("MAX("+column+" + ?, 0)", delta),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
	return errors.Wrapf(err, "increment %s for %s", column, userID)
}

// Counters returns a user's cached counts, zeroed when no row exists.
func (r *NotificationRepo) Counters(ctx context.Context, userID string) (NotificationCounters, error) {
	var row NotificationCounters
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return NotificationCounters{UserID: userID}, nil
	}
	if err != nil {
		return NotificationCounters{}, errors.Wrapf(err, "load counters for %s", userID)
	}
	return row, nil
}

// Reset zeroes a user's counters.
func (r *NotificationRepo) Reset(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).
		Model(&NotificationCounters{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"unread_count": 0,
			"like_count":   0,
			"updated_at":   time.Now(),
		}).Error
	return errors.Wrapf(err, "reset counters for %s", userID)
}
