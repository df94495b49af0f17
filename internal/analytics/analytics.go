// Package analytics agrega as visualizações gravadas em views.
package analytics

import (
	"context"
	"fmt"
	"time"

	"media-analytics-api/internal/db"
	"media-analytics-api/internal/models"

	"gorm.io/gorm"
)

const (
	DefaultDays = 7
	MaxDays     = 90
	DefaultTop  = 10
	MaxTop      = 100
)

type DayCount struct {
	Day   string `json:"day"`
	Views int64  `json:"views"`
}

type MediaSummary struct {
	MediaID       uint64     `json:"media_id"`
	Since         time.Time  `json:"since"`
	TotalViews    int64      `json:"total_views"`
	UniqueViewers int64      `json:"unique_viewers"`
	Daily         []DayCount `json:"daily"`
}

type TopEntry struct {
	MediaID uint64 `json:"media_id"`
	Title   string `json:"title"`
	Views   int64  `json:"views"`
}

type Service struct {
	DB *gorm.DB
}

// RecordView grava uma visualização.
func (s Service) RecordView(ctx context.Context, v models.View) (models.View, error) {
	if v.ViewedAt.IsZero() {
		v.ViewedAt = time.Now()
	}
	v.ViewedAt = db.Time(v.ViewedAt)
	if err := s.DB.WithContext(ctx).Create(&v).Error; err != nil {
		return models.View{}, fmt.Errorf("analytics: record view: %w", err)
	}
	return v, nil
}

// MediaSummary conta views, visitantes únicos e a série diária desde `since`.
func (s Service) MediaSummary(ctx context.Context, mediaID uint64, since time.Time) (MediaSummary, error) {
	since = db.Time(since)
	out := MediaSummary{MediaID: mediaID, Since: since, Daily: []DayCount{}}

	base := func() *gorm.DB {
		return s.DB.WithContext(ctx).Model(&models.View{}).
			Where("media_id = ? AND viewed_at >= ?", mediaID, since)
	}

	var totals struct {
		Total   int64
		Viewers int64
	}
	if err := base().Select("COUNT(*) AS total, COUNT(DISTINCT viewer_key) AS viewers").Scan(&totals).Error; err != nil {
		return MediaSummary{}, fmt.Errorf("analytics: totals: %w", err)
	}
	out.TotalViews = totals.Total
	out.UniqueViewers = totals.Viewers

	day := db.DayExpr(s.DB, "viewed_at")
	if err := base().
		Select(day + " AS day, COUNT(*) AS views").
		Group(day).
		Order("day").
		Scan(&out.Daily).Error; err != nil {
		return MediaSummary{}, fmt.Errorf("analytics: daily: %w", err)
	}
	return out, nil
}

// TopMedia ordena as mídias do dono por número de views desde `since`.
// Mídias sem views no período não aparecem.
func (s Service) TopMedia(ctx context.Context, ownerID uint64, since time.Time, limit int) ([]TopEntry, error) {
	if limit <= 0 {
		limit = DefaultTop
	}
	if limit > MaxTop {
		limit = MaxTop
	}

	out := []TopEntry{}
	err := s.DB.WithContext(ctx).
		Table("views").
		Select("media.id AS media_id, media.title AS title, COUNT(views.id) AS views").
		Joins("JOIN media ON media.id = views.media_id").
		Where("media.owner_id = ? AND views.viewed_at >= ?", ownerID, db.Time(since)).
		Group("media.id, media.title").
		Order("views DESC, media.id ASC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("analytics: top media: %w", err)
	}
	return out, nil
}

// ClampDays limita a janela de consulta em dias.
func ClampDays(days int) int {
	switch {
	case days <= 0:
		return DefaultDays
	case days > MaxDays:
		return MaxDays
	default:
		return days
	}
}
