package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"dianbiao-backend/internal/model"
)

func (s *gormStore) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	if strings.TrimSpace(entry.Action) == "" {
		return invalid("action", "is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns one page of entries, newest first.
func (s *gormStore) ListAuditLogs(ctx context.Context, filter AuditFilter) (AuditPage, error) {
	filter.Normalize()

	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.AuditLog{})
		if search := strings.TrimSpace(filter.Search); search != "" {
			like := "%" + strings.ToLower(search) + "%"
			q = q.Where("LOWER(action) LIKE ? OR LOWER(username) LIKE ? OR LOWER(ip) LIKE ?", like, like, like)
		}
		if filter.Start != nil {
			q = q.Where("created_at >= ?", filter.Start.UTC())
		}
		if filter.End != nil {
			q = q.Where("created_at <= ?", filter.End.UTC())
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return AuditPage{}, fmt.Errorf("failed to count audit logs: %w", err)
	}

	logs := make([]model.AuditLog, 0, filter.Limit)
	if err := filtered().Order("created_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&logs).Error; err != nil {
		return AuditPage{}, fmt.Errorf("failed to list audit logs: %w", err)
	}

	pages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return AuditPage{Logs: logs, Total: total, Page: filter.Page, Limit: filter.Limit, Pages: pages}, nil
}

func (s *gormStore) GetAuditLog(ctx context.Context, id int64) (model.AuditLog, error) {
	var entry model.AuditLog
	if err := s.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return model.AuditLog{}, notFound(err, "audit log", id)
	}
	return entry, nil
}
