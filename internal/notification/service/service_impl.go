package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/campforge/campforge/internal/clock"
	notificationdomain "github.com/campforge/campforge/internal/notification/domain"
	"github.com/campforge/campforge/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  repository.Repository[notificationdomain.Notification]
}

func NewService(p Params) notificationdomain.Service {
	return &Service{
		log:   p.Log.Named("notification.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  repository.ProvideStore[notificationdomain.Notification](p.DB),
	}
}

// Notify inserts an outbox row. Best-effort: a persistence failure is logged
// and swallowed so callers in billing control flow never fail on it.
func (s *Service) Notify(ctx context.Context, req notificationdomain.Request) {
	if req.UserID == 0 || strings.TrimSpace(req.Type) == "" {
		s.log.Warn("dropping notification with missing user or type",
			zap.String("type", req.Type),
		)
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = notificationdomain.SeverityInfo
	}

	payload := map[string]any{}
	for key, value := range req.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	row := notificationdomain.Notification{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		TenantID:  req.TenantID,
		Type:      req.Type,
		Title:     req.Title,
		Body:      req.Body,
		Severity:  severity,
		ActionURL: req.ActionURL,
		Status:    notificationdomain.StatusPending,
		Metadata:  datatypes.JSONMap(payload),
		CreatedAt: s.clock.Now().UTC(),
	}

	if err := s.repo.Create(ctx, &row); err != nil {
		s.log.Warn("failed to enqueue notification",
			zap.String("type", req.Type),
			zap.String("user_id", req.UserID.String()),
			zap.Error(err),
		)
	}
}
