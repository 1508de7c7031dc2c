package notification

import (
	"github.com/campforge/campforge/internal/notification/service"
	"github.com/campforge/campforge/internal/providers/email"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	email.Module,
	fx.Provide(service.NewService),
	fx.Provide(service.NewDispatcher),
)
