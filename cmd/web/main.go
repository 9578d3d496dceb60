// Package main provides the entry point for the KB Canvas web service
package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/container"
)

func main() {
	app := fx.New(
		container.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)

	app.Run()
}
