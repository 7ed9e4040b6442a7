//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"github.com/vpio/server/internal/infra/config"
)

// InitializeApp wires the application from configuration.
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(AppSet)
	return nil, nil, nil
}
