// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/gridpilot/gridpilot/pkg/handlers/delay"
	"github.com/gridpilot/gridpilot/pkg/handlers/httprequest"
	"github.com/gridpilot/gridpilot/pkg/handlers/logmsg"
	"github.com/gridpilot/gridpilot/pkg/handlers/script"
	"github.com/gridpilot/gridpilot/pkg/handlers/setvariable"
	"github.com/gridpilot/gridpilot/pkg/registry"
)

// RegistryOptions controls which handlers are registered.
type RegistryOptions struct {
	// EnableScriptSteps registers the untrusted script handler. Off unless
	// the operator asked for it explicitly.
	EnableScriptSteps bool
}

func registerNativeHandlers(reg *registry.Registry) {
	reg.RegisterHandler(delay.NewFactory())
	reg.RegisterHandler(logmsg.NewFactory())
	reg.RegisterHandler(setvariable.NewFactory())
	reg.RegisterHandler(httprequest.NewFactory())
}

func NewRegistry(log *slog.Logger, opts RegistryOptions) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeHandlers(reg)

	if opts.EnableScriptSteps {
		reg.RegisterHandler(script.NewFactory())
	}

	return reg
}
