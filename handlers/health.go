package handlers

import (
	"net/http"

	"github.com/upb/studygen/app"
	"github.com/upb/studygen/utils"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint; overridden at build time
var Version = "0.1.0"

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessCheck reports ready only when at least one provider is registered
// and the default cascade has a provider to try.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]interface{}{}

		if deps.ProviderRegistry == nil || deps.ProviderRegistry.Count() == 0 {
			checks["providers"] = "none_configured"
		} else {
			checks["providers"] = "configured"
		}

		groups := 0
		for _, g := range deps.Groups.Groups {
			groups += len(g.Providers)
		}
		if groups == 0 {
			checks["provider_groups"] = "empty"
		} else {
			checks["provider_groups"] = "configured"
		}

		var err error
		if deps.Ready() {
			err = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"status": "ready",
				"checks": checks,
			})
		} else {
			err = utils.WriteServiceUnavailable(w, "no provider can serve generation requests", checks)
		}
		if err != nil {
			deps.Logger.Error("failed to write readiness response", zap.Error(err))
		}
	}
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var providerNames []string
		if deps.ProviderRegistry != nil {
			providerNames = deps.ProviderRegistry.Names()
		}

		groups := make([]string, 0, len(deps.Groups.Groups))
		for _, g := range deps.Groups.Groups {
			groups = append(groups, g.Name)
		}

		response := map[string]interface{}{
			"version":         Version,
			"environment":     deps.Config.Environment,
			"providers":       providerNames,
			"provider_groups": groups,
			"repair_enabled":  deps.Groups.Repair != nil,
		}

		_ = utils.WriteJSON(w, http.StatusOK, response)
	}
}
