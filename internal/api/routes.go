package api

import (
	"net/http"

	"github.com/JaimeStill/warden/internal/config"
	"github.com/JaimeStill/warden/internal/verifications"
	"github.com/JaimeStill/warden/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain, cfg *config.Config) {
	opts := verifications.HandlerOptions{
		MaxUploadBytes: cfg.Verification.MaxUploadSizeBytes(),
	}
	if cfg.API.CORS.Enabled {
		opts.AllowedOrigins = cfg.API.CORS.Origins
	}

	routes.Register(mux, domain.Verifications.Handler(opts).Routes()...)
}
