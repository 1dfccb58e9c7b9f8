package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/igorgomez/medidascorporais/internal/config"
)

// SetupGuide answers every request with instructions for configuring the
// provider. cmd/api serves it in place of the application when the provider
// configuration does not validate.
func SetupGuide(cause error) http.Handler {
	var b strings.Builder
	b.WriteString("Medidas Corporais is not configured.\n\n")
	if cause != nil {
		fmt.Fprintf(&b, "Reason: %v\n\n", cause)
	}
	b.WriteString("Set the following environment variables with the values of your project and restart the server:\n\n")
	for _, name := range config.ProviderVars {
		fmt.Fprintf(&b, "  %s\n", name)
	}
	b.WriteString("\nMEDIDAS_API_KEY also signs session tokens and must be at least 16 characters.\n")
	body := b.String()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("setup required"))
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(body))
	})
}
