package router

import (
	"net/http"

	"github.com/workpact/backend/internal/auth"
)

// New returns an http.Handler serving the public auth API under /api/v1.
func New(authHandler *auth.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)
	return mux
}
