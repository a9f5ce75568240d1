package http

import (
	"log/slog"
	"net/http"

	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/pkg/httputil"
	"github.com/ViddeM/accounts/pkg/middleware"
)

// ExternalHandler serves the profile endpoint first-party resource servers
// call with an access token they obtained on a user's behalf. The route sits
// behind the bearer-auth middleware.
type ExternalHandler struct {
	userinfo *service.UserInfoService
	logger   *slog.Logger
}

// NewExternalHandler creates a new external API handler.
func NewExternalHandler(userinfo *service.UserInfoService, logger *slog.Logger) *ExternalHandler {
	return &ExternalHandler{userinfo: userinfo, logger: logger}
}

// User handles GET /api/external/user
func (h *ExternalHandler) User(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())

	profile, err := h.userinfo.ProfileByAccountID(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: profile})
}
