package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/k2riddim/linkedin-research-suite/internal/browser"
	"github.com/k2riddim/linkedin-research-suite/internal/registry"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

type errorResp struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// writeErr maps registry and provider failures onto HTTP statuses. The
// category travels in the body so clients can branch without parsing
// provider wording.
func writeErr(c *gin.Context, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error(), Category: "not_found"})
		return
	}
	var ce *browser.ClassifiedError
	if errors.As(err, &ce) {
		writeJSON(c, statusFor(ce.Category), errorResp{Error: ce.Message, Category: string(ce.Category)})
		return
	}
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
}

func statusFor(cat browser.Category) int {
	switch cat {
	case browser.CategoryClientError:
		return http.StatusBadRequest
	case browser.CategorySessionClosed:
		return http.StatusGone
	case browser.CategoryNavigationTimeout:
		return http.StatusGatewayTimeout
	case browser.CategoryProviderUnreachable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
