package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
	"github.com/gin-gonic/gin"
)

const opRequest = "request"

var errorStatus = map[apperrors.Kind]int{
	apperrors.KindValidation:      http.StatusBadRequest,
	apperrors.KindUnauthenticated: http.StatusUnauthorized,
	apperrors.KindForbidden:       http.StatusForbidden,
	apperrors.KindNotFound:        http.StatusNotFound,
	apperrors.KindConflict:        http.StatusConflict,
	apperrors.KindInternal:        http.StatusInternalServerError,
}

type errorPayload struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status, ok := errorStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	payload := errorPayload{Error: string(apperrors.KindInternal), Code: "internal", Detail: "internal error"}
	var serviceErr *apperrors.ServiceError
	if errors.As(err, &serviceErr) {
		payload = errorPayload{Error: string(serviceErr.Kind()), Code: serviceErr.Code(), Detail: serviceErr.Message()}
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="`+appName+`"`)
	}
	c.JSON(status, payload)
}

func invalidRequest(reason, message string) error {
	return apperrors.New(apperrors.KindValidation, opRequest, reason, message, nil)
}

func bindJSON(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		respondError(c, apperrors.New(apperrors.KindValidation, opRequest, "invalid_json", "request body must be valid JSON", err))
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (uint, bool) {
	parsed, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || parsed == 0 {
		respondError(c, invalidRequest("invalid_"+name, name+" must be a positive integer"))
		return 0, false
	}
	return uint(parsed), true
}

// queryInt parses an optional integer query parameter. present is false when the parameter is
// absent or empty; ok is false once a 400 has been written.
func queryInt(c *gin.Context, name string) (value int, present bool, ok bool) {
	raw, found := c.GetQuery(name)
	if !found || raw == "" {
		return 0, false, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, invalidRequest("invalid_"+name, name+" must be an integer"))
		return 0, true, false
	}
	return parsed, true, true
}
