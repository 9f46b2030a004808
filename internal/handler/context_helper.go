package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-attendance-api/internal/middleware"
	"github.com/noah-isme/school-attendance-api/internal/models"
	appErrors "github.com/noah-isme/school-attendance-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func parseDateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD")
	}
	return &parsed, nil
}
