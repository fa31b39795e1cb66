package authority

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
)

// Routes mounts the account and absent endpoints on r. Absent routes
// require a bearer token signed with signingKey.
func Routes(r gin.IRouter, svc *Service, signingKey, issuer string) {
	r.POST("/login", func(c *gin.Context) {
		var creds auth.Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, err := svc.Login(c.Request.Context(), creds)
		if err != nil {
			writeError(c, svc.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})

	r.POST("/register", func(c *gin.Context) {
		var profile auth.Profile
		if err := c.ShouldBindJSON(&profile); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, err := svc.Register(c.Request.Context(), profile)
		if err != nil {
			writeError(c, svc.log, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token})
	})

	absents := r.Group("/absents", auth.Bearer(signingKey, issuer))

	absents.GET("", func(c *gin.Context) {
		records, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, svc.log, err)
			return
		}
		c.JSON(http.StatusOK, records)
	})

	absents.POST("/posts", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		var rec attendance.Record
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		created, err := svc.Create(c.Request.Context(), claims, rec)
		if err != nil {
			writeError(c, svc.log, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	absents.PUT("/:id", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		var rec attendance.Record
		if err := c.ShouldBindJSON(&rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updated, err := svc.Update(c.Request.Context(), claims, c.Param("id"), rec)
		if err != nil {
			writeError(c, svc.log, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	absents.DELETE("/:id", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		if err := svc.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
			writeError(c, svc.log, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func writeError(c *gin.Context, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrDuplicateAbsent):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
