package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/middleware"
	"github.com/soundly/backend/internal/models"
)

// pageParams reads page and page_size; services clamp the values
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return page, size
}

func pagination(page, size int, total int64) gin.H {
	if page < 1 {
		page = 1
	}
	return gin.H{"page": page, "page_size": size, "total": total}
}

// currentUser aborts with 401 when Auth did not run
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return id, ok
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// publicUser is the profile shape shown to other users
func publicUser(u *models.User) gin.H {
	if u == nil {
		return nil
	}
	return gin.H{
		"id":                u.ID,
		"username":          u.Username,
		"name":              u.DisplayName(),
		"profile_image_url": u.ProfileImageURL,
		"profession":        u.Profession,
		"country":           u.Country,
		"city":              u.City,
	}
}
