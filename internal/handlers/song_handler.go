package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/soundly/backend/internal/matching"
	"github.com/soundly/backend/internal/services"
	"github.com/soundly/backend/pkg/validation"
)

type SongHandler struct {
	songService     *services.SongService
	exchangeService *services.ExchangeService
}

func NewSongHandler(songService *services.SongService, exchangeService *services.ExchangeService) *SongHandler {
	return &SongHandler{songService: songService, exchangeService: exchangeService}
}

// CreateSong imports a song and runs matching
func (h *SongHandler) CreateSong(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		URL    string   `json:"url"`
		Title  string   `json:"title"`
		Artist string   `json:"artist"`
		Album  string   `json:"album"`
		Genres []string `json:"genres"`
		Mode   string   `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.URL != "" && !validation.ValidateSpotifyTrackURL(req.URL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Spotify track URL"})
		return
	}
	if !validation.ValidateGenres(req.Genres) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many or too long genre tags"})
		return
	}

	res, err := h.songService.Upload(c.Request.Context(), userID, services.UploadInput{
		URL:    req.URL,
		Title:  validation.SanitizeString(req.Title),
		Artist: validation.SanitizeString(req.Artist),
		Album:  validation.SanitizeString(req.Album),
		Genres: req.Genres,
		Mode:   req.Mode,
	})
	switch {
	case errors.Is(err, matching.ErrUnknownMode), errors.Is(err, services.ErrMissingMetadata):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to import song"})
		return
	}

	if res.Existing {
		c.JSON(http.StatusOK, gin.H{
			"message": "You have already added this song",
			"song":    res.Song,
		})
		return
	}

	message := "Song imported successfully"
	body := gin.H{
		"song":         res.Song,
		"auto_matched": res.Match.Matched(),
		"mode":         res.Match.Mode,
	}
	if res.Match.Matched() {
		body["matched_with"] = gin.H{
			"song":       res.Match.Song,
			"user":       publicUser(res.MatchedUser),
			"similarity": res.Match.Similarity,
		}
		body["exchange_id"] = res.Match.Exchange.ID
	} else {
		message += ". No automatic match found, added to matching pool."
	}
	body["message"] = message

	c.JSON(http.StatusCreated, body)
}

// GetSongs lists songs, optionally only the caller's (?mine=true)
func (h *SongHandler) GetSongs(c *gin.Context) {
	page, size := pageParams(c)

	var uploader *uuid.UUID
	if mine, _ := strconv.ParseBool(c.DefaultQuery("mine", "false")); mine {
		userID, ok := currentUser(c)
		if !ok {
			return
		}
		uploader = &userID
	}

	songs, total, err := h.songService.List(c.Request.Context(), uploader, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch songs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"songs":      songs,
		"pagination": pagination(page, size, total),
	})
}

// GetSong returns a single song
func (h *SongHandler) GetSong(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	song, err := h.songService.Get(c.Request.Context(), id)
	if errors.Is(err, services.ErrSongNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Song not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch song"})
		return
	}
	c.JSON(http.StatusOK, song)
}

// GetReceivedSongs lists the songs the caller got back from exchanges
func (h *SongHandler) GetReceivedSongs(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := pageParams(c)

	rows, total, err := h.exchangeService.ReceivedSongs(c.Request.Context(), userID, page, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch received songs"})
		return
	}

	items := make([]gin.H, 0, len(rows))
	for i := range rows {
		ex := &rows[i]
		items = append(items, gin.H{
			"exchange_id":   ex.ID,
			"status":        ex.Status,
			"matched_at":    ex.MatchedAt,
			"sent_song":     ex.SentSong,
			"received_song": ex.ReceivedSong,
			"from":          publicUser(ex.Receiver),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"received":   items,
		"pagination": pagination(page, size, total),
	})
}

// GetGenreDistribution returns genre counts across the catalog
func (h *SongHandler) GetGenreDistribution(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	dist, err := h.songService.GenreDistribution(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute genre distribution"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": dist})
}
