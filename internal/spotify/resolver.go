// Package spotify resolves Spotify track links into song metadata.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	ErrInvalidTrackURL = errors.New("not a spotify track url")
	ErrNotConfigured   = errors.New("spotify credentials are not configured")
)

var trackIDRegex = regexp.MustCompile(`track/([a-zA-Z0-9]+)`)

// TrackInfo is the metadata Soundly keeps for a resolved track. Genres are
// the union of the genres of every credited artist.
type TrackInfo struct {
	TrackID         string
	Title           string
	Artist          string
	Album           string
	Genres          []string
	DurationSeconds int
	CoverImageURL   string
	ReleaseDate     string
}

// Resolver looks up tracks with app-level client credentials
type Resolver struct {
	api    *spotify.Client
	logger *log.Logger
}

// NewResolver builds a resolver. A blank client id or secret yields a
// resolver whose Resolve always fails with ErrNotConfigured.
func NewResolver(ctx context.Context, clientID, clientSecret string, logger *log.Logger) *Resolver {
	r := &Resolver{logger: logger}
	if clientID == "" || clientSecret == "" {
		return r
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	r.api = spotify.New(cfg.Client(ctx), spotify.WithRetry(true))
	return r
}

// ParseTrackURL extracts the track id from a Spotify track link
func ParseTrackURL(raw string) (string, error) {
	m := trackIDRegex.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTrackURL, raw)
	}
	return m[1], nil
}

// Resolve fetches track and artist data for a track link
func (r *Resolver) Resolve(ctx context.Context, trackURL string) (*TrackInfo, error) {
	if r.api == nil {
		return nil, ErrNotConfigured
	}
	id, err := ParseTrackURL(trackURL)
	if err != nil {
		return nil, err
	}

	track, err := r.api.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("getting track %s: %w", id, err)
	}

	var genres []string
	for _, a := range track.Artists {
		artist, err := r.api.GetArtist(ctx, a.ID)
		if err != nil {
			// Genres are best effort; a missing artist only narrows matching.
			r.logger.Warn("failed to fetch artist genres", "artist", a.ID, "err", err)
			continue
		}
		genres = append(genres, artist.Genres...)
	}

	info := convertTrack(track, genres)
	r.logger.Debug("resolved spotify track", "track", info.TrackID, "title", info.Title, "genres", len(info.Genres))
	return &info, nil
}

// convertTrack flattens a Spotify track into TrackInfo
func convertTrack(track *spotify.FullTrack, genres []string) TrackInfo {
	artists := make([]string, len(track.Artists))
	for i, a := range track.Artists {
		artists[i] = a.Name
	}

	info := TrackInfo{
		TrackID:         track.ID.String(),
		Title:           track.Name,
		Artist:          strings.Join(artists, ", "),
		Album:           track.Album.Name,
		Genres:          dedupe(genres),
		DurationSeconds: int(track.Duration) / 1000,
		ReleaseDate:     track.Album.ReleaseDate,
	}
	if len(track.Album.Images) > 0 {
		info.CoverImageURL = track.Album.Images[0].URL
	}
	return info
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
