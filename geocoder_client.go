package main

import (
	"context"
	"fmt"
	"time"

	"communityera/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// nominatimResp is the subset of a Nominatim /reverse answer we read.
type nominatimResp struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// geocoder turns coordinates into a human-readable address.
// A nil *geocoder is valid and always answers with the coordinate label.
type geocoder struct {
	http    *resty.Client
	timeout time.Duration
	log     *zap.Logger
}

// geocodeTimeout bounds one lookup; report creation shares its deadline with
// the cluster match and insert.
const geocodeTimeout = 3 * time.Second

// newGeocoder returns nil when no base URL is configured.
func newGeocoder(baseURL string, log *zap.Logger) *geocoder {
	if baseURL == "" {
		return nil
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(geocodeTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "communityera-api/1.0")
	return &geocoder{http: client, timeout: geocodeTimeout, log: log.Named("geocoder")}
}

// reverse looks up the display name for c.
func (g *geocoder) reverse(ctx context.Context, c models.Coordinates) (string, error) {
	var out nominatimResp
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"format": "jsonv2",
			"lat":    fmt.Sprintf("%.6f", c.Lat),
			"lon":    fmt.Sprintf("%.6f", c.Lng),
		}).
		SetResult(&out).
		Get("/reverse")
	if err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", fmt.Errorf("reverse geocode: %s", out.Error)
	}
	if out.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode: empty display name")
	}
	return out.DisplayName, nil
}

// describeLocation is best effort: any lookup failure falls back to the
// coordinate label so report creation never depends on the geocoder.
func (g *geocoder) describeLocation(ctx context.Context, c models.Coordinates) string {
	if g == nil {
		return coordinateLabel(c)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	addr, err := g.reverse(ctx, c)
	if err != nil {
		g.log.Warn("reverse geocode failed, using coordinates",
			zap.Float64("lat", c.Lat),
			zap.Float64("lng", c.Lng),
			zap.Error(err),
		)
		return coordinateLabel(c)
	}
	return addr
}

func coordinateLabel(c models.Coordinates) string {
	return fmt.Sprintf("Lat: %.6f, Lng: %.6f", c.Lat, c.Lng)
}
