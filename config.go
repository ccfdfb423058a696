package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MongoURI  string
	MongoDB   string
	JWTSecret string
	Port      string

	LogLevel  string
	LogFormat string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GeocoderURL string
	CORSOrigins []string

	// Clustering tolerances in decimal degrees, applied to both axes.
	AttachEpsilon float64
	SweepEpsilon  float64
	SweepCron     string // empty disables the scheduled sweep
	SweepTimeout  time.Duration
}

func mustConfig() Config {
	cfg := Config{
		MongoURI:  getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:   getenv("MONGO_DB", "communityera"),
		JWTSecret: getenv("JWT_SECRET", "change_me"),
		Port:      getenv("PORT", "5001"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		GeocoderURL: getenv("GEOCODER_URL", ""),
		CORSOrigins: splitList(getenv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:5173")),

		AttachEpsilon: getenvFloat("CLUSTER_ATTACH_EPSILON", 0.001),
		SweepEpsilon:  getenvFloat("CLUSTER_SWEEP_EPSILON", 0.002),
		SweepCron:     getenv("CLUSTER_SWEEP_CRON", ""),
		SweepTimeout:  getenvDuration("CLUSTER_SWEEP_TIMEOUT", 5*time.Minute),
	}

	return cfg
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v, err := strconv.Atoi(getenv(k, "")); err == nil {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getenv(k, ""), 64); err == nil && v > 0 {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getenv(k, "")); err == nil && v > 0 {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
