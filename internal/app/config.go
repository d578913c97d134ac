package app

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr        string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	LogLevel        string
	LogFormat       string

	TorrentDataDir  string
	TorrentCacheDir string
	SeedDir         string

	AutoSeed           bool // re-admit seed files at startup
	KeepDownloadedData bool // skip data deletion on teardown
	KeepTorrentFiles   bool // skip seed file deletion on teardown

	MaxConnsPerSession     int
	DownloadRateLimitBytes int64
	UploadRateLimitBytes   int64

	SeedGraceMs       int64
	MetadataTimeoutMs int64
	ReadaheadBytes    int64

	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DB", "swarmstream"),
		MongoCollection: getEnv("MONGO_COLLECTION", "stream_events"),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),

		TorrentDataDir:  getEnv("TORRENT_DATA_DIR", "data"),
		TorrentCacheDir: getEnv("TORRENT_CACHE_DIR", "cache"),
		SeedDir:         getEnv("SEED_DIR", "seeds"),

		AutoSeed:           getEnvBool("AUTO_SEED", false),
		KeepDownloadedData: getEnvBool("KEEP_DOWNLOADED_FILES", false),
		KeepTorrentFiles:   getEnvBool("KEEP_TORRENT_FILES", false),

		MaxConnsPerSession:     int(getEnvInt64("TORRENT_MAX_CONNS", 50)),
		DownloadRateLimitBytes: getEnvInt64("DOWNLOAD_RATE_LIMIT_BYTES", 20<<20),
		UploadRateLimitBytes:   getEnvInt64("UPLOAD_RATE_LIMIT_BYTES", 1<<20),

		SeedGraceMs:       getEnvInt64("SEED_GRACE_MS", 60_000),
		MetadataTimeoutMs: getEnvInt64("METADATA_TIMEOUT_MS", 5_000),
		ReadaheadBytes:    getEnvInt64("STREAM_READAHEAD_BYTES", 8<<20),

		CORSAllowedOrigins: splitCommaList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitCommaList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
