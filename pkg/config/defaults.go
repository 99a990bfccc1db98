// Package config provides centralized default values for the size-core widget engine
package config

import (
	"bufio"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Host Integration (read once at bootstrap from the embedding store)
	StoreID       string
	LogoPath      string
	PoweredByLogo string
	ThemeColor    string

	// External Flow
	ExternalFlowBase string
	SocketURL        string

	// Tracking Endpoints
	TrackClickEndpoint  string
	TrackReturnEndpoint string

	// Session Coordination
	SocketConnectTimeout time.Duration
	SessionExpiryMinutes int
	DedupWindow          time.Duration

	// Injection
	MutationDebounce   time.Duration
	MaxInjectAttempts  int
	InjectBackoffBase  time.Duration
	InjectBackoffCap   int
	CameraAutoGrant    bool
	PageSnapshotWatch  bool
	PageSnapshotPath   string

	// Persisted Cache
	CacheDriver    string
	CacheDSN       string
	CacheAuthToken string

	// Embed Tokens
	EmbedTokenSecret string
	EmbedTokenTTL    time.Duration

	// Logging
	LogDirectory    string
	LogToFile       bool
	LogJSONFormat   bool
	LogDefaultLevel string
)

// FlowOrigin returns the origin of the configured external flow URL, or ""
// when the URL cannot be parsed. Computed per call so tests can override
// ExternalFlowBase.
func FlowOrigin() string {
	u, err := url.Parse(ExternalFlowBase)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Host Integration
	StoreID = getEnvString("SIZECORE_STORE_ID", "")
	LogoPath = getEnvString("SIZECORE_LOGO_PATH", "")
	PoweredByLogo = getEnvString("SIZECORE_POWERED_BY_LOGO", "")
	ThemeColor = getEnvString("SIZECORE_THEME_COLOR", "#ff6f61")

	// External Flow
	ExternalFlowBase = getEnvString("SIZECORE_FLOW_BASE", "https://staging.miqyas.ai/guided-photos?source=salla")
	SocketURL = getEnvString("SIZECORE_SOCKET_URL", "wss://staging.miqyas.ai/salla-sessions")

	// Tracking Endpoints
	TrackClickEndpoint = getEnvString("SIZECORE_TRACK_CLICK_ENDPOINT", "https://staging.miqyas.ai/track-click")
	TrackReturnEndpoint = getEnvString("SIZECORE_TRACK_RETURN_ENDPOINT", "https://staging.miqyas.ai/track-return")

	// Session Coordination
	SocketConnectTimeout = getEnvDuration("SIZECORE_SOCKET_CONNECT_TIMEOUT", 10*time.Second)
	SessionExpiryMinutes = getEnvInt("SIZECORE_SESSION_EXPIRY_MINUTES", 15)
	DedupWindow = getEnvDuration("SIZECORE_DEDUP_WINDOW", 3*time.Second)

	// Injection
	MutationDebounce = getEnvDuration("SIZECORE_MUTATION_DEBOUNCE", 180*time.Millisecond)
	MaxInjectAttempts = getEnvInt("SIZECORE_MAX_INJECT_ATTEMPTS", 10)
	InjectBackoffBase = getEnvDuration("SIZECORE_INJECT_BACKOFF_BASE", 500*time.Millisecond)
	InjectBackoffCap = getEnvInt("SIZECORE_INJECT_BACKOFF_CAP", 4)
	CameraAutoGrant = getEnvBool("SIZECORE_CAMERA_AUTO_GRANT", true)
	PageSnapshotWatch = getEnvBool("SIZECORE_PAGE_SNAPSHOT_WATCH", false)
	PageSnapshotPath = getEnvString("SIZECORE_PAGE_SNAPSHOT_PATH", "")

	// Persisted Cache
	CacheDriver = getEnvString("SIZECORE_CACHE_DRIVER", "sqlite3")
	CacheDSN = getEnvString("SIZECORE_CACHE_DSN", "size-core-cache.db")
	CacheAuthToken = getEnvString("SIZECORE_CACHE_AUTH_TOKEN", "")

	// Embed Tokens
	EmbedTokenSecret = getEnvString("SIZECORE_EMBED_TOKEN_SECRET", "")
	EmbedTokenTTL = getEnvDuration("SIZECORE_EMBED_TOKEN_TTL", 30*time.Minute)

	// Logging
	LogDirectory = getEnvString("SIZECORE_LOG_DIRECTORY", "logs")
	LogToFile = getEnvBool("SIZECORE_LOG_TO_FILE", false)
	LogJSONFormat = getEnvBool("SIZECORE_LOG_JSON", true)
	LogDefaultLevel = getEnvString("SIZECORE_LOG_LEVEL", "info")
}
