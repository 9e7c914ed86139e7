package constants

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var (
	ListenAddr  string
	FrontendUrl string

	OauthClientId     string
	OauthClientSecret string
	OauthRefreshToken string
	GmailRequestRate  float64

	MailboxSource  string
	ImapAddress    string
	ImapUsername   string
	ImapPassword   string
	ImapArchiveBox string
	ImapTrashBox   string

	CacheBackend string
	CacheDir     string
	SqlitePath   string
	PostgresDsn  string
	RedisUrl     string
	RedisPrefix  string
	GcsBucket    string
	GcsPrefix    string

	PageSize        int
	InitialPageSize int
	MaxTotal        int
	PageDelay       time.Duration
)

// Parse loads an optional .env file and then the command line. Every flag
// defaults to its environment variable when set.
func Parse() error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	return parse(flag.CommandLine, os.Args[1:])
}

func parse(fs *flag.FlagSet, args []string) error {
	fs.StringVar(&ListenAddr, "listen_addr", getEnv("LISTEN_ADDR", ":8090"), "address the HTTP server listens on")
	fs.StringVar(&FrontendUrl, "frontend_url", getEnv("FRONTEND_URL", "http://localhost:5173"), "URLs allowlisted by UI for CORS.")

	fs.StringVar(&OauthClientId, "oauth_client_id", getEnv("OAUTH_CLIENT_ID", "dummy"), "oauth client id")
	fs.StringVar(&OauthClientSecret, "oauth_client_secret", getEnv("OAUTH_CLIENT_SECRET", "dummy"), "oauth client secret")
	fs.StringVar(&OauthRefreshToken, "oauth_refresh_token", getEnv("OAUTH_REFRESH_TOKEN", ""), "refresh token of the mailbox owner")
	fs.Float64Var(&GmailRequestRate, "gmail_request_rate", getEnvFloat("GMAIL_REQUEST_RATE", 50), "Gmail API requests per second")

	fs.StringVar(&MailboxSource, "mailbox_source", getEnv("MAILBOX_SOURCE", "gmail"), "gmail or imap")
	fs.StringVar(&ImapAddress, "imap_address", getEnv("IMAP_ADDRESS", "imap.gmail.com:993"), "IMAP server host:port")
	fs.StringVar(&ImapUsername, "imap_username", getEnv("IMAP_USERNAME", ""), "IMAP login")
	fs.StringVar(&ImapPassword, "imap_password", getEnv("IMAP_PASSWORD", ""), "IMAP password or app password")
	fs.StringVar(&ImapArchiveBox, "imap_archive_mailbox", getEnv("IMAP_ARCHIVE_MAILBOX", "[Gmail]/All Mail"), "folder archived messages move to")
	fs.StringVar(&ImapTrashBox, "imap_trash_mailbox", getEnv("IMAP_TRASH_MAILBOX", "[Gmail]/Trash"), "folder trashed messages move to")

	fs.StringVar(&CacheBackend, "cache_backend", getEnv("CACHE_BACKEND", "file"), "file, sqlite, postgres, redis or gcs")
	fs.StringVar(&CacheDir, "cache_dir", getEnv("CACHE_DIR", "email_cache"), "directory of the file cache")
	fs.StringVar(&SqlitePath, "sqlite_path", getEnv("SQLITE_PATH", "email_cache/cache.db"), "SQLite cache file")
	fs.StringVar(&PostgresDsn, "postgres_dsn", getEnv("POSTGRES_DSN", "host=hdd_db port=5432 user=hddb password=hddb dbname=hdd_db sslmode=disable"), "Postgres connection string")
	fs.StringVar(&RedisUrl, "redis_url", getEnv("REDIS_URL", "redis://localhost:6379/0"), "Redis connection URL")
	fs.StringVar(&RedisPrefix, "redis_prefix", getEnv("REDIS_PREFIX", "inboxsweep:"), "key prefix of the Redis cache")
	fs.StringVar(&GcsBucket, "gcs_bucket", getEnv("GCS_BUCKET", ""), "bucket of the GCS cache")
	fs.StringVar(&GcsPrefix, "gcs_prefix", getEnv("GCS_PREFIX", "email_cache/"), "object prefix of the GCS cache")

	fs.IntVar(&PageSize, "page_size", getEnvInt("PAGE_SIZE", 100), "messages per page of the background fetch")
	fs.IntVar(&InitialPageSize, "initial_page_size", getEnvInt("INITIAL_PAGE_SIZE", 50), "messages fetched for a cold listing")
	fs.IntVar(&MaxTotal, "max_total", getEnvInt("MAX_TOTAL", 0), "stop fetching after this many messages, 0 for no limit")
	fs.DurationVar(&PageDelay, "page_delay", getEnvDuration("PAGE_DELAY", 500*time.Millisecond), "pause between pages")

	if err := fs.Parse(args); err != nil {
		return err
	}
	return validate()
}

func validate() error {
	switch MailboxSource {
	case "gmail", "imap":
	default:
		return fmt.Errorf("unknown mailbox source %q", MailboxSource)
	}
	if PageSize <= 0 || InitialPageSize <= 0 {
		return fmt.Errorf("page sizes must be positive (page_size=%d, initial_page_size=%d)", PageSize, InitialPageSize)
	}
	if MaxTotal < 0 {
		return fmt.Errorf("max_total must not be negative: %d", MaxTotal)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
