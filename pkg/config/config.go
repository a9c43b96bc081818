package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port      string
	JWTSecret string

	// Database
	DatabaseURL string

	// Gmail OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GmailAccessToken   string
	GmailRefreshToken  string

	// Accounts to triage, e.g. "gmail:work,imap:personal"
	Accounts []Account

	// IMAP (used by accounts with provider "imap")
	IMAPServer   string
	IMAPUsername string
	IMAPPassword string

	// Chat feed (used by accounts with provider "imessage"): path to the
	// JSON export written by the host-side exporter.
	ChatFeedPath string

	// AI provider
	AIProvider    string
	GeminiAPIKey  string
	OllamaBaseURL string
	OllamaModel   string

	// Pipeline
	FetchLimit       int
	MinDraftPriority int
	RunInterval      time.Duration

	// Stale-unread drafting: messages still unread after this long are
	// draft candidates even below MinDraftPriority, down to this floor.
	StaleUnreadAfter time.Duration
	StaleMinPriority int

	Scoring   ScoringConfig
	RateLimit RateLimitConfig
	Budget    BudgetConfig
	Filter    FilterConfig
}

// Account identifies one connected mailbox.
type Account struct {
	Provider string
	ID       string
}

// ScoringConfig holds the priority model's weights and keyword lists.
// The scorer itself contains no literal weights; everything tunable lives here.
type ScoringConfig struct {
	VIPSenders         []string
	VIPDomains         []string
	UrgentKeywords     []string
	SpamIndicators     []string
	NewsletterPatterns []string

	VIPBonus          int
	KeywordBonus      int
	ImportantBonus    int
	UnreadBonus       int
	AttachmentBonus   int
	SpamPenalty       int
	StalePenalty      int
	NewsletterPenalty int

	StaleAfter time.Duration

	// RecencyBands award a bonus to messages younger than the band's
	// window; the first matching band wins, so keep them sorted ascending.
	RecencyBands []RecencyBand
}

// RecencyBand is one (window, bonus) step of the recency ladder.
type RecencyBand struct {
	Within time.Duration
	Bonus  int
}

type RateLimitConfig struct {
	MaxDraftsPerRun int
	MaxHourlyCalls  int
	MaxDailyCalls   int
	MinDelay        time.Duration
	DuplicateWindow time.Duration
}

type BudgetConfig struct {
	MaxContextTokens int
}

// FilterConfig drives the sender filter (skip/always-draft rules).
type FilterConfig struct {
	SkipPatterns          []string
	SkipDomains           []string
	SkipRelationshipTypes []string
	AlwaysDraftPatterns   []string
	AlwaysDraftDomains    []string
	AlwaysDraftPriority   int
	CriticalKeywords      []string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=triage port=5432 sslmode=disable"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GmailAccessToken:   getEnv("GMAIL_ACCESS_TOKEN", ""),
		GmailRefreshToken:  getEnv("GMAIL_REFRESH_TOKEN", ""),

		Accounts: parseAccounts(getEnv("TRIAGE_ACCOUNTS", "")),

		IMAPServer:   getEnv("IMAP_SERVER", ""),
		IMAPUsername: getEnv("IMAP_USERNAME", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),

		ChatFeedPath: getEnv("CHAT_FEED_PATH", ""),

		AIProvider:    getEnv("AI_PROVIDER", "auto"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		FetchLimit:       getEnvInt("FETCH_LIMIT", 50),
		MinDraftPriority: getEnvInt("MIN_DRAFT_PRIORITY", 80),
		RunInterval:      getEnvDuration("RUN_INTERVAL", 15*time.Minute),

		StaleUnreadAfter: getEnvDuration("STALE_UNREAD_AFTER", 8*time.Hour),
		StaleMinPriority: getEnvInt("STALE_MIN_PRIORITY", 40),

		Scoring:   loadScoring(),
		RateLimit: loadRateLimit(),
		Budget: BudgetConfig{
			MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 25000),
		},
		Filter: loadFilter(),
	}
}

func loadScoring() ScoringConfig {
	return ScoringConfig{
		VIPSenders: getEnvList("VIP_SENDERS", nil),
		VIPDomains: getEnvList("VIP_DOMAINS", nil),
		UrgentKeywords: getEnvList("URGENT_KEYWORDS", []string{
			"urgent", "asap", "important", "critical", "action required",
			"deadline", "expiring", "payment", "invoice", "security alert",
			"password reset",
		}),
		SpamIndicators: getEnvList("SPAM_INDICATORS", []string{
			"unsubscribe", "no-reply", "noreply", "newsletter", "marketing",
			"promotional",
		}),
		NewsletterPatterns: getEnvList("NEWSLETTER_PATTERNS", []string{
			`newsletter`, `digest`, `weekly\s+(update|roundup)`,
			`daily\s+(update|digest)`, `unsubscribe`,
		}),
		VIPBonus:          getEnvInt("SCORE_VIP_BONUS", 30),
		KeywordBonus:      getEnvInt("SCORE_KEYWORD_BONUS", 20),
		ImportantBonus:    getEnvInt("SCORE_IMPORTANT_BONUS", 15),
		UnreadBonus:       getEnvInt("SCORE_UNREAD_BONUS", 10),
		AttachmentBonus:   getEnvInt("SCORE_ATTACHMENT_BONUS", 5),
		SpamPenalty:       getEnvInt("SCORE_SPAM_PENALTY", 30),
		StalePenalty:      getEnvInt("SCORE_STALE_PENALTY", 20),
		NewsletterPenalty: getEnvInt("SCORE_NEWSLETTER_PENALTY", 15),
		StaleAfter:        getEnvDuration("SCORE_STALE_AFTER", 7*24*time.Hour),
		RecencyBands:      parseRecencyBands(getEnv("SCORE_RECENCY_BANDS", "1h:15,6h:10,24h:5")),
	}
}

// parseRecencyBands reads "window:bonus" pairs, e.g. "1h:15,6h:10,24h:5".
// Malformed entries are dropped.
func parseRecencyBands(raw string) []RecencyBand {
	var bands []RecencyBand
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			continue
		}
		within, err := time.ParseDuration(parts[0])
		if err != nil {
			continue
		}
		bonus, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		bands = append(bands, RecencyBand{Within: within, Bonus: bonus})
	}
	return bands
}

func loadRateLimit() RateLimitConfig {
	return RateLimitConfig{
		MaxDraftsPerRun: getEnvInt("MAX_DRAFTS_PER_RUN", 10),
		MaxHourlyCalls:  getEnvInt("MAX_HOURLY_CALLS", 20),
		MaxDailyCalls:   getEnvInt("MAX_DAILY_CALLS", 100),
		MinDelay:        getEnvDuration("MIN_CALL_DELAY", 2*time.Second),
		DuplicateWindow: getEnvDuration("DUPLICATE_WINDOW", 30*time.Minute),
	}
}

func loadFilter() FilterConfig {
	return FilterConfig{
		SkipPatterns: getEnvList("FILTER_SKIP_PATTERNS", []string{
			"no-reply@*", "noreply@*",
		}),
		SkipDomains: getEnvList("FILTER_SKIP_DOMAINS", []string{
			"mailchimp.com", "sendgrid.net",
		}),
		SkipRelationshipTypes: getEnvList("FILTER_SKIP_RELATIONSHIPS", []string{
			"automated", "newsletter",
		}),
		AlwaysDraftPatterns: getEnvList("FILTER_VIP_PATTERNS", nil),
		AlwaysDraftDomains:  getEnvList("FILTER_VIP_DOMAINS", nil),
		AlwaysDraftPriority: getEnvInt("FILTER_VIP_PRIORITY", 90),
		CriticalKeywords: getEnvList("FILTER_CRITICAL_KEYWORDS", []string{
			"urgent", "critical", "emergency",
		}),
	}
}

func parseAccounts(raw string) []Account {
	if raw == "" {
		return nil
	}
	var accounts []Account
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		accounts = append(accounts, Account{Provider: parts[0], ID: parts[1]})
	}
	return accounts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
