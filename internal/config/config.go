package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dialer process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Twilio TwilioConfig
	Dialer DialerConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable base URL used to build the
	// provider status-callback URL.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
}

// DialerConfig carries the dialing heuristics. These are tunable business
// knobs, not structural constants; defaults are applied in Validate().
type DialerConfig struct {
	// PerAgentFanout is how many simultaneous dials each idle agent is worth.
	// Over-dialing covers answer-rate loss and machine detection.
	PerAgentFanout int

	// MaxAttempts caps dial attempts per queue item before it is exhausted.
	MaxAttempts int

	// CycleInterval is the period between scheduler dial cycles.
	CycleInterval time.Duration

	// StaleThreshold is how long an agent may hold a call reference before the
	// reconciler double-checks it.
	StaleThreshold time.Duration

	// SweepInterval is the reconciler period.
	SweepInterval time.Duration

	// DialTimeout bounds how long the provider lets a call ring.
	DialTimeout time.Duration

	// MachineDetectionTimeout bounds the provider's answering machine detection.
	MachineDetectionTimeout time.Duration

	// MaxInFlightCalls caps concurrently in-flight calls per workspace.
	MaxInFlightCalls int

	// CallerIDs is the pool of originating numbers (E.164, comma-separated in env).
	CallerIDs []string

	// AreaCodeMatch picks a caller ID sharing the target's area code when set.
	AreaCodeMatch bool
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_PUBLIC_BASE_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")

	c.Dialer.PerAgentFanout = optInt("DIALER_FANOUT")
	c.Dialer.MaxAttempts = optInt("DIALER_MAX_ATTEMPTS")
	c.Dialer.CycleInterval = optDuration("DIALER_CYCLE_INTERVAL")
	c.Dialer.StaleThreshold = optDuration("DIALER_STALE_THRESHOLD")
	c.Dialer.SweepInterval = optDuration("DIALER_SWEEP_INTERVAL")
	c.Dialer.DialTimeout = optDuration("DIALER_DIAL_TIMEOUT")
	c.Dialer.MachineDetectionTimeout = optDuration("DIALER_AMD_TIMEOUT")
	c.Dialer.MaxInFlightCalls = optInt("DIALER_MAX_IN_FLIGHT")
	c.Dialer.CallerIDs = splitList(os.Getenv("DIALER_CALLER_IDS"))
	c.Dialer.AreaCodeMatch = optBool("DIALER_CALLERID_AREA_MATCH")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" && c.IsProduction() {
		errs = append(errs, errors.New("APP_PUBLIC_BASE_URL is required in production (status callbacks)"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required in production"))
		}
		if len(c.Dialer.CallerIDs) == 0 {
			errs = append(errs, errors.New("DIALER_CALLER_IDS is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.Dialer.PerAgentFanout <= 0 {
		c.Dialer.PerAgentFanout = 2
	}
	if c.Dialer.PerAgentFanout > 10 {
		errs = append(errs, fmt.Errorf("DIALER_FANOUT must be <= 10, got %d", c.Dialer.PerAgentFanout))
	}
	if c.Dialer.MaxAttempts <= 0 {
		c.Dialer.MaxAttempts = 3
	}
	if c.Dialer.CycleInterval <= 0 {
		c.Dialer.CycleInterval = 5 * time.Second
	}
	if c.Dialer.StaleThreshold <= 0 {
		c.Dialer.StaleThreshold = 30 * time.Minute
	}
	if c.Dialer.SweepInterval <= 0 {
		c.Dialer.SweepInterval = time.Minute
	}
	if c.Dialer.DialTimeout <= 0 {
		c.Dialer.DialTimeout = 30 * time.Second
	}
	if c.Dialer.MachineDetectionTimeout <= 0 {
		c.Dialer.MachineDetectionTimeout = 5 * time.Second
	}
	if c.Dialer.MaxInFlightCalls <= 0 {
		c.Dialer.MaxInFlightCalls = 100
	}
	if c.Dialer.StaleThreshold <= c.Dialer.DialTimeout {
		errs = append(errs, errors.New("DIALER_STALE_THRESHOLD must be greater than DIALER_DIAL_TIMEOUT"))
	}
	for _, n := range c.Dialer.CallerIDs {
		if !strings.HasPrefix(n, "+") {
			errs = append(errs, fmt.Errorf("DIALER_CALLER_IDS entries must be E.164, got %q", n))
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// StatusCallbackURL is where the provider posts call progress.
func (c Config) StatusCallbackURL() string {
	return c.App.PublicBaseURL + "/webhooks/telephony/status"
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
