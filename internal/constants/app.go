package constants

// Application Information
const (
	AppName    = "ViewTube Backend"
	AppVersion = "1.0.0"
)

// Environment Types
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Default Application Settings
const (
	DefaultPort        = "8000"
	DefaultEnvironment = EnvDevelopment
)

// Session cookie names. Both cookies are httpOnly+secure; the refresh
// token travels only via its cookie or an explicit body field, never the
// Authorization header.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
)

// Bearer prefix accepted on the Authorization header (access token only)
const BearerPrefix = "Bearer "

// Rate limiter key prefixes
const (
	RateLimitKeyPrefix = "viewtube:ratelimit:"
)

// Log Levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
)
