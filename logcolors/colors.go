package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Red    = "\033[31m"
)

// Storage-related log prefixes
const (
	LogStorage       = Blue + "[Storage]" + Reset
	LogStorageBackup = Blue + "[Storage:Backup]" + Reset
	LogLedger        = Green + "[Ledger]" + Reset
	LogHistory       = Blue + "[History]" + Reset
)

// Rate limiting log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogAPIKey    = Purple + "[APIKey]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}

// Server/Init log prefixes
const (
	LogServer = Green + "[Server]" + Reset
	LogConfig = Cyan + "[Config]" + Reset
	LogStats  = Blue + "[Stats]" + Reset
)

// Notification log prefixes
const (
	LogNotifier = Cyan + "[Notifier]" + Reset
)

// Gateway and backend log prefixes
const (
	LogRequest = Purple + "[Request]" + Reset
	LogGateway = Cyan + "[Gateway]" + Reset
	LogSearch  = Blue + "[Search]" + Reset
	LogAnalyze = Green + "[Analyze]" + Reset
	LogRefine  = Green + "[Refine]" + Reset
	LogGemini  = Cyan + "[Gemini]" + Reset
	LogOpenAI  = Cyan + "[OpenAI]" + Reset
	LogParser  = Cyan + "[Parser]" + Reset
	LogSession = Purple + "[Session]" + Reset
	LogClient  = Blue + "[Client]" + Reset
	LogWarning = Red + "[Warning]" + Reset
)
