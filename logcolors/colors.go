package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Yellow = "\033[33m"
	Red    = "\033[31m"
)

// Cache-related log prefixes
const (
	LogCacheInit = Blue + "[Cache:Init]" + Reset
	LogCache     = Blue + "[Cache]" + Reset
	LogCacheHit  = Green + "[Cache:Hit]" + Reset
	LogCacheMiss = Cyan + "[Cache:Miss]" + Reset
	LogEvict     = Blue + "[Evict]" + Reset
)

// Fetch pipeline log prefixes
const (
	LogFetch   = Green + "[Fetch]" + Reset
	LogSynth   = Cyan + "[Synth]" + Reset
	LogResolve = Blue + "[Resolve]" + Reset
	LogYtdlp   = Purple + "[Ytdlp]" + Reset
	LogSweep   = Red + "[Sweep]" + Reset
)

// Request handling log prefixes
const (
	LogServer    = Green + "[Server]" + Reset
	LogAuth      = Purple + "[Auth]" + Reset
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogStream    = Blue + "[Stream]" + Reset
	LogSearch    = Blue + "[Search]" + Reset
	LogStats     = Blue + "[Stats]" + Reset
)

// Telemetry bridge log prefixes
const (
	LogBridge     = Cyan + "[Bridge]" + Reset
	LogBridgeMQTT = Purple + "[Bridge:MQTT]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}
