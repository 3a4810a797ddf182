package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"music-api-go/logcolors"
	"music-api-go/stats"
)

// Device auth headers. Each device derives a per-request key from its
// identity, a timestamp and the shared secret.
const (
	headerMAC       = "X-MAC-Address"
	headerChipID    = "X-Chip-ID"
	headerTimestamp = "X-Timestamp"
	headerKey       = "X-Dynamic-Key"
)

// DeriveDynamicKey computes the expected auth key for the given device
// identity and timestamp: the first 32 hex chars of
// sha256("mac:chipID:timestamp:secret"), uppercased.
func DeriveDynamicKey(mac, chipID string, timestamp int64, secret string) string {
	data := fmt.Sprintf("%s:%s:%d:%s", mac, chipID, timestamp, secret)
	sum := sha256.Sum256([]byte(data))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:32])
}

// DeviceAuthMiddleware authenticates embedded devices by their derived
// dynamic key. Paths covered by publicPaths skip authentication.
// maxSkew bounds how old or new the timestamp may be; zero disables the
// freshness check.
func DeviceAuthMiddleware(secret string, maxSkew time.Duration, publicPaths []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range publicPaths {
				if isPublicPath(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if !verifyDevice(r, secret, maxSkew) {
				stats.Get().RecordAuthRejected()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isPublicPath matches on path boundaries so that "/stats" covers
// "/stats" and "/stats/..." but not "/statsfoo". Entries ending in "/"
// match as plain prefixes.
func isPublicPath(path, public string) bool {
	if strings.HasSuffix(public, "/") {
		return strings.HasPrefix(path, public)
	}
	return path == public || strings.HasPrefix(path, public+"/")
}

func verifyDevice(r *http.Request, secret string, maxSkew time.Duration) bool {
	mac := r.Header.Get(headerMAC)
	chipID := r.Header.Get(headerChipID)
	timestampStr := r.Header.Get(headerTimestamp)
	dynamicKey := r.Header.Get(headerKey)

	if mac == "" || chipID == "" || timestampStr == "" || dynamicKey == "" {
		log.Warnf("%s Missing auth headers from %s", logcolors.LogAuth, r.RemoteAddr)
		return false
	}

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		log.Warnf("%s Invalid timestamp %q from %s", logcolors.LogAuth, timestampStr, r.RemoteAddr)
		return false
	}

	if maxSkew > 0 {
		skew := time.Since(time.Unix(timestamp, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > maxSkew {
			log.Warnf("%s Stale timestamp from %s (skew %v, max %v)", logcolors.LogAuth, r.RemoteAddr, skew.Round(time.Second), maxSkew)
			return false
		}
	}

	expected := DeriveDynamicKey(mac, chipID, timestamp, secret)
	if !strings.EqualFold(dynamicKey, expected) {
		log.Warnf("%s Invalid dynamic key from %s (mac %s)", logcolors.LogAuth, r.RemoteAddr, mac)
		return false
	}

	return true
}
