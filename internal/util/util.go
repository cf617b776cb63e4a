package util

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"
	"time"

	constants "nombroludo/internal/constants"
)

func FormatUptime(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())
	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour%s, %d minute%s, %d second%s",
			hours, Plural(hours),
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	case minutes > 0:
		return fmt.Sprintf("%d minute%s, %d second%s",
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	default:
		return fmt.Sprintf("%d second%s", seconds, Plural(seconds))
	}
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		LogWarn("Invalid duration for %s: %v, using default %v", key, err, fallback)
		return fallback
	}
	return d
}

func GetEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		LogWarn("Invalid int for %s: %v, using default %d", key, err, fallback)
		return fallback
	}
	return i
}

const accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomAccessCode returns a code of length n over the upper-case
// alphanumeric alphabet. Codes are not guaranteed globally unique.
func RandomAccessCode(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(accessCodeAlphabet))))
		if err != nil {
			LogWarn("Error generating random access code index: %v, using fallback", err)
			buf[i] = accessCodeAlphabet[0]
			continue
		}
		buf[i] = accessCodeAlphabet[idx.Int64()]
	}
	return string(buf)
}

// RandomFirstTurn flips a fair coin between player 1 and player 2.
func RandomFirstTurn() int {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		LogWarn("Error generating random first turn: %v, using fallback", err)
		return constants.PlayerOne
	}
	if n.Int64() == 0 {
		return constants.PlayerOne
	}
	return constants.PlayerTwo
}

func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(constants.RequestIDKey).(string)
	return reqID
}

func LogInfo(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}

func LogWarn(format string, v ...any) {
	log.Printf("[WARN] "+format, v...)
}

func LogFatal(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}
