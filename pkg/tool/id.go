package tool

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const TransactionIDPrefix = "TXN-"

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateTransactionID returns an idempotency key of the form TXN-<unix ms>-<rand>.
func GenerateTransactionID(now time.Time) string {
	return fmt.Sprintf("%s%d-%s", TransactionIDPrefix, now.UnixMilli(), RandomToken(8))
}

// RandomToken returns n upper-case hex characters (n <= 32).
func RandomToken(n int) string {
	s := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	if n <= 0 || n > len(s) {
		return s
	}
	return s[:n]
}
