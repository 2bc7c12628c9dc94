package webhook

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const codePrefix = "CINE"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// CodeFunc produces a confirmation code for a settled transaction
type CodeFunc func(transactionID string) string

// NewCodeGenerator returns the default generator: CINE-<base36 millis>-<6
// random base36 chars>, uppercased. The code for a transaction is generated
// once and then read back from the outcome store.
func NewCodeGenerator(now func() time.Time) CodeFunc {
	if now == nil {
		now = time.Now
	}
	return func(string) string {
		ts := strconv.FormatInt(now().UnixMilli(), 36)
		return strings.ToUpper(codePrefix + "-" + ts + "-" + randomBase36(6))
	}
}

func randomBase36(n int) string {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			sb.WriteByte('0')
			continue
		}
		sb.WriteByte(base36[idx.Int64()])
	}
	return sb.String()
}
