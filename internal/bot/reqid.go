package bot

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID returns a short request id: base36 time, sequence and two random chars.
func newReqID() string {
	n := ridSeq.Add(1)
	var b strings.Builder
	b.WriteString(strconv.FormatInt(time.Now().UnixNano(), 36))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(n, 36))
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	for range 2 {
		b.WriteByte(alpha[rand.IntN(len(alpha))])
	}
	return b.String()
}
