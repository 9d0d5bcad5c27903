package orchestrator

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const suffixSpace = 26 * 26 * 26 * 26

// rmaNumberGen issues globally unique RMA numbers: a Unix-timestamp prefix
// plus a four-letter suffix. The suffix walks a full cycle of the letter
// space from a random start, so numbers issued within the same second
// never collide until the space wraps.
type rmaNumberGen struct {
	mu      sync.Mutex
	clock   func() time.Time
	counter int
}

func newRMANumberGen(seed int64) *rmaNumberGen {
	return &rmaNumberGen{
		clock:   time.Now,
		counter: rand.New(rand.NewSource(seed)).Intn(suffixSpace),
	}
}

func (g *rmaNumberGen) next() string {
	g.mu.Lock()
	n := g.counter
	g.counter = (g.counter + 1) % suffixSpace
	now := g.clock()
	g.mu.Unlock()

	var suffix [4]byte
	for i := 3; i >= 0; i-- {
		suffix[i] = byte('A' + n%26)
		n /= 26
	}
	return fmt.Sprintf("RMA-%d-%s", now.Unix(), suffix[:])
}
