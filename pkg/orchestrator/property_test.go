//go:build property
// +build property

package orchestrator

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRMANumberUniqueness generates 10,000 RMA numbers from one generator
// and asserts no collisions, including within a single clock second.
func TestRMANumberUniqueness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 10
	properties := gopter.NewProperties(parameters)

	properties.Property("10k issued numbers never collide", prop.ForAll(
		func(seed int64) bool {
			g := newRMANumberGen(seed)
			base := time.Unix(1767225600, 0)
			issued := 0
			g.clock = func() time.Time {
				// Hold the clock for long runs of issues so same-second
				// behavior is exercised.
				return base.Add(time.Duration(issued/2500) * time.Second)
			}

			seen := make(map[string]bool, 10000)
			for i := 0; i < 10000; i++ {
				n := g.next()
				if seen[n] {
					return false
				}
				seen[n] = true
				issued++
			}
			return true
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}
