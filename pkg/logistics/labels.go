// Package logistics simulates prepaid return-label issuance behind the
// same interface a real carrier integration would use.
package logistics

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

var carriers = []string{"USPS", "UPS", "FEDEX"}

const labelBaseURL = "https://returns.example.com/labels"

// LabelIssuer produces tracking numbers and label references.
type LabelIssuer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLabelIssuer returns an issuer seeded from seed. Pass a fixed seed for
// reproducible output in tests and demos.
func NewLabelIssuer(seed int64) *LabelIssuer {
	return &LabelIssuer{rng: rand.New(rand.NewSource(seed))}
}

// Issue generates a carrier tracking number and a label URL for the RMA.
// It performs no persistence; the caller records the result on the RMA.
func (li *LabelIssuer) Issue(rmaNumber string) contracts.LabelResult {
	li.mu.Lock()
	carrier := carriers[li.rng.Intn(len(carriers))]
	var digits strings.Builder
	for i := 0; i < 12; i++ {
		digits.WriteByte(byte('0' + li.rng.Intn(10)))
	}
	li.mu.Unlock()

	return contracts.LabelResult{
		RMANumber:      rmaNumber,
		TrackingNumber: fmt.Sprintf("%s-%s", carrier, digits.String()),
		LabelURL:       fmt.Sprintf("%s/%s.pdf", labelBaseURL, rmaNumber),
	}
}

// Carrier extracts the carrier prefix from a tracking number, defaulting
// to USPS when the format is unrecognized.
func Carrier(trackingNumber string) string {
	prefix, _, ok := strings.Cut(trackingNumber, "-")
	if !ok || prefix == "" {
		return "USPS"
	}
	return prefix
}
