package notify

import (
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T) *Notifier {
	t.Helper()
	n, err := NewNotifier(slog.Default())
	require.NoError(t, err)
	return n.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
}

func TestSendReturnApproved(t *testing.T) {
	n := newTestNotifier(t)

	d, err := n.Send("jane@example.com", ScenarioReturnApproved, map[string]any{
		"customer_name":   "Jane",
		"order_number":    "ORD-1001",
		"rma_number":      "RMA-1709290000-ABCD",
		"items":           "Wool Sweater",
		"refund_amount":   "$49.99",
		"label_url":       "https://returns.example.com/labels/RMA-1709290000-ABCD.pdf",
		"tracking_number": "USPS-123456789012",
		"carrier":         "USPS",
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", d.Recipient)
	assert.Equal(t, ScenarioReturnApproved, d.Scenario)
	assert.Regexp(t, `^MSG-\d+-\d{4}$`, d.MessageID)
	assert.Contains(t, d.Preview, "Dear Jane")
	assert.Contains(t, d.Preview, "RMA-1709290000-ABCD")
	assert.LessOrEqual(t, len(d.Preview), PreviewLen)
}

func TestSendUnknownScenario(t *testing.T) {
	n := newTestNotifier(t)

	_, err := n.Send("jane@example.com", "order_shipped", nil)
	require.ErrorIs(t, err, ErrUnknownScenario)
}

func TestSendMissingContextFieldsStillRenders(t *testing.T) {
	n := newTestNotifier(t)

	d, err := n.Send("jane@example.com", ScenarioReturnRejected, map[string]any{
		"customer_name": "Jane",
		"order_number":  "ORD-1001",
		"reason":        "the return window has expired",
	})
	require.NoError(t, err)
	assert.Contains(t, d.Preview, "unable to process")
}

func TestPreviewBounded(t *testing.T) {
	long := strings.Repeat("x", 5*PreviewLen)
	assert.Len(t, preview(long), PreviewLen)
	assert.Equal(t, "short", preview("  short \n"))
}

func TestPreviewKeepsMultibyteTextValid(t *testing.T) {
	// Each rune is 3 bytes, so a byte-index cut would land mid-rune.
	long := strings.Repeat("返", 2*PreviewLen)
	got := preview(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), PreviewLen)
	assert.NotEmpty(t, got)
}

func TestScenariosListed(t *testing.T) {
	n := newTestNotifier(t)
	assert.ElementsMatch(t, []string{ScenarioReturnApproved, ScenarioReturnRejected, ScenarioLabelReady}, n.Scenarios())
}
