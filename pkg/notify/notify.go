// Package notify simulates customer notification. Messages are rendered
// from a fixed set of named scenarios and "delivered" by logging; the
// interface is the one a real mail provider integration would implement.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/Mindburn-Labs/returns-core/pkg/contracts"
)

// ErrUnknownScenario is returned when the scenario name does not match a
// registered template.
var ErrUnknownScenario = errors.New("unknown notification scenario")

// PreviewLen bounds the rendered-message preview returned to callers.
const PreviewLen = 200

const (
	ScenarioReturnApproved = "return_approved"
	ScenarioReturnRejected = "return_rejected"
	ScenarioLabelReady     = "label_ready"
)

var scenarioTemplates = map[string]string{
	ScenarioReturnApproved: `Dear {{.customer_name}},

Your return request has been approved!

Order Number: {{.order_number}}
RMA Number: {{.rma_number}}
Items: {{.items}}
Refund Amount: {{.refund_amount}}

Your prepaid shipping label is ready. You can download it here:
{{.label_url}}

Tracking Number: {{.tracking_number}}

Please pack your items securely and drop off the package at any {{.carrier}} location.
Once we receive your return, we'll process your refund within 3-5 business days.

Thank you for your business!

Best regards,
Customer Service Team
`,
	ScenarioReturnRejected: `Dear {{.customer_name}},

Thank you for contacting us about your return request for Order #{{.order_number}}.

Unfortunately, we're unable to process this return because:
{{.reason}}

{{.additional_info}}

If you have any questions or would like to discuss alternatives, please don't hesitate to contact us.

Best regards,
Customer Service Team
`,
	ScenarioLabelReady: `Dear {{.customer_name}},

Your return shipping label is ready!

Order Number: {{.order_number}}
RMA Number: {{.rma_number}}
Tracking Number: {{.tracking_number}}

Download your label here: {{.label_url}}

Please print the label and attach it to your package. Drop it off at any {{.carrier}} location.

Thank you!

Best regards,
Customer Service Team
`,
}

// Notifier renders and "sends" scenario messages. Templates are parsed
// once at construction.
type Notifier struct {
	templates map[string]*template.Template
	logger    *slog.Logger
	clock     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewNotifier parses the built-in scenario templates.
func NewNotifier(logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		templates: make(map[string]*template.Template, len(scenarioTemplates)),
		logger:    logger,
		clock:     time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for name, body := range scenarioTemplates {
		t, err := template.New(name).Option("missingkey=zero").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("notify: parse template %s: %w", name, err)
		}
		n.templates[name] = t
	}
	return n, nil
}

// WithClock overrides the time source for deterministic testing.
func (n *Notifier) WithClock(clock func() time.Time) *Notifier {
	n.clock = clock
	return n
}

// Scenarios lists the registered scenario names.
func (n *Notifier) Scenarios() []string {
	out := make([]string, 0, len(n.templates))
	for name := range n.templates {
		out = append(out, name)
	}
	return out
}

// Send renders the named scenario with the given context fields and logs
// the message in place of a real provider call.
func (n *Notifier) Send(recipient, scenario string, context map[string]any) (*contracts.Delivery, error) {
	t, ok := n.templates[scenario]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, scenario)
	}

	var body strings.Builder
	if err := t.Execute(&body, context); err != nil {
		return nil, fmt.Errorf("notify: render %s: %w", scenario, err)
	}
	rendered := body.String()

	d := &contracts.Delivery{
		MessageID: n.messageID(),
		Recipient: recipient,
		Scenario:  scenario,
		Preview:   preview(rendered),
	}

	n.logger.Info("notification sent",
		"message_id", d.MessageID,
		"recipient", recipient,
		"scenario", scenario,
		"bytes", len(rendered))
	return d, nil
}

func (n *Notifier) messageID() string {
	n.mu.Lock()
	suffix := n.rng.Intn(10000)
	n.mu.Unlock()
	return fmt.Sprintf("MSG-%d-%04d", n.clock().Unix(), suffix)
}

// preview truncates on a rune boundary so multibyte text stays valid UTF-8.
func preview(body string) string {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) <= PreviewLen {
		return trimmed
	}
	cut := PreviewLen
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut]
}
