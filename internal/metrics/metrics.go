// Package metrics holds the Prometheus instruments for the generation
// pipeline. Exposed on /metrics; nothing here is required for
// correctness, a nil *Metrics disables collection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors registered for one server instance.
type Metrics struct {
	TurnsStarted   prometheus.Counter
	TurnsFinished  *prometheus.CounterVec // label: outcome (finished, error, interrupted)
	TokensStreamed prometheus.Counter
	WebSearches    prometheus.Counter
	ToolCalls      *prometheus.CounterVec // label: tool
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hugchat",
			Name:      "generation_turns_started_total",
			Help:      "Assistant generation turns started.",
		}),
		TurnsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hugchat",
			Name:      "generation_turns_finished_total",
			Help:      "Assistant generation turns reaching a terminal state.",
		}, []string{"outcome"}),
		TokensStreamed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hugchat",
			Name:      "generation_tokens_streamed_total",
			Help:      "Text tokens streamed to clients.",
		}),
		WebSearches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hugchat",
			Name:      "web_searches_total",
			Help:      "Web search phases run.",
		}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hugchat",
			Name:      "tool_calls_total",
			Help:      "Tool invocations requested by the model.",
		}, []string{"tool"}),
	}
}

// TurnStarted increments the started counter. Nil-safe.
func (m *Metrics) TurnStarted() {
	if m != nil {
		m.TurnsStarted.Inc()
	}
}

// TurnFinished records a terminal outcome. Nil-safe.
func (m *Metrics) TurnFinished(outcome string) {
	if m != nil {
		m.TurnsFinished.WithLabelValues(outcome).Inc()
	}
}

// TokenStreamed counts one streamed token. Nil-safe.
func (m *Metrics) TokenStreamed() {
	if m != nil {
		m.TokensStreamed.Inc()
	}
}

// WebSearchRun counts one web search phase. Nil-safe.
func (m *Metrics) WebSearchRun() {
	if m != nil {
		m.WebSearches.Inc()
	}
}

// ToolCalled counts one tool invocation. Nil-safe.
func (m *Metrics) ToolCalled(tool string) {
	if m != nil {
		m.ToolCalls.WithLabelValues(tool).Inc()
	}
}
