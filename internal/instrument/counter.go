// Package instrument counts how often each stage of the plot pipeline runs.
// It replaces process-wide debug counters with an explicitly injected sink.
package instrument

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Event names a pipeline stage.
type Event string

const (
	// EventPanelRender fires each time chart data is built for a plot.
	EventPanelRender Event = "panel_render"
	// EventMessageHistoryRender fires each time an item lookup is assembled.
	EventMessageHistoryRender Event = "message_history_render"
	// EventUseMessagesRender fires on each live feed push.
	EventUseMessagesRender Event = "use_messages_render"
	// EventMessagePipelineRender fires on each message source query.
	EventMessagePipelineRender Event = "message_pipeline_render"
)

// Counts is a snapshot of the render counters.
type Counts struct {
	PanelRenderCount           int64 `json:"panelRenderCount"`
	MessageHistoryRenderCount  int64 `json:"messageHistoryRenderCount"`
	UseMessagesRenderCount     int64 `json:"useMessagesRenderCount"`
	MessagePipelineRenderCount int64 `json:"messagePipelineRenderCount"`
}

// Sink receives pipeline events. *RenderCounter implements it.
type Sink interface {
	Inc(ev Event)
}

// RenderCounter counts events in memory and mirrors them into a Prometheus
// counter vector on its own registry.
type RenderCounter struct {
	panel    atomic.Int64
	history  atomic.Int64
	messages atomic.Int64
	pipeline atomic.Int64

	registry *prometheus.Registry
	renders  *prometheus.CounterVec
}

// NewRenderCounter creates a counter whose metrics live under namespace.
func NewRenderCounter(namespace string) *RenderCounter {
	registry := prometheus.NewRegistry()
	renders := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Total number of plot pipeline stage executions",
		},
		[]string{"stage"},
	)
	registry.MustRegister(renders)
	return &RenderCounter{registry: registry, renders: renders}
}

// Inc records one occurrence of ev. Unknown events only reach Prometheus.
func (c *RenderCounter) Inc(ev Event) {
	switch ev {
	case EventPanelRender:
		c.panel.Add(1)
	case EventMessageHistoryRender:
		c.history.Add(1)
	case EventUseMessagesRender:
		c.messages.Add(1)
	case EventMessagePipelineRender:
		c.pipeline.Add(1)
	}
	c.renders.WithLabelValues(string(ev)).Inc()
}

// Counts returns the current counter values.
func (c *RenderCounter) Counts() Counts {
	return Counts{
		PanelRenderCount:           c.panel.Load(),
		MessageHistoryRenderCount:  c.history.Load(),
		UseMessagesRenderCount:     c.messages.Load(),
		MessagePipelineRenderCount: c.pipeline.Load(),
	}
}

// Registry exposes the Prometheus registry for the /metrics endpoint.
func (c *RenderCounter) Registry() *prometheus.Registry {
	return c.registry
}

// Nop discards events.
type Nop struct{}

func (Nop) Inc(Event) {}
