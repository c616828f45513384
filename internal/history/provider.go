// Package history assembles the item lookup the dataset builder consumes:
// for each plot path, the ordered samples its message path selects.
package history

import (
	"context"
	"fmt"

	"github.com/plot-visualizer/backend/internal/instrument"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/msgpath"
	"go.uber.org/zap"
)

// MessageSource returns the messages of one topic in arrival order.
// *session.Manager implements it.
type MessageSource interface {
	Messages(ctx context.Context, sessionID, topic string) ([]models.Message, error)
}

// Provider queries a MessageSource for the paths of a plot.
type Provider struct {
	source    MessageSource
	constants *msgpath.Constants
	sink      instrument.Sink
	logger    *zap.Logger
}

// NewProvider creates a Provider. constants, sink and logger may be nil.
func NewProvider(source MessageSource, constants *msgpath.Constants, sink instrument.Sink, logger *zap.Logger) *Provider {
	if sink == nil {
		sink = instrument.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		source:    source,
		constants: constants,
		sink:      sink,
		logger:    logger.Named("history"),
	}
}

// Lookup builds the item lookup for paths. Each distinct topic is fetched
// once. Reference lines and disabled paths get no entry; a message path that
// fails to parse gets an empty one. Messages from which a path selects
// nothing are left out of that path's items.
func (p *Provider) Lookup(ctx context.Context, sessionID string, paths []models.PlotPath) (models.ItemLookup, error) {
	p.sink.Inc(instrument.EventMessageHistoryRender)

	lookup := make(models.ItemLookup, len(paths))
	parsed := make(map[string]msgpath.Path, len(paths))
	var topics []string
	seenTopic := make(map[string]bool)

	for _, path := range paths {
		if !path.Enabled || path.IsReferenceLine() {
			continue
		}
		if _, done := lookup[path.Value]; done {
			continue
		}
		mp, err := msgpath.Parse(path.Value)
		if err != nil {
			p.logger.Debug("skipping invalid path", zap.String("path", path.Value), zap.Error(err))
			lookup[path.Value] = []models.QueriedItem{}
			continue
		}
		parsed[path.Value] = mp
		lookup[path.Value] = nil
		if !seenTopic[mp.Topic] {
			seenTopic[mp.Topic] = true
			topics = append(topics, mp.Topic)
		}
	}

	byTopic := make(map[string][]models.Message, len(topics))
	for _, topic := range topics {
		p.sink.Inc(instrument.EventMessagePipelineRender)
		msgs, err := p.source.Messages(ctx, sessionID, topic)
		if err != nil {
			return nil, fmt.Errorf("loading topic %s: %w", topic, err)
		}
		byTopic[topic] = msgs
	}

	for value, mp := range parsed {
		msgs := byTopic[mp.Topic]
		items := make([]models.QueriedItem, 0, len(msgs))
		for _, msg := range msgs {
			data := msgpath.Query(mp, msg, p.constants)
			if len(data) == 0 {
				continue
			}
			items = append(items, models.QueriedItem{Message: msg, QueriedData: data})
		}
		lookup[value] = items
	}
	return lookup, nil
}
