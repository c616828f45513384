package instrument

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCounter(t *testing.T) {
	c := NewRenderCounter("test")

	c.Inc(EventPanelRender)
	c.Inc(EventPanelRender)
	c.Inc(EventMessageHistoryRender)
	c.Inc(EventUseMessagesRender)
	c.Inc(EventMessagePipelineRender)
	c.Inc(EventMessagePipelineRender)
	c.Inc(EventMessagePipelineRender)

	assert.Equal(t, Counts{
		PanelRenderCount:           2,
		MessageHistoryRenderCount:  1,
		UseMessagesRenderCount:     1,
		MessagePipelineRenderCount: 3,
	}, c.Counts())

	assert.Equal(t, 2.0, testutil.ToFloat64(c.renders.WithLabelValues(string(EventPanelRender))))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.renders.WithLabelValues(string(EventMessagePipelineRender))))
}

func TestRenderCounterIsolated(t *testing.T) {
	a := NewRenderCounter("test")
	b := NewRenderCounter("test")
	a.Inc(EventPanelRender)
	assert.Equal(t, int64(1), a.Counts().PanelRenderCount)
	assert.Equal(t, int64(0), b.Counts().PanelRenderCount)
}

func TestRenderCounterConcurrent(t *testing.T) {
	c := NewRenderCounter("test")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc(EventUseMessagesRender)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Counts().UseMessagesRenderCount)

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "test_renders_total", families[0].GetName())
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Inc(EventPanelRender)
}
