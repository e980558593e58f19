package alert

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/publisher/memory"
)

func sampleAlert() crawler.HealthAlert {
	return crawler.HealthAlert{
		SourceID:     "jdih",
		URL:          "https://example.gov/doc/1",
		FailureCount: 3,
		LastError:    "http 503",
		StatusCode:   503,
		Strategy:     crawler.StrategyPlain,
		RaisedAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestLogAlerter(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	require.NoError(t, NewLogAlerter(zap.New(core)).Alert(context.Background(), sampleAlert()))
	entries := logs.FilterMessage("url health alert").All()
	require.Len(t, entries, 1)
	require.Equal(t, int64(3), entries[0].ContextMap()["failure_count"])
	require.Equal(t, "https://example.gov/doc/1", entries[0].ContextMap()["url"])
}

func TestPublishAlerter(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	require.NoError(t, NewPublishAlerter(pub, "").Alert(context.Background(), sampleAlert()))
	msgs := pub.ByTopic(DefaultTopic)
	require.Len(t, msgs, 1)

	var got crawler.HealthAlert
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, sampleAlert(), got)
}

type failingAlerter struct{}

func (failingAlerter) Alert(context.Context, crawler.HealthAlert) error { return errors.New("pubsub down") }

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	m := Multi{failingAlerter{}, NewPublishAlerter(pub, "alerts")}
	err := m.Alert(context.Background(), sampleAlert())
	require.ErrorContains(t, err, "pubsub down")
	require.Len(t, pub.ByTopic("alerts"), 1, "later alerters still run")
	require.NoError(t, Multi{}.Alert(context.Background(), sampleAlert()))
}
