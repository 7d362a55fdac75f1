//go:build integration

package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stratd/src/datamodels"
)

func envOr(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func newTestDatabase(t *testing.T) StratdDatabase {
	t.Helper()

	port := 5432
	if raw := os.Getenv("TEST_DB_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		require.NoError(t, err)
		port = parsed
	}
	dbConfig := datamodels.PostgresConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     port,
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		Database: envOr("TEST_DB_NAME", "stratd_test"),
	}
	dbConfig.SSL.Mode = "disable"

	db, err := NewDBConnection(dbConfig)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	return db
}

func TestTradeEventNotificationRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	nm := db.NotificationManager()
	defer nm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := datamodels.TradeEvent{
		TradeId:    uuid.New().String(),
		StrategyId: "notify_" + uuid.New().String()[:8],
		Instrument: "BTC-USD",
		Direction:  datamodels.OrderSideBuy,
		Quantity:   1,
		Price:      100,
		Timestamp:  time.Now(),
	}

	subscriberId := nm.NewSubscriber(ctx)
	ch, err := nm.Subscribe(ctx, subscriberId, TradeEventChannel, event.StrategyId)
	require.NoError(t, err)
	defer nm.Unsubscribe(TradeEventChannel, subscriberId, event.StrategyId)

	// LISTEN registration is asynchronous on the pq side
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, db.WriteTradeEvent(ctx, event))

	select {
	case msg := <-FanIn(ctx, ch):
		require.Equal(t, event.TradeId, msg)
	case <-ctx.Done():
		t.Fatal("no trade notification arrived before the deadline")
	}
}
