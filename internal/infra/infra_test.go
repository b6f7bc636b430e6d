package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/cash-point/cashpoint/internal/config"
)

func TestOpenWithoutServices(t *testing.T) {
	res, err := Open(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer res.Close(nil)
	if res.DB != nil || res.Cache != nil || res.Events != nil {
		t.Fatalf("expected no connections, got %+v", res)
	}
}

func TestOpenRedisAndKafka(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{
		RedisURL:     "redis://" + mr.Addr() + "/0",
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "cashpoint.ledger",
	}
	res, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer res.Close(nil)
	if res.Cache == nil {
		t.Fatalf("expected redis client")
	}
	if res.Events == nil || res.Events.Topic != "cashpoint.ledger" {
		t.Fatalf("expected kafka writer for topic, got %+v", res.Events)
	}
}

func TestOpenFailsOnUnreachableRedis(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{RedisURL: "redis://127.0.0.1:1/0"}); err == nil {
		t.Fatalf("expected connection error")
	}
}
