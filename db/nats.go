package db

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ConnectNATS returns nil without error when no URL is configured.
func ConnectNATS(url string, log *zap.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	var (
		conn *nats.Conn
		err  error
	)
	for i := 0; i < 10; i++ {
		conn, err = nats.Connect(url, nats.Name("natours"), nats.MaxReconnects(-1))
		if err == nil {
			log.Info("nats connected", zap.String("url", conn.ConnectedUrlRedacted()))
			return conn, nil
		}
		log.Warn("waiting for nats to be ready", zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("connect nats after retries: %w", err)
}
