package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const (
	minReconnectInterval = 5 * time.Second
	maxReconnectInterval = 30 * time.Second
	pingInterval         = 90 * time.Second
)

// ListenPostgres подписывается на NOTIFY канала и превращает каждое
// уведомление в сигнал. После переподключения тоже шлёт сигнал, так как
// пропущенные уведомления не доставляются повторно. Канал сигналов
// закрывается после отмены ctx.
func ListenPostgres(ctx context.Context, dsn, channel string, logger *slog.Logger) (<-chan struct{}, error) {
	if logger == nil {
		logger = slog.Default()
	}
	onEvent := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("Match listener connected", slog.String("channel", channel))
		case pq.ListenerEventDisconnected:
			logger.Error("Match listener disconnected, reconnecting...", slog.Any("error", err))
		case pq.ListenerEventReconnected:
			logger.Info("Match listener reconnected", slog.String("channel", channel))
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("Match listener connection attempt failed", slog.Any("error", err))
		}
	}

	listener := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, onEvent)
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, err
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer close(signals)
		defer listener.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Match listener stopped (context cancelled)")
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// n == nil после переподключения.
				if n != nil {
					logger.Debug("Match change notification", slog.String("payload", n.Extra))
				}
				signal(signals)
			case <-time.After(pingInterval):
				go func() {
					if err := listener.Ping(); err != nil {
						logger.Warn("Match listener ping failed", slog.Any("error", err))
					}
				}()
			}
		}
	}()
	return signals, nil
}

// signal не блокируется: несколько изменений подряд схлопываются в одно.
func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
