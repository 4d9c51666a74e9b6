package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fieldsettings/pkg/logger"
)

// SettingsChangedChannel is the NOTIFY channel the settings store publishes
// on. The payload is the institute id.
const SettingsChangedChannel = "field_settings_changed"

// Invalidator drops cached entries.
type Invalidator interface {
	Remove(key string)
	Purge()
}

// InvalidationListener is called after an entry has been invalidated.
type InvalidationListener func(instituteID string)

// Listener invalidates cached snapshots when another process saves settings,
// using PostgreSQL LISTEN/NOTIFY.
type Listener struct {
	pool   *pgxpool.Pool
	target Invalidator

	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener invalidating target.
func NewListener(pool *pgxpool.Pool, target Invalidator) *Listener {
	return &Listener{
		pool:   pool,
		target: target,
	}
}

// Start begins listening in the background.
func (l *Listener) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return nil
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(l.ctx, "settings cache listener started")
	return nil
}

// Stop gracefully stops the listener.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	logger.Info(context.Background(), "settings cache listener stopped")
}

// OnInvalidation registers a callback for invalidation events.
func (l *Listener) OnInvalidation(fn InvalidationListener) {
	l.listenersMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenersMu.Unlock()
}

func (l *Listener) listenLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		// LISTEN needs a dedicated connection.
		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(l.ctx, "LISTEN "+SettingsChangedChannel); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "channel", SettingsChangedChannel, "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}
		logger.Info(l.ctx, "listening for notifications", "channel", SettingsChangedChannel)

		// Anything saved while we were not listening is unknown to us.
		l.target.Purge()

		l.waitForNotifications(conn)
		conn.Release()
	}
}

func (l *Listener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if ctx.Err() == nil {
				// Connection broke; reacquire.
				logger.Warn(l.ctx, "notification wait failed", "error", err)
				return
			}
			continue
		}

		logger.Debug(l.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)
		l.handleNotification(l.ctx, notification.Channel, notification.Payload)
	}
}

// handleNotification invalidates one institute, or everything when the
// payload is empty.
func (l *Listener) handleNotification(ctx context.Context, channel, payload string) {
	if channel != SettingsChangedChannel {
		return
	}
	instituteID := strings.TrimSpace(payload)
	if instituteID == "" {
		l.target.Purge()
	} else {
		l.target.Remove(instituteID)
	}

	// Callbacks run inline, each with its own panic recovery.
	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()
	for _, fn := range l.listeners {
		func(fn InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "invalidation listener panic recovered", "institute_id", instituteID, "panic", r)
				}
			}()
			fn(instituteID)
		}(fn)
	}
}
