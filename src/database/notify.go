package database

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"stratd/src/utils/errors"
)

// NotificationManager bridges postgres LISTEN/NOTIFY into Go channels so
// external processes (or another stratd instance) can observe lifecycle
// and trade events without polling. Payload format: "objectId;message".
type NotificationManager struct {
	db          *gorm.DB
	listener    *pq.Listener
	subscribers map[string]map[string]map[string]chan<- string
	mu          sync.RWMutex
}

func NewNotificationManager(db *gorm.DB) (*NotificationManager, error) {
	connStr := db.Config.Dialector.(*postgres.Dialector).DSN
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, nil)

	nm := &NotificationManager{
		db:          db,
		listener:    listener,
		subscribers: make(map[string]map[string]map[string]chan<- string), // channel -> objectId -> subscriberId -> chan
	}

	go nm.listen()

	return nm, nil
}

func (nm *NotificationManager) listen() {
	for notification := range nm.listener.Notify {
		if notification == nil {
			continue
		}
		nm.handleNotification(notification.Channel, notification.Extra)
	}
}

func (nm *NotificationManager) handleNotification(channel, payload string) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	objectId, msg, ok := strings.Cut(payload, ";")
	if !ok {
		slog.Error("Invalid payload format", "payload", payload)

		return
	}

	if subs, ok := nm.subscribers[channel]; ok {
		if objSubs, ok := subs[objectId]; ok {
			for _, ch := range objSubs {
				select {
				case ch <- msg:
					slog.Debug("Notification sent", "channel", channel, "objectId", objectId, "payload", msg)
				default:
					slog.Warn("Notification channel is full, skipping", "channel", channel)
				}
			}
		}
	}
}

// Subscribe registers for messages about one object on a channel named by
// the object type, e.g. ("strategy", "momentum_BTCUSD_1714000000").
func (nm *NotificationManager) Subscribe(ctx context.Context, subscriberId string, objectType string, objectId string) (<-chan string, error) {
	channel := objectType
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, ok := nm.subscribers[channel]; !ok {
		if err := nm.listener.Listen(channel); err != nil {
			return nil, errors.Wrapf(err, "failed to listen on channel %s", channel)
		}
		nm.subscribers[channel] = make(map[string]map[string]chan<- string)
	}

	if nm.subscribers[channel][objectId] == nil {
		nm.subscribers[channel][objectId] = make(map[string]chan<- string)
	}

	ch := make(chan string, 10)
	nm.subscribers[channel][objectId][subscriberId] = ch

	slog.Info("Subscribed to channel", "channel", channel, "objectId", objectId, "subscriberId", subscriberId)
	return ch, nil
}

func (nm *NotificationManager) NewSubscriber(ctx context.Context) string {
	return uuid.New().String()
}

func (nm *NotificationManager) Unsubscribe(objectType string, subscriberId string, objectIds ...string) error {
	channel := objectType

	nm.mu.Lock()
	defer nm.mu.Unlock()

	subs, ok := nm.subscribers[channel]
	if !ok {
		return errors.Newf("no subscribers for channel %s", channel)
	}

	for _, objectId := range objectIds {
		if objSubs, ok := subs[objectId]; ok {
			if ch, exists := objSubs[subscriberId]; exists {
				close(ch)
				delete(objSubs, subscriberId)
			}

			if len(objSubs) == 0 {
				delete(subs, objectId)
			}
		}
	}

	if len(subs) == 0 {
		err := nm.listener.Unlisten(channel)
		if err != nil {
			return errors.Wrapf(err, "failed to unlisten on channel %s", channel)
		}
		delete(nm.subscribers, channel)
	}

	return nil
}

func (nm *NotificationManager) Close() error {
	nm.listener.UnlistenAll()

	return nm.listener.Close()
}

// Notify publishes a payload for one object through pg_notify.
func Notify(db *gorm.DB, objectType string, objectId string, payload string) error {
	channel := objectType
	msg := objectId + ";" + payload

	_, err := db.Raw("SELECT pg_notify(?, ?)", channel, msg).Rows()
	if err != nil {
		return errors.Wrapf(err, "failed to send notification")
	}

	return nil
}

// FanIn merges several notification channels into one.
func FanIn(ctx context.Context, channels ...<-chan string) <-chan string {
	out := make(chan string)
	var wg sync.WaitGroup

	for _, ch := range channels {
		if ch == nil {
			continue
		}
		wg.Add(1)
		go func(c <-chan string) {
			defer wg.Done()
			for {
				select {
				case n, ok := <-c:
					if !ok {
						return
					}
					select {
					case out <- n:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
