package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/models"
)

// AlertLifetime is how long an alert stays current.
const AlertLifetime = 3 * time.Second

// Dispatcher turns feed events for one viewer into transient alerts. At most
// one alert is current; a newer alert replaces it. Nothing is persisted.
type Dispatcher struct {
	viewer uuid.UUID
	names  NameLookup
	now    func() time.Time

	mu      sync.Mutex
	mark    watermark
	seen    map[string]struct{}
	current *models.NotificationAlert
	alerts  chan models.NotificationAlert
}

func NewDispatcher(viewer uuid.UUID, names NameLookup) *Dispatcher {
	return &Dispatcher{
		viewer: viewer,
		names:  names,
		now:    time.Now,
		seen:   make(map[string]struct{}),
		alerts: make(chan models.NotificationAlert, 1),
	}
}

// SetClock overrides the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// HandleMessage raises an alert for a live message from someone else that is
// newer than anything this dispatcher has seen.
func (d *Dispatcher) HandleMessage(ctx context.Context, ev models.FeedEvent) *models.NotificationAlert {
	if ev.Kind != models.FeedMessage || ev.Message == nil {
		return nil
	}
	msg := *ev.Message

	d.mu.Lock()
	fresh := d.mark.advance(msg)
	d.mu.Unlock()

	if !fresh || !ev.Live || msg.SenderID == d.viewer {
		return nil
	}
	name := displayName(ctx, d.names, msg.SenderID, fallbackPeerName)
	return d.raise(models.AlertMessage, name+" sent you a message")
}

// HandleRequest raises an alert for a received or accepted friend request,
// once per request and kind.
func (d *Dispatcher) HandleRequest(ev models.RequestEvent) *models.NotificationAlert {
	var kind models.AlertKind
	var text string
	name := ev.PeerName
	if name == "" {
		name = fallbackPeerName
	}
	switch ev.Kind {
	case models.RequestReceived:
		kind, text = models.AlertFriendRequest, name+" sent you a friend request"
	case models.RequestAccepted:
		kind, text = models.AlertRequestAccepted, name+" accepted your friend request"
	default:
		return nil
	}

	key := seenKey(ev.Request.ID, ev.Kind)
	d.mu.Lock()
	_, dup := d.seen[key]
	d.seen[key] = struct{}{}
	d.mu.Unlock()
	if dup {
		return nil
	}
	return d.raise(kind, text)
}

func (d *Dispatcher) raise(kind models.AlertKind, text string) *models.NotificationAlert {
	d.mu.Lock()
	now := d.now()
	alert := models.NotificationAlert{
		ID:        uuid.New(),
		Kind:      kind,
		Text:      text,
		CreatedAt: now,
		ExpiresAt: now.Add(AlertLifetime),
	}
	d.current = &alert
	// Latest wins: drop an undelivered alert rather than queue behind it.
	select {
	case <-d.alerts:
	default:
	}
	d.alerts <- alert
	d.mu.Unlock()

	alertsRaisedTotal.WithLabelValues(string(kind)).Inc()
	return &alert
}

// Current returns the alert on display, or nil once it has expired.
func (d *Dispatcher) Current() *models.NotificationAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil
	}
	if d.current.Expired(d.now()) {
		d.current = nil
		return nil
	}
	alert := *d.current
	return &alert
}

// Alerts delivers each alert as it is raised. Only the latest undelivered
// alert is kept.
func (d *Dispatcher) Alerts() <-chan models.NotificationAlert {
	return d.alerts
}
