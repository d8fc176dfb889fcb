package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/jordansalagala21/GymTribe/internal/docstore"
	"github.com/jordansalagala21/GymTribe/internal/logging"
	"github.com/jordansalagala21/GymTribe/internal/models"
)

type MessageService struct {
	store      docstore.Store
	newBackOff func() backoff.BackOff
}

func NewMessageService(store docstore.Store) *MessageService {
	return &MessageService{store: store, newBackOff: defaultBackOff}
}

// SetBackOff replaces the reconnect policy used by Subscribe.
func (s *MessageService) SetBackOff(newBackOff func() backoff.BackOff) {
	s.newBackOff = newBackOff
}

// Send persists a direct message. The store assigns SentAt.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID uuid.UUID, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	if senderID == uuid.Nil || receiverID == uuid.Nil || senderID == receiverID {
		return nil, ErrInvalidTarget
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}
	fields, err := encode(messageRecord{
		SenderID:     senderID,
		ReceiverID:   receiverID,
		Body:         body,
		Participants: []uuid.UUID{senderID, receiverID},
	})
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Transact(ctx, docstore.Create(collectionMessages, id.String(), fields))
	if err != nil {
		return nil, storeError("sending message", err)
	}
	msg, err := messageFromDoc(docs[0])
	if err != nil {
		return nil, err
	}
	messagesSentTotal.Inc()
	return &msg, nil
}

// history returns every message userID took part in, ordered by (SentAt, ID).
func (s *MessageService) history(ctx context.Context, userID uuid.UUID) ([]models.Message, error) {
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: collectionMessages,
		Where:      []docstore.Predicate{docstore.ContainsAny(fieldParticipants, userID.String())},
		Order:      docstore.OrderCreated,
	})
	if err != nil {
		return nil, storeError("loading message history", err)
	}
	msgs := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		m, err := messageFromDoc(doc)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Conversation returns the messages exchanged between userID and peerID.
func (s *MessageService) Conversation(ctx context.Context, userID, peerID uuid.UUID) ([]models.Message, error) {
	if peerID == uuid.Nil || peerID == userID {
		return nil, ErrInvalidTarget
	}
	all, err := s.history(ctx, userID)
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{}
	for _, m := range all {
		if m.InConversation(userID, peerID) {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// Subscription is a live message feed for one user.
type Subscription struct {
	*feed[models.FeedEvent]
}

// Subscribe opens a feed of every message userID takes part in. History is
// replayed once with Live unset, then each new message is delivered once.
// On store failure the feed reports reconnecting, retries per the back-off
// policy and delivers whatever arrived meanwhile as live.
func (s *MessageService) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	sub := &Subscription{newFeed[models.FeedEvent](ctx)}

	// The store subscription must exist before the history read so nothing
	// committed in between is missed. The watermark drops the overlap.
	storeSub, history, err := s.open(sub.ctx, userID)
	if err != nil {
		sub.cancel()
		return nil, err
	}

	activeFeeds.WithLabelValues("messages").Inc()
	go s.run(sub, userID, storeSub, history)
	return sub, nil
}

func (s *MessageService) open(ctx context.Context, userID uuid.UUID) (docstore.Subscription, []models.Message, error) {
	storeSub, err := s.store.Subscribe(ctx, collectionMessages, docstore.ContainsAny(fieldParticipants, userID.String()))
	if err != nil {
		return nil, nil, storeError("subscribing to messages", err)
	}
	history, err := s.history(ctx, userID)
	if err != nil {
		storeSub.Close()
		return nil, nil, err
	}
	return storeSub, history, nil
}

// watermark tracks the highest message key delivered on a feed.
type watermark struct {
	mark models.MessageKey
}

// advance reports whether m is new and, if so, moves the mark to it.
func (w *watermark) advance(m models.Message) bool {
	if !m.Key().After(w.mark) {
		return false
	}
	w.mark = m.Key()
	return true
}

func (s *MessageService) run(sub *Subscription, userID uuid.UUID, storeSub docstore.Subscription, history []models.Message) {
	defer activeFeeds.WithLabelValues("messages").Dec()

	var mark watermark
	deliver := func(m models.Message, live bool) bool {
		if !mark.advance(m) {
			return true
		}
		feedEventsTotal.WithLabelValues("messages", string(models.FeedMessage)).Inc()
		return sub.emit(models.FeedEvent{Kind: models.FeedMessage, Message: &m, Live: live})
	}
	replay := func(msgs []models.Message, live bool) bool {
		for _, m := range msgs {
			if !deliver(m, live) {
				return false
			}
		}
		return true
	}

	if !replay(history, false) {
		storeSub.Close()
		sub.finish(nil)
		return
	}

	var b backoff.BackOff
	for {
		err := s.tail(sub, storeSub, deliver)
		storeSub.Close()
		if sub.ctx.Err() != nil {
			sub.finish(nil)
			return
		}

		feedReconnectsTotal.WithLabelValues("messages").Inc()
		logging.Warn("Message feed lost its subscription", map[string]interface{}{
			"user_id": userID.String(),
			"error":   err.Error(),
		})
		if !sub.emit(models.FeedEvent{Kind: models.FeedReconnecting, Err: err}) {
			sub.finish(nil)
			return
		}

		if b == nil {
			b = s.newBackOff()
		}
		for {
			if !sleepBackOff(sub.ctx, b) {
				if sub.ctx.Err() != nil {
					err = nil
				}
				sub.finish(err)
				return
			}
			storeSub, history, err = s.open(sub.ctx, userID)
			if err == nil {
				break
			}
			logging.Debug("Message feed reconnect attempt failed", map[string]interface{}{
				"user_id": userID.String(),
				"error":   err.Error(),
			})
		}
		b.Reset()

		if !replay(history, true) || !sub.emit(models.FeedEvent{Kind: models.FeedReconnected}) {
			storeSub.Close()
			sub.finish(nil)
			return
		}
	}
}

// tail forwards added messages until the store subscription ends. A nil
// return means the feed was closed.
func (s *MessageService) tail(sub *Subscription, storeSub docstore.Subscription, deliver func(models.Message, bool) bool) error {
	events := storeSub.Events()
	for {
		select {
		case <-sub.ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return subscriptionErr(sub.ctx, storeSub)
			}
			if ev.Kind != docstore.ChangeAdded {
				continue
			}
			m, err := messageFromDoc(ev.Document)
			if err != nil {
				logging.Warn("Skipping unreadable message", map[string]interface{}{"error": err.Error()})
				continue
			}
			if !deliver(m, true) {
				return nil
			}
		}
	}
}
