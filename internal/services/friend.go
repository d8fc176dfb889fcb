package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jordansalagala21/GymTribe/internal/docstore"
	"github.com/jordansalagala21/GymTribe/internal/logging"
	"github.com/jordansalagala21/GymTribe/internal/models"
)

const (
	unknownSenderName = "Unknown"
	fallbackPeerName  = "Friend"
)

// FriendService owns friend requests and the friendship graph.
type FriendService struct {
	store      docstore.Store
	profiles   *ProfileService
	newBackOff func() backoff.BackOff
}

func NewFriendService(store docstore.Store, profiles *ProfileService) *FriendService {
	return &FriendService{store: store, profiles: profiles, newBackOff: defaultBackOff}
}

// SetBackOff replaces the reconnect policy used by WatchRequests.
func (s *FriendService) SetBackOff(newBackOff func() backoff.BackOff) {
	s.newBackOff = newBackOff
}

func (s *FriendService) SendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	req, err := s.sendRequest(ctx, senderID, receiverID)
	friendRequestsTotal.WithLabelValues("send", requestOutcome(err)).Inc()
	return req, err
}

func (s *FriendService) sendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	if senderID == uuid.Nil || receiverID == uuid.Nil || senderID == receiverID {
		return nil, ErrInvalidTarget
	}

	if _, err := s.profiles.Get(ctx, receiverID); err != nil {
		return nil, fmt.Errorf("checking receiver: %w", err)
	}

	friends, err := s.IsFriend(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	id := uuid.New()
	reqFields, err := encode(requestRecord{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendRequestPending,
	})
	if err != nil {
		return nil, err
	}
	lockFields, err := encode(pairRecord{RequestID: id, SenderID: senderID, ReceiverID: receiverID})
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Transact(ctx,
		docstore.Create(collectionPendingPairs, pairID(senderID, receiverID), lockFields),
		docstore.Create(collectionFriendRequests, id.String(), reqFields),
	)
	if errors.Is(err, docstore.ErrConflict) {
		return nil, ErrDuplicatePending
	}
	if err != nil {
		return nil, storeError("creating friend request", err)
	}

	req, err := requestFromDoc(docs[1])
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// PendingRequests yields the pending requests addressed to receiverID, oldest
// first. Sender names are resolved as the sequence is consumed.
func (s *FriendService) PendingRequests(ctx context.Context, receiverID uuid.UUID) iter.Seq2[models.PendingRequest, error] {
	return func(yield func(models.PendingRequest, error) bool) {
		reqs, err := s.requestsWhere(ctx,
			docstore.Eq(fieldReceiverID, receiverID.String()),
			docstore.Eq(fieldStatus, string(models.FriendRequestPending)),
		)
		if err != nil {
			yield(models.PendingRequest{}, err)
			return
		}
		for _, req := range reqs {
			name := displayName(ctx, s.profiles, req.SenderID, unknownSenderName)
			if !yield(models.PendingRequest{FriendRequest: req, SenderName: name}, nil) {
				return
			}
		}
	}
}

func (s *FriendService) ListPendingRequests(ctx context.Context, receiverID uuid.UUID) ([]models.PendingRequest, error) {
	out := []models.PendingRequest{}
	for req, err := range s.PendingRequests(ctx, receiverID) {
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// ListSentRequests returns every request sent by senderID, in any state.
func (s *FriendService) ListSentRequests(ctx context.Context, senderID uuid.UUID) ([]models.FriendRequest, error) {
	return s.requestsWhere(ctx, docstore.Eq(fieldSenderID, senderID.String()))
}

func (s *FriendService) requestsWhere(ctx context.Context, where ...docstore.Predicate) ([]models.FriendRequest, error) {
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: collectionFriendRequests,
		Where:      where,
		Order:      docstore.OrderCreated,
	})
	if err != nil {
		return nil, storeError("listing friend requests", err)
	}
	reqs := make([]models.FriendRequest, 0, len(docs))
	for _, doc := range docs {
		req, err := requestFromDoc(doc)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// loadRequest fetches a request in whatever state it is in.
func (s *FriendService) loadRequest(ctx context.Context, requestID uuid.UUID) (*models.FriendRequest, error) {
	doc, err := s.store.Get(ctx, collectionFriendRequests, requestID.String())
	if err != nil {
		return nil, storeError("getting friend request", err)
	}
	req, err := requestFromDoc(*doc)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Accept marks the request accepted and creates both directed friendship
// records in one guarded transaction.
func (s *FriendService) Accept(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error) {
	req, err := s.resolve(ctx, requestID, actorID, models.FriendRequestAccepted)
	friendRequestsTotal.WithLabelValues("accept", requestOutcome(err)).Inc()
	return req, err
}

// Decline marks the request declined. No friendship is created.
func (s *FriendService) Decline(ctx context.Context, requestID, actorID uuid.UUID) (*models.FriendRequest, error) {
	req, err := s.resolve(ctx, requestID, actorID, models.FriendRequestDeclined)
	friendRequestsTotal.WithLabelValues("decline", requestOutcome(err)).Inc()
	return req, err
}

func (s *FriendService) resolve(ctx context.Context, requestID, actorID uuid.UUID, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != actorID {
		return nil, ErrForbidden
	}
	if req.Status != models.FriendRequestPending {
		return nil, ErrAlreadyResolved
	}

	fields, err := encode(requestRecord{SenderID: req.SenderID, ReceiverID: req.ReceiverID, Status: status})
	if err != nil {
		return nil, err
	}
	ops := []docstore.WriteOp{
		docstore.Put(collectionFriendRequests, requestID.String(), fields).
			If(docstore.Eq(fieldStatus, string(models.FriendRequestPending))),
		docstore.Delete(collectionPendingPairs, pairID(req.SenderID, req.ReceiverID)),
	}
	if status == models.FriendRequestAccepted {
		for _, edge := range [][2]uuid.UUID{{req.SenderID, req.ReceiverID}, {req.ReceiverID, req.SenderID}} {
			edgeFields, err := encode(friendshipRecord{UserID: edge[0], PeerID: edge[1]})
			if err != nil {
				return nil, err
			}
			ops = append(ops, docstore.Put(collectionFriendships, friendshipID(edge[0], edge[1]), edgeFields))
		}
	}

	docs, err := s.store.Transact(ctx, ops...)
	if errors.Is(err, docstore.ErrConflict) {
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, storeError("resolving friend request", err)
	}

	updated, err := requestFromDoc(docs[0])
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Retract withdraws a request the actor sent, while it is still pending.
func (s *FriendService) Retract(ctx context.Context, requestID, actorID uuid.UUID) error {
	err := s.retract(ctx, requestID, actorID)
	friendRequestsTotal.WithLabelValues("retract", requestOutcome(err)).Inc()
	return err
}

func (s *FriendService) retract(ctx context.Context, requestID, actorID uuid.UUID) error {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.SenderID != actorID {
		return ErrForbidden
	}
	if req.Status != models.FriendRequestPending {
		return ErrAlreadyResolved
	}

	_, err = s.store.Transact(ctx,
		docstore.Delete(collectionFriendRequests, requestID.String()).
			If(docstore.Eq(fieldStatus, string(models.FriendRequestPending))),
		docstore.Delete(collectionPendingPairs, pairID(req.SenderID, req.ReceiverID)),
	)
	if errors.Is(err, docstore.ErrConflict) {
		return ErrAlreadyResolved
	}
	if err != nil {
		return storeError("retracting friend request", err)
	}
	return nil
}

// ListFriends returns each counterpart once, sorted by display name. Peers
// whose profile no longer exists are skipped.
func (s *FriendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error) {
	since, err := s.friendEdges(ctx, userID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	friends := make([]models.Friend, 0, len(since))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for peerID, createdAt := range since {
		g.Go(func() error {
			profile, err := s.profiles.Get(gctx, peerID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			name := profile.DisplayName
			if name == "" {
				name = unknownSenderName
			}
			mu.Lock()
			friends = append(friends, models.Friend{
				UserID:      peerID,
				DisplayName: name,
				PhotoRef:    profile.PhotoRef,
				Since:       createdAt,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}

	sort.Slice(friends, func(i, j int) bool {
		if friends[i].DisplayName != friends[j].DisplayName {
			return friends[i].DisplayName < friends[j].DisplayName
		}
		return friends[i].UserID.String() < friends[j].UserID.String()
	})
	return friends, nil
}

// FriendIDs returns the set of counterparts of userID.
func (s *FriendService) FriendIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	since, err := s.friendEdges(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[uuid.UUID]struct{}, len(since))
	for id := range since {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// friendEdges reads both directed halves and keys them by counterpart, so a
// missing or duplicated half never changes the result.
func (s *FriendService) friendEdges(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]time.Time, error) {
	since := make(map[uuid.UUID]time.Time)
	for _, field := range []string{fieldUserID, fieldPeerID} {
		docs, err := s.store.Query(ctx, docstore.Query{
			Collection: collectionFriendships,
			Where:      []docstore.Predicate{docstore.Eq(field, userID.String())},
		})
		if err != nil {
			return nil, storeError("listing friendships", err)
		}
		for _, doc := range docs {
			f, err := friendshipFromDoc(doc)
			if err != nil {
				return nil, err
			}
			peer := f.PeerID
			if field == fieldPeerID {
				peer = f.UserID
			}
			if peer == userID {
				continue
			}
			if t, ok := since[peer]; !ok || f.CreatedAt.Before(t) {
				since[peer] = f.CreatedAt
			}
		}
	}
	return since, nil
}

func (s *FriendService) IsFriend(ctx context.Context, userID, peerID uuid.UUID) (bool, error) {
	_, err := s.store.Get(ctx, collectionFriendships, friendshipID(userID, peerID))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError("checking friendship", err)
	}
	return true, nil
}

// RemoveFriend deletes both halves of the edge together.
func (s *FriendService) RemoveFriend(ctx context.Context, userID, peerID uuid.UUID) error {
	friends, err := s.IsFriend(ctx, userID, peerID)
	if err != nil {
		return err
	}
	if !friends {
		return ErrNotFound
	}
	if _, err := s.store.Transact(ctx,
		docstore.Delete(collectionFriendships, friendshipID(userID, peerID)),
		docstore.Delete(collectionFriendships, friendshipID(peerID, userID)),
	); err != nil {
		return storeError("removing friend", err)
	}
	friendRequestsTotal.WithLabelValues("unfriend", "ok").Inc()
	return nil
}

// RequestWatch streams request transitions that concern one user.
type RequestWatch struct {
	*feed[models.RequestEvent]
}

type requestSubs struct {
	incoming docstore.Subscription
	outgoing docstore.Subscription
}

func (r requestSubs) Close() {
	r.incoming.Close()
	r.outgoing.Close()
}

// WatchRequests reports requests received by userID and acceptances of
// requests userID sent. State that exists when the watch opens is not
// reported; after a reconnect only transitions not yet reported are.
func (s *FriendService) WatchRequests(ctx context.Context, userID uuid.UUID) (*RequestWatch, error) {
	w := &RequestWatch{newFeed[models.RequestEvent](ctx)}

	subs, err := s.openRequestSubs(w.ctx, userID)
	if err != nil {
		w.cancel()
		return nil, err
	}
	seen := make(map[string]struct{})
	if err := s.catchUpRequests(w, userID, seen, false); err != nil {
		subs.Close()
		w.cancel()
		return nil, err
	}

	activeFeeds.WithLabelValues("requests").Inc()
	go s.runWatch(w, userID, subs, seen)
	return w, nil
}

func (s *FriendService) openRequestSubs(ctx context.Context, userID uuid.UUID) (requestSubs, error) {
	incoming, err := s.store.Subscribe(ctx, collectionFriendRequests, docstore.Eq(fieldReceiverID, userID.String()))
	if err != nil {
		return requestSubs{}, storeError("subscribing to friend requests", err)
	}
	outgoing, err := s.store.Subscribe(ctx, collectionFriendRequests, docstore.Eq(fieldSenderID, userID.String()))
	if err != nil {
		incoming.Close()
		return requestSubs{}, storeError("subscribing to friend requests", err)
	}
	return requestSubs{incoming: incoming, outgoing: outgoing}, nil
}

func seenKey(id uuid.UUID, kind models.RequestEventKind) string {
	return id.String() + ":" + string(kind)
}

// catchUpRequests marks current state as seen. With emit set, anything not
// seen before is reported first.
func (s *FriendService) catchUpRequests(w *RequestWatch, userID uuid.UUID, seen map[string]struct{}, emit bool) error {
	incoming, err := s.requestsWhere(w.ctx, docstore.Eq(fieldReceiverID, userID.String()))
	if err != nil {
		return err
	}
	outgoing, err := s.requestsWhere(w.ctx, docstore.Eq(fieldSenderID, userID.String()))
	if err != nil {
		return err
	}
	for _, req := range incoming {
		if req.Status == models.FriendRequestPending && !s.report(w, seen, models.RequestReceived, req, req.SenderID, emit) {
			return nil
		}
	}
	for _, req := range outgoing {
		if req.Status == models.FriendRequestAccepted && !s.report(w, seen, models.RequestAccepted, req, req.ReceiverID, emit) {
			return nil
		}
	}
	return nil
}

// report marks the transition seen and, when emit is set and it is new,
// delivers it. It returns false once the watch is closed.
func (s *FriendService) report(w *RequestWatch, seen map[string]struct{}, kind models.RequestEventKind, req models.FriendRequest, peerID uuid.UUID, emit bool) bool {
	key := seenKey(req.ID, kind)
	if _, ok := seen[key]; ok {
		return true
	}
	seen[key] = struct{}{}
	if !emit {
		return true
	}
	feedEventsTotal.WithLabelValues("requests", string(kind)).Inc()
	return w.emit(models.RequestEvent{
		Kind:     kind,
		Request:  req,
		PeerName: displayName(w.ctx, s.profiles, peerID, fallbackPeerName),
	})
}

func (s *FriendService) runWatch(w *RequestWatch, userID uuid.UUID, subs requestSubs, seen map[string]struct{}) {
	defer activeFeeds.WithLabelValues("requests").Dec()

	var b backoff.BackOff
	for {
		err := s.pumpRequests(w, userID, subs, seen)
		subs.Close()
		if w.ctx.Err() != nil {
			w.finish(nil)
			return
		}

		feedReconnectsTotal.WithLabelValues("requests").Inc()
		logging.Warn("Friend request watch lost its subscription", map[string]interface{}{
			"user_id": userID.String(),
			"error":   err.Error(),
		})
		if b == nil {
			b = s.newBackOff()
		}
		for {
			if !sleepBackOff(w.ctx, b) {
				if w.ctx.Err() != nil {
					err = nil
				}
				w.finish(err)
				return
			}
			subs, err = s.openRequestSubs(w.ctx, userID)
			if err != nil {
				continue
			}
			if err = s.catchUpRequests(w, userID, seen, true); err != nil {
				subs.Close()
				continue
			}
			break
		}
		b.Reset()
	}
}

// pumpRequests forwards live events until a subscription ends. A nil return
// means the watch was closed.
func (s *FriendService) pumpRequests(w *RequestWatch, userID uuid.UUID, subs requestSubs, seen map[string]struct{}) error {
	incoming, outgoing := subs.incoming.Events(), subs.outgoing.Events()
	for {
		select {
		case <-w.ctx.Done():
			return nil
		case ev, ok := <-incoming:
			if !ok {
				return subscriptionErr(w.ctx, subs.incoming)
			}
			req, err := requestFromDoc(ev.Document)
			if err != nil {
				logging.Warn("Skipping unreadable friend request", map[string]interface{}{"error": err.Error()})
				continue
			}
			if ev.Kind == docstore.ChangeAdded && req.Status == models.FriendRequestPending {
				if !s.report(w, seen, models.RequestReceived, req, req.SenderID, true) {
					return nil
				}
			}
		case ev, ok := <-outgoing:
			if !ok {
				return subscriptionErr(w.ctx, subs.outgoing)
			}
			req, err := requestFromDoc(ev.Document)
			if err != nil {
				logging.Warn("Skipping unreadable friend request", map[string]interface{}{"error": err.Error()})
				continue
			}
			if ev.Kind == docstore.ChangeModified && req.Status == models.FriendRequestAccepted {
				if !s.report(w, seen, models.RequestAccepted, req, req.ReceiverID, true) {
					return nil
				}
			}
		}
	}
}

// subscriptionErr explains why a store subscription closed on its own.
func subscriptionErr(ctx context.Context, sub docstore.Subscription) error {
	if ctx.Err() != nil {
		return nil
	}
	if err := sub.Err(); err != nil {
		return err
	}
	return docstore.ErrUnavailable
}

func requestOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicatePending):
		return "duplicate"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
