package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"subtrack/internal/log"
)

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	subs, err := s.svc.List(r.Context())
	if err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return
	}
	NewJSONResponse().Body(s.subscriptionList(subs, s.now())).Write(w)
}

// decodeSubscription parses and tag-validates a create/replace body. On
// failure it has already written the response.
func (s *Server) decodeSubscription(w http.ResponseWriter, r *http.Request) (SubscriptionRequest, bool) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large").Write(w)
		} else {
			ErrorResponse(http.StatusBadRequest, "malformed request body").Write(w)
		}
		return SubscriptionRequest{}, false
	}

	req := subscriptionRequestFrom(parser)
	if err := s.validator.Struct(req); err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return SubscriptionRequest{}, false
	}
	return req, true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}

	sub, outcome, err := s.svc.Create(r.Context(), req.input())
	if err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return
	}
	s.invalidateSummary()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/subscriptions/"+sub.ID).
		Body(MutationResponse{Subscription: s.subscriptionResponse(sub, s.now()), Reminder: outcome}).
		Write(w)
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}

	sub, outcome, err := s.svc.Replace(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return
	}
	s.invalidateSummary()

	NewJSONResponse().
		Body(MutationResponse{Subscription: s.subscriptionResponse(sub, s.now()), Reminder: outcome}).
		Write(w)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	remaining, err := s.svc.Delete(r.Context(), id)
	// A missing record still had its reminders cancelled; the summary may
	// be stale either way.
	s.invalidateSummary()
	if err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return
	}

	NewJSONResponse().
		Body(DeleteResponse{Deleted: id, Subscriptions: s.subscriptionList(remaining, s.now())}).
		Write(w)
}

// handleResync is the focus event: the client calls it whenever the
// subscription screen becomes visible. It never fails; a store outage is
// reported through the degraded flag.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	result := s.svc.Resync(r.Context())
	s.invalidateSummary()
	NewJSONResponse().Body(result).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	key := s.summaryKey(now)
	if s.summaryCache != nil {
		if cached, ok := s.summaryCache.Get(key); ok {
			NewJSONResponse().Header("X-Cache", "HIT").Body(cached).Write(w)
			return
		}
	}

	summary, err := s.svc.Summary(r.Context(), now)
	if err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return
	}

	resp := SummaryResponse{
		Count:               summary.Count,
		MonthlyTotal:        summary.MonthlyTotal.Units(),
		MonthlyTotalDisplay: summary.MonthlyTotal.Format(s.currency),
		Upcoming:            make([]SubscriptionResponse, 0, len(summary.Upcoming)),
		GeneratedAt:         now,
	}
	for _, u := range summary.Upcoming {
		resp.Upcoming = append(resp.Upcoming, s.subscriptionResponse(u.Subscription, now))
	}
	if s.summaryCache != nil {
		s.summaryCache.Set(key, resp)
	}
	NewJSONResponse().Header("X-Cache", "MISS").Body(resp).Write(w)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	pending, err := s.notifier.ListScheduled(r.Context())
	if err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return
	}

	filter := r.URL.Query().Get("subscription_id")
	out := make([]NotificationResponse, 0, len(pending))
	for _, n := range pending {
		if filter != "" && n.SubscriptionID() != filter {
			continue
		}
		out = append(out, notificationResponse(n))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	granted, err := s.notifier.RequestPermission(r.Context())
	if err != nil {
		errorResponseFor(r.Context(), err).Write(w)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Notification permission requested",
		log.FieldOperation, log.OpPermission,
		"granted", granted)

	// Newly granted permission makes earlier skipped reminders schedulable.
	if granted {
		s.svc.Resync(r.Context())
	}
	NewJSONResponse().Body(PermissionResponse{Granted: granted}).Write(w)
}
