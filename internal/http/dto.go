package http

import (
	"time"

	"subtrack/internal/core"
	"subtrack/internal/notify"
	"subtrack/internal/scheduler"
	"subtrack/internal/services"
)

// SubscriptionRequest is the create/replace body. Renewal dates are accepted
// as RFC 3339 instants or YYYY-MM-DD; the service layer parses both.
type SubscriptionRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Price       string `json:"price" validate:"required,max=32"`
	Cycle       string `json:"cycle" validate:"omitempty,oneof=Monthly Yearly Weekly monthly yearly weekly"`
	RenewalDate string `json:"renewal_date" validate:"required,max=64"`
	Notes       string `json:"notes" validate:"max=1000"`
}

func subscriptionRequestFrom(p *RequestBodyParser) SubscriptionRequest {
	return SubscriptionRequest{
		Name:        p.Get("name"),
		Price:       p.Get("price"),
		Cycle:       p.Get("cycle"),
		RenewalDate: p.Get("renewal_date"),
		Notes:       p.Get("notes"),
	}
}

func (r SubscriptionRequest) input() services.SubscriptionInput {
	return services.SubscriptionInput{
		Name:        r.Name,
		Price:       r.Price,
		Cycle:       r.Cycle,
		RenewalDate: r.RenewalDate,
		Notes:       r.Notes,
	}
}

type SubscriptionResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Price        float64            `json:"price"`
	PriceCents   int64              `json:"price_cents"`
	PriceDisplay string             `json:"price_display"`
	Cycle        core.Cycle         `json:"cycle"`
	MonthlyCost  string             `json:"monthly_cost"`
	RenewalDate  time.Time          `json:"renewal_date"`
	Notes        string             `json:"notes,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	DaysLeft     int                `json:"days_left"`
	Status       core.RenewalStatus `json:"status"`
}

func (s *Server) subscriptionResponse(sub core.Subscription, now time.Time) SubscriptionResponse {
	days := core.DaysUntil(sub.RenewalDate, now.In(s.loc))
	return SubscriptionResponse{
		ID:           sub.ID,
		Name:         sub.Name,
		Price:        sub.Price.Units(),
		PriceCents:   sub.Price.Cents,
		PriceDisplay: sub.Price.Format(s.currency),
		Cycle:        sub.Cycle.OrDefault(),
		MonthlyCost:  services.MonthlyTotal([]core.Subscription{sub}).Format(s.currency),
		RenewalDate:  sub.RenewalDate,
		Notes:        sub.Notes,
		CreatedAt:    sub.CreatedAt,
		DaysLeft:     days,
		Status:       core.StatusFor(days),
	}
}

func (s *Server) subscriptionList(subs []core.Subscription, now time.Time) []SubscriptionResponse {
	out := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, s.subscriptionResponse(sub, now))
	}
	return out
}

// MutationResponse is returned by create and replace.
type MutationResponse struct {
	Subscription SubscriptionResponse `json:"subscription"`
	Reminder     scheduler.Outcome    `json:"reminder"`
}

type DeleteResponse struct {
	Deleted       string                 `json:"deleted"`
	Subscriptions []SubscriptionResponse `json:"subscriptions"`
}

type SummaryResponse struct {
	Count               int                    `json:"count"`
	MonthlyTotal        float64                `json:"monthly_total"`
	MonthlyTotalDisplay string                 `json:"monthly_total_display"`
	Upcoming            []SubscriptionResponse `json:"upcoming"`
	GeneratedAt         time.Time              `json:"generated_at"`
}

type NotificationResponse struct {
	Identifier     string            `json:"identifier"`
	SubscriptionID string            `json:"subscription_id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	ChannelID      string            `json:"channel_id,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	Trigger        time.Time         `json:"trigger"`
}

func notificationResponse(n notify.Notification) NotificationResponse {
	return NotificationResponse{
		Identifier:     n.Identifier,
		SubscriptionID: n.SubscriptionID(),
		Title:          n.Content.Title,
		Body:           n.Content.Body,
		ChannelID:      n.Content.ChannelID,
		Data:           n.Content.Data,
		Trigger:        n.Trigger,
	}
}

type PermissionResponse struct {
	Granted bool `json:"granted"`
}
