package graphql

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
)

// Read-only dashboard queries over the check-in engine:
//
//	stats(eventId: String!): EventStats
//	recentAttempts(eventId: String!, limit: Int): [Attempt!]!

var statsType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "EventStats",
		Fields: graphql.Fields{
			"eventId":           &graphql.Field{Type: graphql.String, Resolve: statsField(func(s *domain.EventStats) any { return s.EventID })},
			"totalTickets":      &graphql.Field{Type: graphql.Int, Resolve: statsField(func(s *domain.EventStats) any { return s.TotalTickets })},
			"checkedInCount":    &graphql.Field{Type: graphql.Int, Resolve: statsField(func(s *domain.EventStats) any { return s.CheckedInCount })},
			"remainingCount":    &graphql.Field{Type: graphql.Int, Resolve: statsField(func(s *domain.EventStats) any { return s.RemainingCount })},
			"duplicateAttempts": &graphql.Field{Type: graphql.Int, Resolve: statsField(func(s *domain.EventStats) any { return s.DuplicateAttempts })},
			"invalidAttempts":   &graphql.Field{Type: graphql.Int, Resolve: statsField(func(s *domain.EventStats) any { return s.InvalidAttempts })},
			"failedAttempts":    &graphql.Field{Type: graphql.Int, Resolve: statsField(func(s *domain.EventStats) any { return s.FailedAttempts })},
			"lastUpdated":       &graphql.Field{Type: graphql.String, Resolve: statsField(func(s *domain.EventStats) any { return formatTime(s.LastUpdated) })},
		},
	},
)

var attemptType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "Attempt",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return a.ID })},
			"timestamp":     &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return formatTime(a.Timestamp) })},
			"eventId":       &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return a.EventID })},
			"submittedCode": &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return a.SubmittedCode })},
			"mode":          &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return string(a.Mode) })},
			"outcome":       &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return string(a.Outcome) })},
			"operatorId":    &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return a.OperatorID })},
			"ticketId":      &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return a.TicketID })},
			"message":       &graphql.Field{Type: graphql.String, Resolve: attemptField(func(a *domain.VerificationAttempt) any { return a.Message })},
		},
	},
)

func statsField(get func(*domain.EventStats) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		s, ok := p.Source.(*domain.EventStats)
		if !ok {
			return nil, nil
		}
		return get(s), nil
	}
}

func attemptField(get func(*domain.VerificationAttempt) any) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		a, ok := p.Source.(*domain.VerificationAttempt)
		if !ok {
			return nil, nil
		}
		return get(a), nil
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// NewSchema builds the dashboard schema backed by svc
func NewSchema(svc service.CheckInService) (graphql.Schema, error) {
	queryType := graphql.NewObject(
		graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"stats": &graphql.Field{
					Type: statsType,
					Args: graphql.FieldConfigArgument{
						"eventId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					},
					Resolve: func(p graphql.ResolveParams) (any, error) {
						eventID, _ := p.Args["eventId"].(string)
						stats, err := svc.GetStats(p.Context, eventID)
						if err != nil {
							return nil, fmt.Errorf("stats for %s: %w", eventID, err)
						}
						return stats, nil
					},
				},
				"recentAttempts": &graphql.Field{
					Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(attemptType))),
					Args: graphql.FieldConfigArgument{
						"eventId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
						"limit": &graphql.ArgumentConfig{
							Type:         graphql.Int,
							DefaultValue: service.DefaultRecentLimit,
						},
					},
					Resolve: func(p graphql.ResolveParams) (any, error) {
						eventID, _ := p.Args["eventId"].(string)
						limit, _ := p.Args["limit"].(int)
						attempts, err := service.CollectRecent(svc.GetRecentAttempts(p.Context, eventID, service.ClampRecentLimit(limit)))
						if err != nil {
							return nil, fmt.Errorf("recent attempts for %s: %w", eventID, err)
						}
						return attempts, nil
					},
				},
			},
		},
	)

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

// NewHandler serves the schema over HTTP (POST JSON or GET query string)
func NewHandler(schema *graphql.Schema, pretty bool) http.Handler {
	return handler.New(&handler.Config{
		Schema: schema,
		Pretty: pretty,
	})
}

// GinHandler adapts the GraphQL handler for a gin route
func GinHandler(svc service.CheckInService, pretty bool) (gin.HandlerFunc, error) {
	schema, err := NewSchema(svc)
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql schema: %w", err)
	}
	return gin.WrapH(NewHandler(&schema, pretty)), nil
}
