package adapter

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var stripeTools = []ToolDef{
	{Name: "list_customers", Description: "List customers, most recent first.", InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit":           map[string]any{"type": "integer"},
			"starting_after":  map[string]any{"type": "string"},
		},
	}},
	{Name: "list_charges", Description: "List charges, optionally filtered by customer and date range.", InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"customer":       map[string]any{"type": "string"},
			"created_after":  map[string]any{"type": "integer"},
			"created_before": map[string]any{"type": "integer"},
			"limit":          map[string]any{"type": "integer"},
			"starting_after": map[string]any{"type": "string"},
		},
	}},
}

const stripeMaxLimit = 100

// StripeAdapter implements §4.4.3's Stripe wrapper. Required credential
// field: "secret_key".
type StripeAdapter struct{}

func NewStripeAdapter() *StripeAdapter { return &StripeAdapter{} }

func (a *StripeAdapter) Service() string  { return "stripe" }
func (a *StripeAdapter) Tools() []ToolDef { return stripeTools }

func (a *StripeAdapter) Handle(ctx context.Context, tool string, args map[string]any, config Config) (Result, error) {
	secretKey := config["secret_key"]
	if secretKey == "" {
		return Result{Err: "credential missing required field \"secret_key\""}, nil
	}

	sc := &client.API{}
	sc.Init(secretKey, nil)

	switch tool {
	case "list_customers":
		params := &stripe.CustomerListParams{}
		params.Context = ctx
		applyStripeListParams(&params.ListParams, args)

		var customers []map[string]any
		iter := sc.Customers.List(params)
		for iter.Next() {
			c := iter.Customer()
			customers = append(customers, map[string]any{
				"id":    c.ID,
				"email": c.Email,
				"name":  c.Name,
				"created": c.Created,
			})
		}
		if err := iter.Err(); err != nil {
			return Result{Err: stripeErrMessage(err)}, nil
		}
		return Result{Ok: map[string]any{"customers": customers}}, nil

	case "list_charges":
		params := &stripe.ChargeListParams{}
		params.Context = ctx
		applyStripeListParams(&params.ListParams, args)
		if cust, ok := args["customer"].(string); ok && cust != "" {
			params.Customer = stripe.String(cust)
		}
		if after, ok := toInt(args["created_after"]); ok {
			params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: int64(after)}
		}
		if before, ok := toInt(args["created_before"]); ok {
			if params.CreatedRange == nil {
				params.CreatedRange = &stripe.RangeQueryParams{}
			}
			params.CreatedRange.LesserThan = int64(before)
		}

		var charges []map[string]any
		iter := sc.Charges.List(params)
		for iter.Next() {
			ch := iter.Charge()
			charges = append(charges, map[string]any{
				"id":       ch.ID,
				"amount":   ch.Amount,
				"currency": ch.Currency,
				"status":   ch.Status,
				"created":  ch.Created,
			})
		}
		if err := iter.Err(); err != nil {
			return Result{Err: stripeErrMessage(err)}, nil
		}
		return Result{Ok: map[string]any{"charges": charges}}, nil

	default:
		return Result{Err: fmt.Sprintf("unknown tool %q", tool)}, nil
	}
}

func applyStripeListParams(params *stripe.ListParams, args map[string]any) {
	limit := ClampLimit(args["limit"])
	if limit > stripeMaxLimit {
		limit = stripeMaxLimit
	}
	params.Limit = stripe.Int64(int64(limit))
	// Fetch one page only; callers page on with starting_after.
	params.Single = true
	if after, ok := args["starting_after"].(string); ok && after != "" {
		params.StartingAfter = stripe.String(after)
	}
}

func stripeErrMessage(err error) string {
	if stripeErr, ok := err.(*stripe.Error); ok {
		return fmt.Sprintf("stripe API error: %s", stripeErr.Msg)
	}
	return fmt.Sprintf("stripe API error: %v", err)
}
