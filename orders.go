package backoffice

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cartstack/backoffice-go/forms"
	"github.com/cartstack/backoffice-go/gateway"
)

// OrderItem is one line of an order.
type OrderItem struct {
	Product  string  `json:"product"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is a customer order as the server reports it.
type Order struct {
	ID        string      `json:"_id"`
	Customer  string      `json:"customer"`
	Items     []OrderItem `json:"items"`
	Total     float64     `json:"total"`
	Status    string      `json:"status"`
	CreatedAt string      `json:"createdAt"`
}

// OrderStatusForm advances an order through fulfilment.
type OrderStatusForm struct {
	Status string `json:"status" jsonschema:"required,enum=pending,enum=processing,enum=shipped,enum=delivered,enum=cancelled"`
}

// OrderService manages the /orders endpoints.
type OrderService struct {
	c *Client
}

// Orders returns the order service.
func (c *Client) Orders() *OrderService { return &OrderService{c: c} }

// List fetches a page of orders.
func (s *OrderService) List(ctx context.Context, opts ListOptions) ([]Order, error) {
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Path:         "/orders",
		Query:        opts.query(),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var out []Order
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one order by ID.
func (s *OrderService) Get(ctx context.Context, id string) (*Order, error) {
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Path:         "/orders/" + url.PathEscape(id),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var o Order
	if err := res.Decode(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetStatus moves an order to a new fulfilment state.
func (s *OrderService) SetStatus(ctx context.Context, id string, form OrderStatusForm) error {
	if err := forms.Validate(form); err != nil {
		return err
	}
	_, err := s.c.gw.Do(ctx, gateway.Request{
		Method:       http.MethodPatch,
		Path:         "/orders/" + url.PathEscape(id) + "/status",
		Body:         form,
		AuthRequired: true,
	})
	return err
}
