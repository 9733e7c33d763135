package backoffice

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cartstack/backoffice-go/forms"
	"github.com/cartstack/backoffice-go/gateway"
)

// Vendor is a marketplace seller account.
type Vendor struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// VendorStatusForm moderates a vendor account.
type VendorStatusForm struct {
	Status string `json:"status" jsonschema:"required,enum=approved,enum=rejected,enum=pending"`
}

// VendorService manages the /vendors endpoints.
type VendorService struct {
	c *Client
}

// Vendors returns the vendor service.
func (c *Client) Vendors() *VendorService { return &VendorService{c: c} }

// List fetches a page of vendors.
func (s *VendorService) List(ctx context.Context, opts ListOptions) ([]Vendor, error) {
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Path:         "/vendors",
		Query:        opts.query(),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var out []Vendor
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one vendor by ID.
func (s *VendorService) Get(ctx context.Context, id string) (*Vendor, error) {
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Path:         "/vendors/" + url.PathEscape(id),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var v Vendor
	if err := res.Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetStatus approves or rejects a vendor application.
func (s *VendorService) SetStatus(ctx context.Context, id string, form VendorStatusForm) error {
	if err := forms.Validate(form); err != nil {
		return err
	}
	_, err := s.c.gw.Do(ctx, gateway.Request{
		Method:       http.MethodPatch,
		Path:         "/vendors/" + url.PathEscape(id) + "/status",
		Body:         form,
		AuthRequired: true,
	})
	return err
}
