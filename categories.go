package backoffice

import (
	"context"
	"net/http"
	"net/url"

	"github.com/cartstack/backoffice-go/forms"
	"github.com/cartstack/backoffice-go/gateway"
)

// Category is a product grouping.
type Category struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// CategoryForm creates a category.
type CategoryForm struct {
	Name string `json:"name" jsonschema:"required,minLength=2"`
}

// CategoryService manages the /categories endpoints.
type CategoryService struct {
	c *Client
}

// Categories returns the category service.
func (c *Client) Categories() *CategoryService { return &CategoryService{c: c} }

// List fetches all categories.
func (s *CategoryService) List(ctx context.Context) ([]Category, error) {
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Path:         "/categories",
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var out []Category
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create validates and adds a category.
func (s *CategoryService) Create(ctx context.Context, form CategoryForm) (*Category, error) {
	if err := forms.Validate(form); err != nil {
		return nil, err
	}
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Method:       http.MethodPost,
		Path:         "/categories",
		Body:         form,
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var cat Category
	if err := res.Decode(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Delete removes a category.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	_, err := s.c.gw.Do(ctx, gateway.Request{
		Method:       http.MethodDelete,
		Path:         "/categories/" + url.PathEscape(id),
		AuthRequired: true,
	})
	return err
}
