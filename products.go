package backoffice

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cartstack/backoffice-go/forms"
	"github.com/cartstack/backoffice-go/gateway"
)

// Product is a catalog entry as the server reports it.
type Product struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Category    string   `json:"category"`
	Vendor      string   `json:"vendor"`
	Images      []string `json:"images"`
	Status      string   `json:"status"`
}

// ProductInput is the create/update form for a product.
type ProductInput struct {
	Name        string  `json:"name" jsonschema:"required,minLength=2"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price" jsonschema:"required,minimum=0"`
	Stock       int     `json:"stock" jsonschema:"minimum=0"`
	Category    string  `json:"category" jsonschema:"required"`
}

// Upload is a file attached to a multipart submission.
type Upload struct {
	// Name is the file name reported to the server.
	Name string
	// Content is consumed once while the request body is built.
	Content io.Reader
}

// ListOptions selects a page of a collection listing.
type ListOptions struct {
	Page    int
	PerPage int
	Search  string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		q.Set("limit", strconv.Itoa(o.PerPage))
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	return q
}

// ProductService manages the /products endpoints.
type ProductService struct {
	c *Client
}

// Products returns the product service.
func (c *Client) Products() *ProductService { return &ProductService{c: c} }

// List fetches a page of products.
func (s *ProductService) List(ctx context.Context, opts ListOptions) ([]Product, error) {
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Path:         "/products",
		Query:        opts.query(),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var out []Product
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one product by ID.
func (s *ProductService) Get(ctx context.Context, id string) (*Product, error) {
	res, err := s.c.gw.Do(ctx, gateway.Request{
		Path:         "/products/" + url.PathEscape(id),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var p Product
	if err := res.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create validates the form and submits it together with any image files
// as one multipart request.
func (s *ProductService) Create(ctx context.Context, in ProductInput, images ...Upload) (*Product, error) {
	if err := forms.Validate(in); err != nil {
		return nil, err
	}

	res, err := s.c.gw.Do(ctx, gateway.Request{
		Method:       http.MethodPost,
		Path:         "/products",
		Multipart:    productMultipart(in, images),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var p Product
	if err := res.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update validates the form and replaces the product, optionally swapping
// in new images.
func (s *ProductService) Update(ctx context.Context, id string, in ProductInput, images ...Upload) (*Product, error) {
	if err := forms.Validate(in); err != nil {
		return nil, err
	}

	res, err := s.c.gw.Do(ctx, gateway.Request{
		Method:       http.MethodPut,
		Path:         "/products/" + url.PathEscape(id),
		Multipart:    productMultipart(in, images),
		AuthRequired: true,
	})
	if err != nil {
		return nil, err
	}
	var p Product
	if err := res.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a product.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	_, err := s.c.gw.Do(ctx, gateway.Request{
		Method:       http.MethodDelete,
		Path:         "/products/" + url.PathEscape(id),
		AuthRequired: true,
	})
	return err
}

func productMultipart(in ProductInput, images []Upload) *gateway.Multipart {
	mp := &gateway.Multipart{
		Fields: map[string]string{
			"name":        in.Name,
			"description": in.Description,
			"price":       strconv.FormatFloat(in.Price, 'f', -1, 64),
			"stock":       strconv.Itoa(in.Stock),
			"category":    in.Category,
		},
	}
	for _, img := range images {
		mp.Files = append(mp.Files, gateway.File{
			Field:   "images",
			Name:    img.Name,
			Content: img.Content,
		})
	}
	return mp
}
