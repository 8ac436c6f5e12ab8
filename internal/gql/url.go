package gql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	// ResolveURLOperation is the operation name of the url resolver query.
	ResolveURLOperation = "resolveUrl"

	// EntityURLTypename is the __typename of url resolver entities.
	EntityURLTypename = "EntityUrl"

	// URLResolverQuery is the default url resolver query.
	URLResolverQuery = `query resolveUrl($urlKey: String!) {
  urlResolver(url: $urlKey) {
    id
    type
    canonical_url
    redirect_type
    redirect_url
    relative_url
    __typename
  }
}`
)

// EntityURL is what the backend knows about a path.
type EntityURL struct {
	Type         string  `json:"type"`
	ID           *int    `json:"id"`
	Typename     string  `json:"__typename,omitempty"`
	CanonicalURL *string `json:"canonical_url,omitempty"`
	RedirectType *int    `json:"redirect_type,omitempty"`
	RedirectURL  *string `json:"redirect_url,omitempty"`
	RelativeURL  *string `json:"relative_url,omitempty"`
}

// URLEntry pairs a path with its entity, for cache prefill.
type URLEntry struct {
	URLKey string `json:"urlKey"`
	EntityURL
}

// URLResult is the decoded urlResolver field. Present is false when the field
// is missing from the response altogether; Entity is nil when it was null.
type URLResult struct {
	Present bool
	Entity  *EntityURL
}

// ResolveURLOp builds the url resolver operation for urlKey. An empty query
// selects URLResolverQuery.
func ResolveURLOp(urlKey, query string) Operation {
	if query == "" {
		query = URLResolverQuery
	}
	return Operation{
		Name:      ResolveURLOperation,
		Query:     query,
		Variables: map[string]any{"urlKey": urlKey},
	}
}

// DecodeURLResult extracts the urlResolver field from resp.
func DecodeURLResult(resp *Response) (URLResult, error) {
	field := resp.Get("urlResolver")
	if !field.Exists() {
		return URLResult{}, nil
	}
	if field.Type == gjson.Null {
		return URLResult{Present: true}, nil
	}
	var e EntityURL
	if err := json.Unmarshal([]byte(field.Raw), &e); err != nil {
		return URLResult{}, fmt.Errorf("gql: decode urlResolver: %w", err)
	}
	return URLResult{Present: true, Entity: &e}, nil
}

// ResolveURL runs the url resolver query for urlKey.
func (c *Client) ResolveURL(ctx context.Context, urlKey, query string) (URLResult, error) {
	resp, err := c.Query(ctx, ResolveURLOp(urlKey, query))
	if err != nil {
		return URLResult{}, err
	}
	if len(resp.Errors) > 0 {
		return URLResult{}, fmt.Errorf("gql: %s: %s", ResolveURLOperation, resp.Errors[0].Message)
	}
	return DecodeURLResult(resp)
}

// CachedURL reads a previously resolved entity for urlKey from the cache.
func (c *Client) CachedURL(urlKey, query string) (*EntityURL, bool) {
	resp, ok := c.ReadQuery(ResolveURLOp(urlKey, query))
	if !ok {
		return nil, false
	}
	res, err := DecodeURLResult(resp)
	if err != nil || res.Entity == nil {
		return nil, false
	}
	return res.Entity, true
}

// WriteURLs prefills the cache so later navigations to these paths skip the
// network.
func (c *Client) WriteURLs(entries []URLEntry, query string) error {
	for _, entry := range entries {
		entity := entry.EntityURL
		entity.Typename = EntityURLTypename
		data := map[string]any{"urlResolver": entity}
		if err := c.WriteQuery(ResolveURLOp(entry.URLKey, query), data); err != nil {
			return err
		}
	}
	return nil
}
