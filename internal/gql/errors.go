package gql

import (
	"fmt"
	"sync"

	"github.com/bhandras/shellkit/pkg/logger"
)

// ErrorType classifies an error collected during one server request.
type ErrorType string

const (
	NotFound ErrorType = "NotFound"
	GqlError ErrorType = "GqlError"
	Network  ErrorType = "Network"
	Redirect ErrorType = "Redirect"
)

// Error is one collected entry. Which fields are set depends on Type.
type Error struct {
	Type ErrorType

	// NotFound.
	Pathname string
	// GqlError.
	Message string
	Path    string
	// GqlError and Network.
	Operation string
	Err       error
	// Redirect.
	Status int
	URL    string
}

// Collector accumulates errors for the lifetime of one request.
type Collector struct {
	mu   sync.Mutex
	errs []Error
}

// Add appends e.
func (c *Collector) Add(e Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, e)
}

// Errors returns a copy of everything collected.
func (c *Collector) Errors() []Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Error(nil), c.errs...)
}

// Redirect returns the first collected redirect.
func (c *Collector) Redirect() (Error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.errs {
		if e.Type == Redirect {
			return e, true
		}
	}
	return Error{}, false
}

// Links returns the url resolver link followed by the network link.
func (c *Collector) Links() []Link {
	return []Link{c.URLResolverLink(), c.NetworkLink()}
}

// URLResolverLink records NotFound for a null urlResolver and Redirect for a
// REDIRECT entity.
func (c *Collector) URLResolverLink() Link {
	return func(op Operation, resp *Response, err error) {
		if err != nil || resp == nil || op.Name != ResolveURLOperation {
			return
		}
		res, derr := DecodeURLResult(resp)
		if derr != nil || !res.Present {
			return
		}
		urlKey, _ := op.Variables["urlKey"].(string)
		switch {
		case res.Entity == nil:
			c.Add(Error{Type: NotFound, Pathname: urlKey})
		case res.Entity.Type == "REDIRECT":
			e := Error{Type: Redirect}
			if res.Entity.RedirectType != nil {
				e.Status = *res.Entity.RedirectType
			}
			if res.Entity.RedirectURL != nil {
				e.URL = *res.Entity.RedirectURL
			}
			c.Add(e)
		default:
			logger.Debugf("gql: %s resolved to %s", urlKey, res.Entity.Type)
		}
	}
}

// NetworkLink records GraphQL errors and transport failures.
func (c *Collector) NetworkLink() Link {
	return func(op Operation, resp *Response, err error) {
		if resp != nil {
			for _, ge := range resp.Errors {
				logger.Warnf("gql: [GraphQL error] %s: %s (path %v)", op.Name, ge.Message, ge.Path)
				c.Add(Error{
					Type:      GqlError,
					Message:   ge.Message,
					Path:      fmt.Sprint(ge.Path),
					Operation: op.Name,
				})
			}
		}
		if err != nil {
			c.Add(Error{Type: Network, Operation: op.Name, Err: err})
		}
	}
}
