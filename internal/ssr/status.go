package ssr

import (
	"net/http"

	"github.com/bhandras/shellkit/internal/gql"
)

// StatusFromErrors maps the errors collected during one request onto an
// HTTP status. GraphQL and network errors win over everything else.
func StatusFromErrors(errs []gql.Error) int {
	if len(errs) == 0 {
		return http.StatusOK
	}
	var notFound bool
	redirect := 0
	for _, e := range errs {
		switch e.Type {
		case gql.GqlError, gql.Network:
			return http.StatusInternalServerError
		case gql.NotFound:
			notFound = true
		case gql.Redirect:
			if redirect == 0 {
				redirect = redirectStatus(e.Status)
			}
		}
	}
	switch {
	case redirect != 0:
		return redirect
	case notFound:
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

// redirectStatus keeps 3xx codes and maps anything else to 301.
func redirectStatus(code int) int {
	if code >= http.StatusMultipleChoices && code <= http.StatusPermanentRedirect {
		return code
	}
	return http.StatusMovedPermanently
}
