package resolve

import (
	"strings"

	"github.com/bhandras/shellkit/internal/gql"
)

// RouteData is one entry of the known-route table. Test takes precedence over
// Prefix; an empty Prefix without Test matches every path.
type RouteData struct {
	Prefix string
	Test   func(pathname string) bool
	Value  gql.EntityURL
}

// PrefixRoute matches every path starting with prefix.
func PrefixRoute(prefix, typ string, id int) RouteData {
	return RouteData{Prefix: prefix, Value: entity(typ, id)}
}

// PredicateRoute matches every path accepted by test.
func PredicateRoute(test func(string) bool, typ string, id int) RouteData {
	return RouteData{Test: test, Value: entity(typ, id)}
}

func entity(typ string, id int) gql.EntityURL {
	return gql.EntityURL{Type: typ, ID: &id, Typename: gql.EntityURLTypename}
}

func (r RouteData) matches(pathname string) bool {
	if r.Test != nil {
		return r.Test(pathname)
	}
	return strings.HasPrefix(pathname, r.Prefix)
}

// KnownRoute returns the entity of the first route matching pathname.
func KnownRoute(pathname string, routes []RouteData) (gql.EntityURL, bool) {
	for _, r := range routes {
		if r.matches(pathname) {
			return r.Value, true
		}
	}
	return gql.EntityURL{}, false
}

// EntityToComponentName turns an entity type into a component name:
// PRODUCT_DETAIL becomes ProductDetail.
func EntityToComponentName(typ string) string {
	parts := strings.Split(strings.ToLower(typ), "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
