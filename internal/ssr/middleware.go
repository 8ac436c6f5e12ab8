// Package ssr renders the application shell on the server.
//
// One request builds a fresh GraphQL client scoped to the caller's cookies,
// resolves the path, renders the root component against a store that never
// runs epics, and embeds the client cache into the document so the browser
// can continue from the same state.
package ssr

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bhandras/shellkit/internal/gql"
	"github.com/bhandras/shellkit/internal/resolve"
	"github.com/bhandras/shellkit/internal/store"
	"github.com/bhandras/shellkit/internal/ui"
	"github.com/bhandras/shellkit/pkg/logger"
)

var (
	log = logger.Named("ssr")

	assetRequest = regexp.MustCompile(`\.(map|ico)$`)

	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shellkit",
		Subsystem: "ssr",
		Name:      "requests_total",
		Help:      "Rendered requests by response status.",
	}, []string{"status"})

	renderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shellkit",
		Subsystem: "ssr",
		Name:      "render_seconds",
		Help:      "Time from request to written document.",
		Buckets:   prometheus.DefBuckets,
	})

	tracer = otel.Tracer("github.com/bhandras/shellkit/internal/ssr")
)

// AppParams are handed to the App factory for every request.
type AppParams struct {
	Client   *gql.Client
	Resolved resolve.ResolvedURL
	Domain   string
	Version  string
	RawPath  string
	Store    *store.Store
}

// Page is what the App factory renders. Title, Link and Meta are markup for
// the document head.
type Page struct {
	Root  ui.Component
	Props ui.Props
	Title string
	Link  string
	Meta  string
}

// AppFunc builds the page for one request.
type AppFunc func(ctx context.Context, p AppParams) (Page, error)

// ErrorHTMLFunc renders the document sent with a 500.
type ErrorHTMLFunc func(assets CriticalAssets, err error) string

// Params configure NewMiddleware.
type Params struct {
	Stats             Stats
	LegacyStats       Stats
	AssetPrefix       string
	LegacyAssetPrefix string
	DistDir           string

	// Backend is the GraphQL origin.
	Backend string
	Domain  string
	Version string

	AfterBodyStart string
	BeforeBodyEnd  string

	App         AppFunc
	KnownRoutes []resolve.RouteData
	// Links run after the error collector's links.
	Links    []gql.Link
	URLQuery string
	// ErrorHTML defaults to DefaultErrorHTML.
	ErrorHTML ErrorHTMLFunc

	// HTTP overrides the transport of the per-request clients.
	HTTP *http.Client
	// MaxElapsed bounds GraphQL retries within one request.
	MaxElapsed time.Duration
	// Setup extends the per-request store.
	Setup SetupParams
}

// ErrNoApp is returned by NewMiddleware without an App factory.
var ErrNoApp = errors.New("ssr: no app factory")

type middleware struct {
	p        Params
	critical CriticalAssets
	entry    []string
	legacy   []string
}

// NewMiddleware reads the critical assets once and returns the handler.
// Requests for source maps and icons fall through to the next handler.
func NewMiddleware(p Params) (gin.HandlerFunc, error) {
	if p.App == nil {
		return nil, ErrNoApp
	}
	if p.ErrorHTML == nil {
		p.ErrorHTML = DefaultErrorHTML
	}
	critical, err := ReadCriticalAssets(p.Stats, p.DistDir)
	if err != nil {
		return nil, err
	}
	m := &middleware{
		p:        p,
		critical: critical,
		entry:    EntryPoints(p.Stats),
		legacy:   EntryPoints(p.LegacyStats),
	}
	return m.handle, nil
}

func (m *middleware) handle(c *gin.Context) {
	raw := c.Request.URL.RequestURI()
	if !strings.HasPrefix(raw, "/") || assetRequest.MatchString(c.Request.URL.Path) {
		c.Next()
		return
	}

	start := time.Now()
	ctx, span := tracer.Start(c.Request.Context(), "ssr.Render")
	span.SetAttributes(attribute.String("http.target", raw))
	defer span.End()

	log.Debugf("handling a request for %s", raw)

	status, doc, location, err := m.render(ctx, c.Request, raw)
	if err != nil {
		log.Errorf("a failure occurred during SSR for %s: %v", raw, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status, doc = http.StatusInternalServerError, m.p.ErrorHTML(m.critical, err)
	}

	requests.WithLabelValues(strconv.Itoa(status)).Inc()
	renderSeconds.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", status))

	if location != "" {
		c.Redirect(status, location)
		c.Abort()
		return
	}
	c.Data(status, "text/html; charset=utf-8", []byte(doc))
	c.Abort()
}

func (m *middleware) render(ctx context.Context, req *http.Request, raw string) (status int, doc, location string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ssr: panic: %v", r)
		}
	}()

	var collector gql.Collector
	header := http.Header{}
	if cookie := req.Header.Get("Cookie"); cookie != "" {
		header.Set("Cookie", cookie)
	}
	client, err := gql.New(gql.Options{
		Backend:    m.p.Backend,
		Header:     header,
		Links:      append(collector.Links(), m.p.Links...),
		HTTP:       m.p.HTTP,
		MaxElapsed: m.p.MaxElapsed,
	})
	if err != nil {
		return 0, "", "", err
	}
	defer client.Close()

	pathname := req.URL.Path
	fetched, err := resolve.FetchFromKnownOrNetwork(ctx, pathname, client, m.p.KnownRoutes, m.p.URLQuery)
	if err != nil {
		return 0, "", "", err
	}
	resolved, err := resolve.ConvertToResolved(fetched)
	if err != nil {
		return 0, "", "", err
	}
	log.Debugf("resolved %s to %s", pathname, resolved.ComponentName)

	if redirect, ok := collector.Redirect(); ok && redirect.URL != "" {
		return redirectStatus(redirect.Status), "", redirect.URL, nil
	}

	setup := m.p.Setup
	setup.Client = client
	setup.RawPath = raw
	setup.Domain = m.p.Domain
	setup.Version = m.p.Version
	st, err := SetupStore(setup)
	if err != nil {
		return 0, "", "", err
	}
	defer st.Close()

	page, err := m.p.App(ctx, AppParams{
		Client:   client,
		Resolved: resolved,
		Domain:   m.p.Domain,
		Version:  m.p.Version,
		RawPath:  raw,
		Store:    st,
	})
	if err != nil {
		return 0, "", "", err
	}
	content, err := ui.RenderToString(ctx, page.Root, page.Props)
	if err != nil {
		return 0, "", "", err
	}

	names := []string{resolved.ComponentName}
	forType := AssetsForType(names, m.p.Stats)
	legacyForType := AssetsForType(names, m.p.LegacyStats)

	shell, err := RenderShell(ShellProps{
		Content:        content,
		State:          client.Extract(),
		CriticalCSS:    m.critical.CSS,
		CSS:            prefixed(m.p.AssetPrefix, forType.CSS),
		JS:             prefixed(m.p.AssetPrefix, append(forType.JS, m.entry...)),
		LegacyJS:       prefixed(m.p.LegacyAssetPrefix, append(append([]string(nil), m.legacy...), legacyForType.JS...)),
		Title:          page.Title,
		Link:           page.Link,
		Meta:           page.Meta,
		AfterBodyStart: m.p.AfterBodyStart,
		BeforeBodyEnd:  m.p.BeforeBodyEnd,
		Domain:         m.p.Domain,
		Version:        m.p.Version,
	})
	if err != nil {
		return 0, "", "", err
	}
	return StatusFromErrors(collector.Errors()), "<!doctype html>\n" + shell, "", nil
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, path.Join(prefix, n))
	}
	return out
}

// RegistryApp renders the component registered under the resolved name,
// falling back to notFound when the registry has no entry.
func RegistryApp(registry *ui.Registry, notFound ui.Component) AppFunc {
	return func(_ context.Context, p AppParams) (Page, error) {
		props := ui.Props{ID: p.Resolved.ID, Pathname: p.Resolved.URLKey}
		if c, ok := registry.Lookup(p.Resolved.ComponentName); ok {
			return Page{Root: c, Props: props}, nil
		}
		if notFound == nil {
			return Page{}, fmt.Errorf("ssr: no component for %q", p.Resolved.ComponentName)
		}
		return Page{Root: notFound, Props: props}, nil
	}
}

// PlaceholderApp renders an empty mount point naming the resolved component
// for the client to fill in.
func PlaceholderApp() AppFunc {
	return func(_ context.Context, p AppParams) (Page, error) {
		root := ui.ComponentFunc(func(_ context.Context, w io.Writer, props ui.Props) error {
			id := ""
			if props.ID != nil {
				id = strconv.Itoa(*props.ID)
			}
			_, err := fmt.Fprintf(w, `<div data-component="%s" data-id="%s" data-pathname="%s"></div>`,
				html.EscapeString(p.Resolved.ComponentName), id, html.EscapeString(props.Pathname))
			return err
		})
		return Page{Root: root, Props: ui.Props{ID: p.Resolved.ID, Pathname: p.Resolved.URLKey}}, nil
	}
}
