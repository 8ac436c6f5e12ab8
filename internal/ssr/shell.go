package ssr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ShellProps fill the HTML document. Empty fields take the defaults noted.
type ShellProps struct {
	// Content defaults to a "content missing" comment.
	Content string
	// State is serialized into apollo-client-state. Nil means {}.
	State any
	// CSS is preloaded, JS preloaded and loaded as modules, LegacyJS loaded
	// with nomodule.
	CSS      []string
	JS       []string
	LegacyJS []string
	// CriticalCSS is inlined.
	CriticalCSS string
	Title       string
	Link        string
	Meta        string
	// AfterBodyStart and BeforeBodyEnd are written verbatim.
	AfterBodyStart string
	BeforeBodyEnd  string
	// Version defaults to "__development__".
	Version string
	// Domain defaults to "example.com".
	Domain string
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// StateJSON serializes v for embedding in a script tag.
func StateJSON(v any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ssr: encode state: %w", err)
	}
	return strings.ReplaceAll(string(data), "<", `\u003c`), nil
}

// RenderShell renders the document without the doctype.
func RenderShell(p ShellProps) (string, error) {
	state, err := StateJSON(p.State)
	if err != nil {
		return "", err
	}
	env, err := json.Marshal(map[string]string{
		"VERSION": orDefault(p.Version, "__development__"),
		"DOMAIN":  orDefault(p.Domain, "example.com"),
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("\n<html lang=\"en\">\n    <head>\n")
	b.WriteString("        <meta name=\"robots\" content=\"noindex\">\n")
	fmt.Fprintf(&b, "        %s\n", orDefault(p.Link, "<!-- link elements missing -->"))
	fmt.Fprintf(&b, "        %s\n", orDefault(p.Title, "<!-- title missing -->"))
	fmt.Fprintf(&b, "        %s\n", orDefault(p.Meta, "<!-- meta element missing -->"))
	fmt.Fprintf(&b, "        <style>\n            %s\n        </style>\n", orDefault(p.CriticalCSS, "<!-- critical css missing -->"))

	b.WriteString("        ")
	for _, x := range p.CSS {
		fmt.Fprintf(&b, `<link rel="preload" href="/%s" as="style" crossorigin onload="this.onload=null;this.rel='stylesheet'">`, x)
	}
	b.WriteString("\n        <noscript>\n        ")
	for _, x := range p.CSS {
		fmt.Fprintf(&b, `<link href="/%s" rel="stylesheet" />`, x)
	}
	b.WriteString("\n        </noscript>\n        ")
	for _, x := range p.JS {
		fmt.Fprintf(&b, `<link rel="preload" as="script" crossorigin href="/%s" />`, x)
	}
	b.WriteString("\n    </head>\n    <body>\n")

	fmt.Fprintf(&b, "        %s\n", p.AfterBodyStart)
	fmt.Fprintf(&b, "        <div id=\"root\">%s</div>\n", orDefault(p.Content, "<!-- content missing -->"))
	fmt.Fprintf(&b, "        <script type=\"text/json\" id=\"apollo-client-state\">%s</script>\n", state)
	fmt.Fprintf(&b, "        <script type=\"text/json\" id=\"app-env\">%s</script>\n", env)
	b.WriteString("        <script type=\"module\">window.__moduleSupport = true;</script>\n        ")
	for _, x := range p.JS {
		fmt.Fprintf(&b, `<script type="module" src="/%s"></script>`, x)
	}
	b.WriteString("\n        ")
	for _, x := range p.LegacyJS {
		fmt.Fprintf(&b, `<script nomodule async defer src="/%s"></script>`, x)
	}
	fmt.Fprintf(&b, "\n        %s\n    </body>\n</html>\n", p.BeforeBodyEnd)
	return b.String(), nil
}

// DefaultErrorHTML is the fallback 500 page. It inlines the critical CSS.
func DefaultErrorHTML(assets CriticalAssets, err error) string {
	html, rerr := RenderShell(ShellProps{
		Content:     `<main class="ssr-error"><h1>Something went wrong</h1><p>Please try again in a moment.</p></main>`,
		CriticalCSS: assets.CSS,
		Title:       "<title>Error</title>",
	})
	if rerr != nil {
		return "<!doctype html>\n<h1>Something went wrong</h1>"
	}
	return "<!doctype html>\n" + html
}
