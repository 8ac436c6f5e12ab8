package browser

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// Element ids the server embeds into the document.
const (
	StateElement = "apollo-client-state"
	EnvElement   = "app-env"
)

// ReadJSON returns the JSON text of the element with the given id. A missing
// element or invalid JSON yields {}.
func ReadJSON(doc []byte, id string) json.RawMessage {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		log.Errorf("parse document: %v", err)
		return json.RawMessage("{}")
	}
	n := findByID(root, id)
	if n == nil {
		return json.RawMessage("{}")
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	raw := strings.TrimSpace(b.String())
	if !json.Valid([]byte(raw)) {
		log.Errorf("element #%s does not hold valid JSON", id)
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
