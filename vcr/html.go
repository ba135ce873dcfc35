package vcr

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Link is an anchor extracted from a page, used by the 'l' action: follow_link
// link_text|href_substring.
type Link struct {
	Text string
	Href string
}

// FormField is one input/select/textarea control found inside a Form.
type FormField struct {
	Name    string
	Value   string
	Type    string // "text", "password", "hidden", "checkbox", "radio", "submit", "select", ...
	Checked bool
}

// Form is an HTML <form> extracted from a page, used by the 'f' action, which selects
// one by a substring of its action attribute.
type Form struct {
	Action string
	Method string
	Fields []FormField
}

// parsePage builds a tree with golang.org/x/net/html's Parse and walks it, per Design
// Notes §9's "composed parser instances (no HTMLParser subclassing)": rather than
// subclassing a parser type, parsePage composes the standard parser and returns plain
// data. html.Parse repairs malformed markup itself; if it returns an error, parsePage
// returns no links and no forms.
func parsePage(body []byte, baseURL string) (links []Link, forms []Form) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, nil
	}

	var form *Form
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				href := attr(n, "href")
				if href != "" {
					links = append(links, Link{Text: textContent(n), Href: href})
				}
			case "form":
				f := Form{Action: attr(n, "action"), Method: strings.ToUpper(attr(n, "method"))}
				if f.Method == "" {
					f.Method = "GET"
				}
				forms = append(forms, f)
				form = &forms[len(forms)-1]
			case "input":
				if form != nil {
					typ := attr(n, "type")
					if typ == "" {
						typ = "text"
					}
					_, checked := findAttr(n, "checked")
					form.Fields = append(form.Fields, FormField{
						Name:    attr(n, "name"),
						Value:   attr(n, "value"),
						Type:    typ,
						Checked: checked,
					})
				}
			case "select":
				if form != nil {
					form.Fields = append(form.Fields, FormField{Name: attr(n, "name"), Type: "select", Value: selectedOption(n)})
				}
			case "textarea":
				if form != nil {
					form.Fields = append(form.Fields, FormField{Name: attr(n, "name"), Type: "textarea", Value: textContent(n)})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && n.Data == "form" {
			form = nil
		}
	}
	walk(root)
	return links, forms
}

func attr(n *html.Node, name string) string {
	v, _ := findAttr(n, name)
	return v
}

func findAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func selectedOption(selectNode *html.Node) string {
	var found string
	for c := selectNode.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "option" {
			if _, ok := findAttr(c, "selected"); ok {
				return attr(c, "value")
			}
			if found == "" {
				found = attr(c, "value")
			}
		}
	}
	return found
}

// parseMetaRefresh scans for <meta http-equiv="refresh" content="N;url=...">, per
// spec §4.4: "if present, automatically follow it (non-action-recorded hop)". It
// returns the resolved target URL and whether one was found.
func parseMetaRefresh(body []byte, baseURL string) (string, bool) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", false
	}

	var target string
	var found bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			if strings.EqualFold(attr(n, "http-equiv"), "refresh") {
				if u, ok := parseRefreshContent(attr(n, "content")); ok {
					resolved, err := resolveURL(baseURL, u)
					if err == nil {
						target, found = resolved, true
						return
					}
				}
			}
		}
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return target, found
}

// parseRefreshContent parses "N;url=target" (or bare "N") content attribute values.
func parseRefreshContent(content string) (string, bool) {
	parts := strings.SplitN(content, ";", 2)
	if _, err := strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return "", false
	}
	if len(parts) < 2 {
		return "", false
	}
	rest := strings.TrimSpace(parts[1])
	idx := strings.IndexByte(rest, '=')
	if idx < 0 || !strings.EqualFold(strings.TrimSpace(rest[:idx]), "url") {
		return "", false
	}
	u := strings.TrimSpace(rest[idx+1:])
	u = strings.Trim(u, `"'`)
	if u == "" {
		return "", false
	}
	return u, true
}
