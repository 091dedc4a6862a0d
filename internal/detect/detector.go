// Package detect classifies fetched provider pages as open or closed for
// registration.
package detect

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Page is everything the detector looks at: the response status and body.
type Page struct {
	URL    string
	Status int
	Body   string
}

type Result struct {
	Open         bool
	Positive     []string
	Negative     []string
	FormSignal   bool
	ButtonSignal bool
	OpensAt      *time.Time
}

var positiveKeywords = []string{
	"register now",
	"registration is open",
	"registration now open",
	"registration open",
	"sign up for",
	"sign up now",
	"enroll now",
	"enrollment is open",
	"add to cart",
	"book now",
	"spots available",
}

var negativeKeywords = []string{
	"registration closed",
	"registration is closed",
	"registration has closed",
	"registration opens",
	"registration will open",
	"coming soon",
	"not yet open",
	"sold out",
	"waitlist only",
	"enrollment closed",
}

var formTerms = []string{"register", "registration", "enroll", "sign up", "signup"}

var buttonVerbs = []string{"register", "enroll", "sign up", "signup", "book now", "add to cart"}

// IsOpen is the boolean form of Detect.
func IsOpen(content string, status int) bool {
	return Detect(Page{Status: status, Body: content}).Open
}

// Detect is deliberately biased toward "closed" on mixed signals: a negative
// keyword always wins.
func Detect(p Page) Result {
	return DetectIn(p, time.UTC)
}

// DetectIn is Detect with announced opening times read in loc.
func DetectIn(p Page, loc *time.Location) Result {
	var r Result
	if p.Status >= 400 {
		return r
	}

	doc := parse(p.Body)
	text := normalize(doc.text)

	r.Positive = matches(text, positiveKeywords)
	r.Negative = matches(text, negativeKeywords)
	r.FormSignal = doc.registrationForm
	r.ButtonSignal = doc.registrationButton
	r.OpensAt = ExtractOpenTime(text, loc)

	r.Open = (len(r.Positive) > 0 || r.FormSignal || r.ButtonSignal) && len(r.Negative) == 0
	return r
}

func matches(text string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if strings.Contains(text, k) {
			out = append(out, k)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

type parsedDoc struct {
	text               string
	registrationForm   bool
	registrationButton bool
}

// parse walks the HTML once, collecting visible text plus form and button
// signals. Unparseable input degrades to treating the body as plain text.
func parse(body string) parsedDoc {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return parsedDoc{text: body}
	}

	var (
		out parsedDoc
		sb  strings.Builder
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "form":
				label := normalize(nodeText(n) + " " + attr(n, "action") + " " + attr(n, "id") + " " + attr(n, "name"))
				if containsAny(label, formTerms) {
					out.registrationForm = true
				}
			case "button":
				if containsAny(normalize(nodeText(n)), buttonVerbs) {
					out.registrationButton = true
				}
			case "input":
				typ := strings.ToLower(attr(n, "type"))
				if (typ == "submit" || typ == "button") && containsAny(normalize(attr(n, "value")), buttonVerbs) {
					out.registrationButton = true
				}
			case "a":
				if strings.EqualFold(attr(n, "role"), "button") && containsAny(normalize(nodeText(n)), buttonVerbs) {
					out.registrationButton = true
				}
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	out.text = sb.String()
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
