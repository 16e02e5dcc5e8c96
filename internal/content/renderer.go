package content

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// Renderer executes Liquid templates with a per-source parse cache.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the outreach filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	engine.RegisterFilter("capitalize_words", func(value string) string {
		return titleCase(value)
	})

	return &Renderer{engine: engine}
}

// Render executes src against vars. Missing variables render empty.
func (r *Renderer) Render(src string, vars map[string]interface{}) (string, error) {
	if !strings.Contains(src, "{{") && !strings.Contains(src, "{%") {
		return src, nil
	}

	var tpl *liquid.Template
	if cached, ok := r.cache.Load(src); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(src)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		r.cache.Store(src, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// LeadVars builds the template variables available to every message.
func LeadVars(c *domain.Campaign, l *domain.Lead, unsubscribeURL string) map[string]interface{} {
	return map[string]interface{}{
		"first_name":      l.FirstName,
		"last_name":       l.LastName,
		"full_name":       l.FullName,
		"email":           l.Email,
		"company":         l.Company,
		"campaign_name":   c.Name,
		"sender_name":     c.FromName,
		"unsubscribe_url": unsubscribeURL,
	}
}

var (
	htmlTag    = regexp.MustCompile(`(?s)<[^>]*>`)
	blockBreak = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/h[1-6])\s*/?>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// PlainText derives a text/plain alternative from an HTML body.
func PlainText(html string) string {
	text := blockBreak.ReplaceAllString(html, "\n")
	text = htmlTag.ReplaceAllString(text, "")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(ln)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
