package content

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	// innermost {a|b|c} group; brace pairs without a pipe (CSS) are kept
	spinGroup = regexp.MustCompile(`\{([^{}]*\|[^{}]*)\}`)
	// Liquid output and tag markup must survive spintax resolution.
	liquidMarkup = regexp.MustCompile(`\{\{.*?\}\}|\{%.*?%\}`)
)

// Spinner resolves spintax. Safe for concurrent use.
type Spinner struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSpinner creates a spinner. A zero seed uses the current time.
func NewSpinner(seed int64) *Spinner {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Spinner{rng: rand.New(rand.NewSource(seed))}
}

// Spin replaces every {a|b|c} group with one randomly chosen option,
// innermost groups first. Liquid {{ }} and {% %} markup is left intact.
func (s *Spinner) Spin(text string) string {
	if !strings.Contains(text, "|") {
		return text
	}

	var saved []string
	text = liquidMarkup.ReplaceAllStringFunc(text, func(m string) string {
		saved = append(saved, m)
		return fmt.Sprintf("\x00%d\x00", len(saved)-1)
	})

	s.mu.Lock()
	for {
		next := spinGroup.ReplaceAllStringFunc(text, func(m string) string {
			options := strings.Split(m[1:len(m)-1], "|")
			return options[s.rng.Intn(len(options))]
		})
		if next == text {
			break
		}
		text = next
	}
	s.mu.Unlock()

	for i, m := range saved {
		text = strings.Replace(text, fmt.Sprintf("\x00%d\x00", i), m, 1)
	}
	return text
}
