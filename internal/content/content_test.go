package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

func TestSpin_ChoosesFromOptions(t *testing.T) {
	s := NewSpinner(42)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		out := s.Spin("{Hi|Hello|Hey} there")
		seen[out] = true
		assert.Contains(t, []string{"Hi there", "Hello there", "Hey there"}, out)
	}
	assert.Len(t, seen, 3)
}

func TestSpin_Nested(t *testing.T) {
	s := NewSpinner(7)
	for i := 0; i < 50; i++ {
		out := s.Spin("{Good {morning|evening}|Hi}")
		assert.Contains(t, []string{"Good morning", "Good evening", "Hi"}, out)
	}
}

func TestSpin_KeepsPlainBraces(t *testing.T) {
	s := NewSpinner(3)
	assert.Equal(t, "<style>a{color:red}</style>", s.Spin("<style>a{color:red}</style>"))
	out := s.Spin("<style>a{color:red}</style>{x|x}")
	assert.Equal(t, "<style>a{color:red}</style>x", out)
}

func TestSpin_PreservesLiquid(t *testing.T) {
	s := NewSpinner(1)
	in := `{Hi|Hey} {{ first_name | default: "there" }}{% if company %} at {{ company }}{% endif %}`
	out := s.Spin(in)
	assert.True(t, strings.HasSuffix(out, ` {{ first_name | default: "there" }}{% if company %} at {{ company }}{% endif %}`), out)
	assert.False(t, strings.Contains(out, "{Hi|Hey}"))
}

func TestRender(t *testing.T) {
	r := NewRenderer()
	c := &domain.Campaign{Name: "Spring", FromName: "Dana"}
	l := &domain.Lead{Email: "jane@acme.io", FirstName: "Jane", Company: "Acme"}

	out, err := r.Render(`Hi {{ first_name }} from {{ company }}. {{ last_name | default: "friend" }} <a href="{{ unsubscribe_url }}">x</a>`,
		LeadVars(c, l, "https://u/1?token=t"))
	require.NoError(t, err)
	assert.Equal(t, `Hi Jane from Acme. friend <a href="https://u/1?token=t">x</a>`, out)

	_, err = r.Render("{% nosuchtag %}", nil)
	assert.Error(t, err)
}

func TestPlainText(t *testing.T) {
	got := PlainText("<p>Hello&nbsp;Jane</p><p>Line two<br/>three</p>")
	assert.Equal(t, "Hello Jane\nLine two\nthree", got)
}

func TestParseName(t *testing.T) {
	tests := []struct {
		full, email, first, last string
	}{
		{"Jane Doe", "", "Jane", "Doe"},
		{"Dr. Jane Q. Doe Jr.", "", "Jane", "Doe"},
		{"Doe, Jane", "", "Jane", "Doe"},
		{"Cher", "", "Cher", ""},
		{"", "john.smith@example.com", "John", "Smith"},
		{"", "mary_ann-lee+promo@example.com", "Mary", "Lee"},
		{"", "bob42@example.com", "Bob", ""},
		{"", "info@example.com", "", ""},
		{"", "not-an-email", "", ""},
	}
	for _, tt := range tests {
		first, last := ParseName(tt.full, tt.email)
		assert.Equal(t, tt.first, first, "%q %q", tt.full, tt.email)
		assert.Equal(t, tt.last, last, "%q %q", tt.full, tt.email)
	}
}

func TestUnsubscribeSigner(t *testing.T) {
	s := NewUnsubscribeSigner("secret", "https://example.com/unsubscribe/")
	tok := s.Token("lead-1")

	assert.Len(t, tok, 64)
	assert.True(t, s.Verify("lead-1", tok))
	assert.False(t, s.Verify("lead-2", tok))
	assert.False(t, NewUnsubscribeSigner("other", "").Verify("lead-1", tok))
	assert.Equal(t, "https://example.com/unsubscribe/lead-1?token="+tok, s.URL("lead-1"))
}
