package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"inlinecms/internal/models"
)

func TestHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "plain text",
			input:    "Hello World",
			contains: []string{"Hello World"},
		},
		{
			name:     "safe HTML preserved",
			input:    "<p>Hello <strong>World</strong></p>",
			contains: []string{"<p>", "<strong>", "World"},
		},
		{
			name:     "script tag removed",
			input:    "<p>Hi</p><script>alert('xss')</script>",
			contains: []string{"<p>Hi</p>"},
			excludes: []string{"<script>", "alert"},
		},
		{
			name:     "event handler removed",
			input:    `<p onclick="alert(1)">Click</p>`,
			contains: []string{"Click"},
			excludes: []string{"onclick"},
		},
		{
			name:     "javascript URL removed",
			input:    `<a href="javascript:alert(1)">Link</a>`,
			contains: []string{"Link"},
			excludes: []string{"javascript:"},
		},
		{
			name:     "rtl direction kept",
			input:    `<p dir="rtl">مرحباً</p>`,
			contains: []string{`dir="rtl"`, "مرحباً"},
		},
		{
			name:     "table kept",
			input:    "<table><tr><td>Cell</td></tr></table>",
			contains: []string{"<table>", "<td>", "Cell"},
		},
		{
			name:     "iframe removed",
			input:    `<iframe src="https://evil.example"></iframe><p>Body</p>`,
			contains: []string{"<p>Body</p>"},
			excludes: []string{"<iframe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HTML(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, bad := range tt.excludes {
				assert.NotContains(t, got, bad)
			}
		})
	}
}

func TestHTMLEmpty(t *testing.T) {
	assert.Empty(t, HTML(""))
}

func TestChanged(t *testing.T) {
	assert.False(t, Changed("<p>fine</p>"), "safe markup reported as changed")
	assert.True(t, Changed("<p>x</p><script>y()</script>"), "script markup not reported as changed")
}

func TestText(t *testing.T) {
	assert.Equal(t, "Hello there", Text("<p>Hello <b>there</b></p>"))
}

func TestURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/apply", "/apply"},
		{"  https://example.edu/x ", "https://example.edu/x"},
		{"mailto:admissions@example.edu", "mailto:admissions@example.edu"},
		{"javascript:alert(1)", ""},
		{"JavaScript:alert(1)", ""},
		{"data:text/html;base64,xx", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URL(tt.in), "URL(%q)", tt.in)
	}
}

func TestPayload(t *testing.T) {
	rich := Payload(models.ElementTypeRichText, models.Payload{HTML: "<p>x</p><script>y</script>"})
	assert.NotContains(t, rich.HTML, "script")

	md := models.Payload{HTML: "**x** <script>y</script>", Format: models.BodyFormatMarkdown}
	assert.Equal(t, md, Payload(models.ElementTypeRichText, md), "markdown source is stored as written")

	link := Payload(models.ElementTypeLink, models.Payload{URL: "javascript:void(0)", Text: "x"})
	assert.Empty(t, link.URL)
	assert.Equal(t, "x", link.Text)

	text := models.Payload{Text: "<b>literal</b>"}
	assert.Equal(t, text, Payload(models.ElementTypeText, text))
}
