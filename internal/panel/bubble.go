package panel

import (
	"html/template"
	"regexp"
	"strings"
)

var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)

// FormatBubble converts message text to bubble HTML: the text is escaped,
// newlines become <br> and [label](url) links become anchors.
func FormatBubble(text string) template.HTML {
	escaped := template.HTMLEscapeString(text)
	linked := markdownLink.ReplaceAllStringFunc(escaped, func(m string) string {
		parts := markdownLink.FindStringSubmatch(m)
		href := parts[2]
		if !safeHref(href) {
			return m
		}
		return `<a href="` + href + `" target="_blank" rel="noopener noreferrer">` + parts[1] + `</a>`
	})
	return template.HTML(newlinesToBreaks(linked))
}

func safeHref(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "/")
}

const defaultCharacter = "rabbit"

// AvatarURL picks the assistant avatar: a custom image wins, then the chosen
// character, then the default. The literal "None" counts as unset.
func AvatarURL(character, customImage string) string {
	if present(customImage) {
		return customImage
	}
	name := defaultCharacter
	if present(character) {
		name = character
	}
	if name == "hedgehog" {
		name = "hedgehog_ver1"
	}
	return "/static/images/" + name + ".png"
}

func present(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "None"
}
