package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxSegmentLen stays under Telegram's 4096-char message limit with room
// for the surrounding tags.
const maxSegmentLen = 4000

var (
	blockquoteRe  = regexp.MustCompile(`(?is)<\s*blockquote[^>]*>(.*?)<\s*/\s*blockquote\s*>`)
	placeholderRe = regexp.MustCompile(`BLOCKQUOTEPLACEHOLDER(\d+)END`)

	boldRe             = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicStarRe       = regexp.MustCompile(`\*([^*]+)\*`)
	italicUnderscoreRe = regexp.MustCompile(`_([^_]+)_`)
	underlineRe        = regexp.MustCompile(`__(.*?)__`)
	codeRe             = regexp.MustCompile("`(.*?)`")
	strikeRe           = regexp.MustCompile(`~~(.*?)~~`)
	spoilerRe          = regexp.MustCompile(`\|\|(.*?)\|\|`)
	linkRe             = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)

	segmentBlockRe = regexp.MustCompile(`(?s)<pre>.*?</pre>|<blockquote>.*?</blockquote>`)
)

// Guards hide doubled delimiters from the single-delimiter passes, so a
// stray ** or __ is never read as italics. NUL does not survive any model
// output, making it safe as a marker.
const (
	starGuard       = "\x00s\x00"
	underscoreGuard = "\x00u\x00"
)

// StripBlockquotes removes <blockquote> sections, the model's internal
// monologue, from a reply.
func StripBlockquotes(text string) string {
	if text == "" {
		return text
	}
	return strings.TrimSpace(blockquoteRe.ReplaceAllString(text, ""))
}

// FormatHTML renders a reply as Telegram HTML. Blockquote sections become
// <pre> blocks (or are stripped unless keepBlockquotes), markdown emphasis
// becomes the matching HTML tags, and everything else is escaped.
func FormatHTML(text string, keepBlockquotes bool) string {
	if !keepBlockquotes {
		text = StripBlockquotes(text)
	}

	// Blockquote contents must not run through escaping and markdown
	// conversion, so they sit out behind placeholders.
	var quotes []string
	text = blockquoteRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := blockquoteRe.FindStringSubmatch(m)
		quotes = append(quotes, strings.TrimSpace(sub[1]))
		return fmt.Sprintf("BLOCKQUOTEPLACEHOLDER%dEND", len(quotes)-1)
	})

	text = markdownToHTML(html.EscapeString(text))

	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(placeholderRe.FindStringSubmatch(m)[1])
		if err != nil || idx >= len(quotes) {
			return m
		}
		return "<pre>" + html.EscapeString(quotes[idx]) + "</pre>"
	})
}

func markdownToHTML(s string) string {
	s = boldRe.ReplaceAllString(s, "<b>$1</b>")

	s = strings.ReplaceAll(s, "**", starGuard)
	s = italicStarRe.ReplaceAllString(s, "<i>$1</i>")
	s = strings.ReplaceAll(s, starGuard, "**")

	s = strings.ReplaceAll(s, "__", underscoreGuard)
	s = italicUnderscoreRe.ReplaceAllString(s, "<i>$1</i>")
	s = strings.ReplaceAll(s, underscoreGuard, "__")

	s = underlineRe.ReplaceAllString(s, "<u>$1</u>")
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	s = strikeRe.ReplaceAllString(s, "<s>$1</s>")
	s = spoilerRe.ReplaceAllString(s, "<tg-spoiler>$1</tg-spoiler>")
	s = linkRe.ReplaceAllString(s, `<a href="$2">$1</a>`)
	return s
}

// SplitSegments splits formatted HTML into sendable segments. <pre> and
// <blockquote> blocks always stay whole; plain text splits on paragraph
// breaks, and an overlong paragraph at the last newline or space that
// still fits.
func SplitSegments(text string, maxLen int) []string {
	var segments []string
	appendSeg := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			segments = append(segments, s)
		}
	}

	last := 0
	for _, loc := range segmentBlockRe.FindAllStringIndex(text, -1) {
		splitPlain(text[last:loc[0]], maxLen, appendSeg)
		appendSeg(text[loc[0]:loc[1]])
		last = loc[1]
	}
	splitPlain(text[last:], maxLen, appendSeg)
	return segments
}

func splitPlain(part string, maxLen int, emit func(string)) {
	for _, para := range strings.Split(part, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		for _, piece := range splitLongText(para, maxLen) {
			emit(piece)
		}
	}
}

func splitLongText(content string, limit int) []string {
	if len(content) <= limit {
		return []string{content}
	}
	var chunks []string
	remaining := content
	for len(remaining) > limit {
		slice := remaining[:limit]
		split := strings.LastIndexByte(slice, '\n')
		if sp := strings.LastIndexByte(slice, ' '); sp > split {
			split = sp
		}
		if split <= 0 {
			split = limit
			for split > 0 && !utf8.RuneStart(remaining[split]) {
				split--
			}
			if split == 0 {
				split = limit
			}
		}
		if chunk := strings.TrimSpace(remaining[:split]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeft(remaining[split:], " \t\r\n")
	}
	if remaining != "" {
		chunks = append(chunks, strings.TrimSpace(remaining))
	}
	return chunks
}
