package simulator

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Obfuscate runs the full PII -> text -> media pipeline over recorded
// HTML, producing copyright-safe, PII-free fixture content that keeps
// the original DOM shape (tags, attributes, classes, IDs) intact so
// CSS selectors and extraction logic still match. Grounded on
// recording/obfuscator.py's obfuscate().
func Obfuscate(htmlText string) string {
	result := ScrubPII(htmlText)
	result = ScrubText(result)
	result = ScrubMedia(result)
	return result
}

var (
	emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// RE2 has no lookaround, so this is a looser approximation of the
	// original's (?<!\d)...(?!\d)-guarded phone pattern; it still only
	// matches digit runs shaped like a phone number.
	phoneRE = regexp.MustCompile(`\+?\d{1,3}[\s\-.]?\(?\d{2,4}\)?[\s\-.]?\d{3,4}[\s\-.]?\d{3,4}`)
)

// ScrubPII redacts email addresses and phone numbers in place, each
// replaced by a same-length placeholder so layout-sensitive fixtures
// still render.
func ScrubPII(text string) string {
	result := emailRE.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat("x", len(m))
	})
	result = phoneRE.ReplaceAllStringFunc(result, redactPhone)
	return result
}

func redactPhone(m string) string {
	var b strings.Builder
	for _, c := range m {
		if c >= '0' && c <= '9' {
			b.WriteByte('0')
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

var preserveTextTags = map[string]bool{
	"script": true, "style": true, "code": true, "pre": true,
	"textarea": true, "noscript": true, "template": true,
}

// ScrubText replaces visible text nodes with length-matched lorem
// ipsum, leaving tags, attributes, comments, and whitespace-only nodes
// untouched, and skipping content inside script/style/code/pre/
// textarea/noscript/template. Grounded on obfuscator.py's _TextScrubber.
func ScrubText(htmlText string) string {
	z := html.NewTokenizer(strings.NewReader(htmlText))
	var out strings.Builder
	var tagStack []string

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()

		switch tt {
		case html.StartTagToken:
			name := strings.ToLower(tokenName(z))
			tagStack = append(tagStack, name)
			out.Write(raw)
		case html.EndTagToken:
			name := strings.ToLower(tokenName(z))
			tagStack = popMatchingTag(tagStack, name)
			out.Write(raw)
		case html.SelfClosingTagToken, html.DoctypeToken, html.CommentToken:
			out.Write(raw)
		case html.TextToken:
			if inPreservedTag(tagStack) || isWhitespaceOnly(raw) {
				out.Write(raw)
			} else {
				out.WriteString(loremForLength(len(raw), string(raw)))
			}
		default:
			out.Write(raw)
		}
	}
	return out.String()
}

func tokenName(z *html.Tokenizer) string {
	name, _ := z.TagName()
	return string(name)
}

func inPreservedTag(stack []string) bool {
	for _, t := range stack {
		if preserveTextTags[t] {
			return true
		}
	}
	return false
}

func isWhitespaceOnly(b []byte) bool {
	return len(strings.TrimSpace(string(b))) == 0
}

// popMatchingTag pops the stack up to and including name, tolerating
// unbalanced markup the way a browser parser would.
func popMatchingTag(stack []string, name string) []string {
	if len(stack) == 0 {
		return stack
	}
	if stack[len(stack)-1] == name {
		return stack[:len(stack)-1]
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == name {
			return stack[:i]
		}
	}
	return stack
}

var (
	imgSrcRE    = regexp.MustCompile(`(?is)(<img\b[^>]*?\bsrc\s*=\s*)("[^"]*"|'[^']*')`)
	imgSrcsetRE = regexp.MustCompile(`(?is)(<img\b[^>]*?\bsrcset\s*=\s*)("[^"]*"|'[^']*')`)
)

const placeholderSVG = "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' " +
	"width='400' height='300'%3E%3Crect width='100%25' height='100%25' " +
	"fill='%23ddd'/%3E%3Ctext x='50%25' y='50%25' dominant-baseline='middle' " +
	"text-anchor='middle' fill='%23999' font-size='18'%3E" +
	"placeholder%3C/text%3E%3C/svg%3E"

// ScrubMedia replaces every <img> src/srcset with a placeholder SVG.
func ScrubMedia(htmlText string) string {
	result := imgSrcRE.ReplaceAllString(htmlText, `${1}"`+placeholderSVG+`"`)
	result = imgSrcsetRE.ReplaceAllString(result, `${1}"`+placeholderSVG+`"`)
	return result
}

var loremWords = strings.Fields(
	"lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod " +
		"tempor incididunt ut labore et dolore magna aliqua enim ad minim veniam " +
		"quis nostrud exercitation ullamco laboris nisi aliquip ex ea commodo " +
		"consequat duis aute irure in reprehenderit voluptate velit esse cillum " +
		"fugiat nulla pariatur excepteur sint occaecat cupidatat non proident " +
		"sunt culpa qui officia deserunt mollit anim id est laborum",
)

// loremForLength generates deterministic lorem-ipsum text approximately
// length characters long, seeded from seed so the same input text
// always maps to the same replacement. Grounded on obfuscator.py's
// _lorem_for_length (md5-seeded word-pool walk).
func loremForLength(length int, seed string) string {
	if length <= 0 {
		return ""
	}

	sum := md5.Sum([]byte(seed))
	h, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	poolLen := len(loremWords)
	idx := int(h % uint64(poolLen))

	var words []string
	charCount := 0
	for charCount < length {
		word := loremWords[idx%poolLen]
		extra := len(word)
		if len(words) > 0 {
			extra++
		}
		if charCount+extra > length+5 {
			break
		}
		if len(words) > 0 {
			charCount++
		}
		words = append(words, word)
		charCount += len(word)
		idx++
	}

	result := strings.Join(words, " ")
	if len(result) > length {
		result = strings.TrimRight(result[:length], " ")
	} else if len(result) < length {
		result += strings.Repeat(" ", length-len(result))
	}
	return result
}
