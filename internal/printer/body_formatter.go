package printer

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"mime"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/funnyzak/reqtape/internal/config"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/pkg/request"
	nethtml "golang.org/x/net/html"
)

// bodyFormatter renders payloads for humans
type bodyFormatter struct {
	cfg    *config.BodyViewConfig
	logger logger.Logger
}

type formattedBody struct {
	Text    string
	Notices []string
}

func newBodyFormatter(cfg *config.BodyViewConfig, log logger.Logger) *bodyFormatter {
	if cfg == nil {
		cfg = &config.BodyViewConfig{}
	}
	return &bodyFormatter{cfg: cfg, logger: log}
}

// Format renders body according to its content type
func (f *bodyFormatter) Format(contentType string, body []byte) formattedBody {
	if f == nil || len(body) == 0 {
		return formattedBody{}
	}
	if request.IsBinaryContent(contentType, body) || !utf8.Valid(body) {
		return formattedBody{Notices: []string{
			fmt.Sprintf("[Binary Body: %s, %s. Content skipped.]", orUnknown(contentType), humanize.Bytes(uint64(len(body)))),
		}}
	}

	var notices []string
	if limit := f.cfg.MaxPreviewBytes; limit > 0 && len(body) > limit {
		notices = append(notices, fmt.Sprintf("[Body truncated to %s of %s]",
			humanize.Bytes(uint64(limit)), humanize.Bytes(uint64(len(body)))))
		body = truncateUTF8(body, limit)
	}
	if !f.cfg.Enable {
		return formattedBody{Text: string(body), Notices: notices}
	}

	mediaType := normalizeMediaType(contentType)
	res, ok := f.formatJSON(mediaType, body)
	if !ok {
		res, ok = f.formatForm(mediaType, body)
	}
	if !ok {
		res, ok = f.formatXML(mediaType, body)
	}
	if !ok {
		res, ok = f.formatHTML(mediaType, body)
	}
	if !ok {
		res = formattedBody{Text: string(body)}
	}
	res.Notices = append(notices, res.Notices...)
	return res
}

func (f *bodyFormatter) formatJSON(mediaType string, body []byte) (formattedBody, bool) {
	if !looksLikeJSON(mediaType, body) {
		return formattedBody{}, false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return formattedBody{}, false
	}
	if !f.cfg.PrettyJSON {
		return formattedBody{Text: string(body)}, true
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		if f.logger != nil {
			f.logger.Debug("json indent failed", "error", err)
		}
		return formattedBody{}, false
	}
	return formattedBody{Text: buf.String()}, true
}

func (f *bodyFormatter) formatForm(mediaType string, body []byte) (formattedBody, bool) {
	if !f.cfg.Form || !strings.Contains(mediaType, "application/x-www-form-urlencoded") {
		return formattedBody{}, false
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		if f.logger != nil {
			f.logger.Debug("form parse failed", "error", err)
		}
		return formattedBody{}, false
	}
	if len(values) == 0 {
		return formattedBody{Text: string(body)}, true
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	const keyHeader, valueHeader = "Key", "Value"
	maxKeyWidth := utf8.RuneCountInString(keyHeader)
	for _, key := range keys {
		if w := utf8.RuneCountInString(key); w > maxKeyWidth {
			maxKeyWidth = w
		}
	}
	var builder strings.Builder
	builder.WriteString("Form data:\n")
	fmt.Fprintf(&builder, "%-*s │ %s\n", maxKeyWidth, keyHeader, valueHeader)
	builder.WriteString(strings.Repeat("─", maxKeyWidth) + "─┼" + strings.Repeat("─", 40) + "\n")
	for _, key := range keys {
		fmt.Fprintf(&builder, "%-*s │ %s\n", maxKeyWidth, key, strings.Join(values[key], ", "))
	}
	return formattedBody{Text: builder.String()}, true
}

func (f *bodyFormatter) formatXML(mediaType string, body []byte) (formattedBody, bool) {
	if !strings.Contains(mediaType, "xml") {
		return formattedBody{}, false
	}
	processed := stripControlBytes(body)
	if !f.cfg.PrettyXML {
		return formattedBody{Text: string(processed)}, true
	}
	formatted, err := prettyXML(processed)
	if err != nil {
		if f.logger != nil {
			f.logger.Debug("xml pretty failed", "error", err)
		}
		return formattedBody{Text: string(processed)}, true
	}
	return formattedBody{Text: formatted}, true
}

func (f *bodyFormatter) formatHTML(mediaType string, body []byte) (formattedBody, bool) {
	if !strings.Contains(mediaType, "html") && !looksLikeHTML(body) {
		return formattedBody{}, false
	}
	processed := stripControlBytes(body)
	if !f.cfg.PrettyHTML {
		return formattedBody{Text: string(processed)}, true
	}
	formatted, err := prettyHTML(processed)
	if err != nil {
		if f.logger != nil {
			f.logger.Debug("html pretty failed", "error", err)
		}
		return formattedBody{Text: string(processed)}, true
	}
	return formattedBody{Text: formatted}, true
}

func normalizeMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(mediaType)
}

func looksLikeJSON(mediaType string, body []byte) bool {
	if strings.Contains(mediaType, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false
	}
	first := trimmed[0]
	last := trimmed[len(trimmed)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}

func looksLikeHTML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) < 5 {
		return false
	}
	upper := strings.ToLower(string(trimmed[:5]))
	return strings.HasPrefix(upper, "<html") || strings.HasPrefix(upper, "<!doc")
}

func stripControlBytes(b []byte) []byte {
	if len(b) == 0 {
		return b
	}
	buf := make([]byte, 0, len(b))
	for _, ch := range b {
		if ch < 0x20 && ch != '\n' && ch != '\r' && ch != '\t' {
			continue
		}
		buf = append(buf, ch)
	}
	return buf
}

func prettyXML(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var buf bytes.Buffer
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	for {
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", err
		}
		if err := encoder.EncodeToken(token); err != nil {
			return "", err
		}
	}
	if err := encoder.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func prettyHTML(data []byte) (string, error) {
	node, err := nethtml.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	renderHTMLNode(&builder, node, 0)
	return builder.String(), nil
}

func renderHTMLNode(builder *strings.Builder, node *nethtml.Node, depth int) {
	switch node.Type {
	case nethtml.DocumentNode:
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			renderHTMLNode(builder, child, depth)
		}
	case nethtml.ElementNode:
		indent := strings.Repeat("  ", depth)
		builder.WriteString(indent)
		builder.WriteString("<" + node.Data)
		for _, attr := range node.Attr {
			builder.WriteString(fmt.Sprintf(" %s=\"%s\"", attr.Key, html.EscapeString(attr.Val)))
		}
		if isVoidElement(node.Data) {
			builder.WriteString(" />\n")
			return
		}
		builder.WriteString(">\n")
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			renderHTMLNode(builder, child, depth+1)
		}
		if node.FirstChild != nil {
			builder.WriteString(indent)
		}
		builder.WriteString("</" + node.Data + ">\n")
	case nethtml.TextNode:
		text := strings.TrimSpace(node.Data)
		if text == "" {
			return
		}
		indent := strings.Repeat("  ", depth)
		builder.WriteString(indent)
		builder.WriteString(text)
		builder.WriteString("\n")
	case nethtml.CommentNode:
		indent := strings.Repeat("  ", depth)
		builder.WriteString(indent)
		builder.WriteString("<!--" + strings.TrimSpace(node.Data) + "-->\n")
	}
}

func isVoidElement(tag string) bool {
	switch strings.ToLower(tag) {
	case "area", "base", "br", "col", "embed", "hr", "img", "input", "keygen", "link", "meta", "param", "source", "track", "wbr":
		return true
	default:
		return false
	}
}

func truncateUTF8(b []byte, limit int) []byte {
	if len(b) <= limit {
		return b
	}
	b = b[:limit]
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return b
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown type"
	}
	return s
}
