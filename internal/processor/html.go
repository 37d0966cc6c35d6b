package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mailgun/raymond/v2"
	"github.com/sirupsen/logrus"
)

type PlaceholderPosition struct {
	Placeholder string `json:"placeholder"`
	Name        string `json:"name"`
	StartPos    int    `json:"start_pos"`
	EndPos      int    `json:"end_pos"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Block       bool   `json:"block"` // argument of {{#if}} / {{#unless}}
}

var (
	mustacheRe = regexp.MustCompile(`\{\{\{?\s*([#/^!>]?)\s*([^\s{}]+)(?:\s+([^{}]*?))?\s*\}?\}\}`)
	tagRe      = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(?:script|style)>|<[^>]*>`)
	spaceRe    = regexp.MustCompile(`[ \t\r\f\v]+`)
)

func init() {
	raymond.SetLogger(logrus.WithField("component", "handlebars"))
}

// HTMLProcessor fills a handlebars HTML template. Only plain variables and
// {{#if}} / {{#unless}} blocks are expected; absent values render empty.
type HTMLProcessor struct {
	source string
	tpl    *raymond.Template
}

func NewHTMLProcessor(source string) (*HTMLProcessor, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html template: %w", err)
	}
	return &HTMLProcessor{source: source, tpl: tpl}, nil
}

// Fill renders the template with params. Values are HTML-escaped.
func (hp *HTMLProcessor) Fill(params map[string]string) (string, error) {
	ctx := make(map[string]interface{}, len(params))
	for k, v := range params {
		ctx[k] = v
	}
	out, err := hp.tpl.Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to render html template: %w", err)
	}
	return out, nil
}

// ExtractPlaceholders returns the unique variable names used by the
// template, in order of first appearance, including {{#if}} arguments.
func (hp *HTMLProcessor) ExtractPlaceholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, pos := range hp.ExtractPlaceholdersWithPositions() {
		if !seen[pos.Name] {
			names = append(names, pos.Name)
			seen[pos.Name] = true
		}
	}
	return names
}

func (hp *HTMLProcessor) ExtractPlaceholdersWithPositions() []PlaceholderPosition {
	var positions []PlaceholderPosition
	for _, m := range mustacheRe.FindAllStringSubmatchIndex(hp.source, -1) {
		kind := hp.source[m[2]:m[3]]
		word := hp.source[m[4]:m[5]]
		pos := PlaceholderPosition{
			Placeholder: hp.source[m[0]:m[1]],
			StartPos:    m[0],
			EndPos:      m[1],
		}
		switch kind {
		case "":
			if word == "else" || strings.HasPrefix(word, "@") || strings.HasPrefix(word, "this") {
				continue
			}
			pos.Name = word
		case "#", "^":
			if m[6] < 0 || (word != "if" && word != "unless") {
				continue
			}
			arg := strings.TrimSpace(hp.source[m[6]:m[7]])
			if arg == "" || strings.ContainsAny(arg, " \"'") {
				continue
			}
			pos.Name = arg
			pos.Block = true
		default:
			continue
		}
		pos.Line, pos.Column = calculateLineColumn(hp.source, m[0])
		positions = append(positions, pos)
	}
	return positions
}

// Fill parses html and renders it with params.
func Fill(html string, params map[string]string) (string, error) {
	hp, err := NewHTMLProcessor(html)
	if err != nil {
		return "", err
	}
	return hp.Fill(params)
}

// Placeholders lists the variable names html refers to.
func Placeholders(html string) ([]string, error) {
	hp, err := NewHTMLProcessor(html)
	if err != nil {
		return nil, err
	}
	return hp.ExtractPlaceholders(), nil
}

// TextContent strips markup from html and collapses whitespace, leaving the
// text a reader would see.
func TextContent(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&apos;", "'", "&amp;", "&").Replace(text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// calculateLineColumn reports the 1-based line and rune column of byte offset pos.
func calculateLineColumn(text string, pos int) (int, int) {
	if pos > len(text) {
		pos = len(text)
	}
	line := 1
	column := 1
	for _, r := range text[:pos] {
		if r == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
