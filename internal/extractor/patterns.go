package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"legalmind/internal/templates"
)

const (
	amountExpr  = `(?:\d[\d,]*(?:\.\d+)?\s*(?:억|천만|백만|만|천|백)?\s*)+원|(?:\d[\d,]*(?:\.\d+)?\s*(?:억|천만|백만|만|천|백)\s*)+`
	addressExpr = `(?:서울|부산|대구|인천|광주|대전|울산|세종|제주|경기|강원|충북|충남|전북|전남|경북|경남|[가-힣]{1,6}(?:특별시|광역시|특별자치시|특별자치도|도|시))` +
		`(?:특별시|광역시|특별자치시|특별자치도|도|시)?` +
		`(?:\s+[가-힣\d]{1,12}(?:시|군|구|읍|면|동|리|로|길|가))+` +
		`(?:\s+\d+(?:-\d+)?(?:번지|번길)?)?(?:\s+\d+동)?(?:\s+\d+호)?`
	periodExpr = `(\d{1,2})\s*년(?:\s*(\d{1,2})\s*(?:개월|달))?|(\d{1,3})\s*(?:개월|달)`
	dateExpr   = `(\d{4})\s*(?:년|[./-])\s*(\d{1,2})\s*(?:월|[./-])\s*(\d{1,2})\s*일?`
)

var (
	labelRe = regexp.MustCompile(`([가-힣A-Za-z_][가-힣A-Za-z_ ]{0,19})\s*[:=]`)
	wordRe  = regexp.MustCompile(`\S+`)

	// First captured name borrows from the second: 임차인, 임대인.
	borrowRe = regexp.MustCompile(`([가-힣]{2,4})(?:은|는|이|가)\s+([가-힣]{2,4})(?:에게서|에게|한테서|한테|로부터)\s*(?:[가-힣]+?(?:을|를)\s*)?빌리`)
	// First captured name lends to the second: 임대인, 임차인.
	lendRe = regexp.MustCompile(`([가-힣]{2,4})(?:은|는|이|가)\s+([가-힣]{2,4})(?:에게|한테)\s*(?:[가-힣]+?(?:을|를)\s*)?빌려\s*주`)

	amountRe       = regexp.MustCompile(amountExpr)
	amountAtRe     = regexp.MustCompile(`^(?:` + amountExpr + `)`)
	amountTokenRe  = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)?\s*(억|만|천|백)|(\d[\d,]*(?:\.\d+)?)`)
	addressRe      = regexp.MustCompile(addressExpr)
	addressAtRe    = regexp.MustCompile(`^(?:` + addressExpr + `)`)
	periodRe       = regexp.MustCompile(`(?:^|[^\d])(?:` + periodExpr + `)`)
	periodAtRe     = regexp.MustCompile(`^(?:` + periodExpr + `)`)
	dateRe         = regexp.MustCompile(dateExpr)
	dateAtRe       = regexp.MustCompile(`^(?:` + dateExpr + `)`)
	valuePrefixRe  = regexp.MustCompile(`^(?:\s|[:=]|은|는|이|가|으로|로|금|매월|월)*`)
	textPrefixRe   = regexp.MustCompile(`^(?:\s|[:=]|은|는|이|가)*`)
	copulaSuffixRe = regexp.MustCompile(`(?:입니다|이에요|이예요|예요|에요|이야|이고|이며|이다|야|고|요)$`)

	roleCache sync.Map
)

var notAName = map[string]bool{
	"나야": true, "저야": true, "나요": true, "저요": true, "본인": true, "누구": true,
	"주소": true, "성명": true, "이름": true, "미정": true, "아직": true, "모름": true,
}

// ExtractPatterns applies the deterministic regex heuristics to text and
// returns canonical keys of schema only. The first pattern to produce a key wins.
func ExtractPatterns(text string, schema *templates.Schema) map[string]string {
	out := make(map[string]string)
	if schema == nil || strings.TrimSpace(text) == "" {
		return out
	}

	extractKeyValues(text, schema, out)
	extractLoanParties(text, schema, out)
	for _, f := range schema.Fields {
		if _, ok := out[f.Name]; ok {
			continue
		}
		var v string
		switch f.Kind {
		case templates.KindPerson:
			v = extractRole(text, f)
		case templates.KindAmount:
			v = labeledValue(text, f, amountAtRe)
			if v != "" {
				v, _ = normalizeAmount(v)
			}
		case templates.KindAddress:
			v = strings.TrimSpace(labeledValue(text, f, addressAtRe))
		case templates.KindPeriod:
			if m := labeledMatch(text, f, periodAtRe); m != nil {
				v = periodFromMatch(m)
			}
		case templates.KindDate:
			if m := labeledMatch(text, f, dateAtRe); m != nil {
				v = dateFromMatch(m)
			}
		case templates.KindText:
			v = labeledText(text, f)
		}
		if v != "" {
			out[f.Name] = v
		}
	}
	extractSoleValues(text, schema, out)
	return out
}

// extractKeyValues handles "키: 값" and "키=값", several per line allowed.
func extractKeyValues(text string, schema *templates.Schema, out map[string]string) {
	type hit struct {
		field      templates.Field
		labelStart int
		valueStart int
	}
	for _, line := range strings.Split(text, "\n") {
		var hits []hit
		for _, m := range labelRe.FindAllStringSubmatchIndex(line, -1) {
			label := line[m[2]:m[3]]
			f, offset, ok := resolveLabel(schema, label)
			if !ok {
				continue
			}
			hits = append(hits, hit{field: f, labelStart: m[2] + offset, valueStart: m[1]})
		}
		for i, h := range hits {
			end := len(line)
			if i+1 < len(hits) {
				end = hits[i+1].labelStart
			}
			raw := strings.Trim(strings.TrimSpace(line[h.valueStart:end]), ",;")
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			if _, exists := out[h.field.Name]; exists {
				continue
			}
			if v := normalizeValue(h.field, raw); v != "" {
				out[h.field.Name] = v
			}
		}
	}
}

// resolveLabel matches label, or its longest trailing run of words, against the schema.
func resolveLabel(schema *templates.Schema, label string) (templates.Field, int, bool) {
	words := wordRe.FindAllStringIndex(label, -1)
	for i := range words {
		candidate := strings.Join(strings.Fields(label[words[i][0]:]), " ")
		if f, ok := schema.Resolve(candidate); ok {
			return f, words[i][0], true
		}
	}
	return templates.Field{}, 0, false
}

func normalizeValue(f templates.Field, raw string) string {
	raw = strings.TrimRight(raw, ".!")
	switch f.Kind {
	case templates.KindPerson:
		return cleanName(raw)
	case templates.KindAmount:
		if v, ok := normalizeAmount(raw); ok {
			return v
		}
	case templates.KindPeriod:
		if m := periodAtRe.FindStringSubmatch(raw); m != nil {
			return periodFromMatch(m)
		}
	case templates.KindDate:
		if m := dateAtRe.FindStringSubmatch(raw); m != nil {
			return dateFromMatch(m)
		}
	}
	return raw
}

func cleanName(v string) string {
	v = strings.TrimSpace(v)
	if trimmed := copulaSuffixRe.ReplaceAllString(v, ""); utf8.RuneCountInString(trimmed) >= 2 {
		v = trimmed
	}
	if notAName[v] || utf8.RuneCountInString(v) < 2 {
		return ""
	}
	last, _ := utf8.DecodeLastRuneInString(v)
	if strings.ContainsRune("을를의에와과도만", last) {
		return ""
	}
	return v
}

func extractLoanParties(text string, schema *templates.Schema, out map[string]string) {
	if !schema.Has("임차인") || !schema.Has("임대인") {
		return
	}
	if m := borrowRe.FindStringSubmatch(text); m != nil {
		setIfAbsent(out, "임차인", cleanName(m[1]))
		setIfAbsent(out, "임대인", cleanName(m[2]))
		return
	}
	if m := lendRe.FindStringSubmatch(text); m != nil {
		setIfAbsent(out, "임대인", cleanName(m[1]))
		setIfAbsent(out, "임차인", cleanName(m[2]))
	}
}

func setIfAbsent(out map[string]string, key, value string) {
	if value == "" {
		return
	}
	if _, ok := out[key]; !ok {
		out[key] = value
	}
}

func labels(f templates.Field) []string {
	return append([]string{f.Name}, f.Aliases...)
}

func roleRe(label string) *regexp.Regexp {
	if re, ok := roleCache.Load(label); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(`(?:^|[^가-힣])` + regexp.QuoteMeta(label) +
		`(?:은|는|이|가)?\s*[:=]?\s*([가-힣]{2,4}?)(?:이고|이며|이야|이에요|이예요|이라고|입니다|이다|예요|에요|야|고|요|,|\.|!|\s|$)`)
	roleCache.Store(label, re)
	return re
}

// extractRole finds "위임인은 이몽룡이고" style sentences.
func extractRole(text string, f templates.Field) string {
	for _, label := range labels(f) {
		for _, m := range roleRe(label).FindAllStringSubmatch(text, -1) {
			if name := cleanName(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

// labeledMatch returns the submatches of re anchored right after a label of f.
func labeledMatch(text string, f templates.Field, re *regexp.Regexp) []string {
	for _, label := range labels(f) {
		rest := text
		for {
			i := strings.Index(rest, label)
			if i < 0 {
				break
			}
			rest = rest[i+len(label):]
			after := rest[len(valuePrefixRe.FindString(rest)):]
			if m := re.FindStringSubmatch(after); m != nil {
				return m
			}
		}
	}
	return nil
}

func labeledValue(text string, f templates.Field, re *regexp.Regexp) string {
	if m := labeledMatch(text, f, re); m != nil {
		return strings.TrimSpace(m[0])
	}
	return ""
}

// labeledText takes the rest of the sentence after a text field's label.
func labeledText(text string, f templates.Field) string {
	for _, label := range labels(f) {
		i := strings.Index(text, label)
		if i < 0 {
			continue
		}
		rest := text[i+len(label):]
		rest = rest[len(textPrefixRe.FindString(rest)):]
		if end := strings.IndexAny(rest, "\n.?"); end >= 0 {
			if rest[end] == '?' {
				continue
			}
			rest = rest[:end]
		}
		v := strings.TrimSpace(copulaSuffixRe.ReplaceAllString(strings.TrimSpace(rest), ""))
		if utf8.RuneCountInString(v) < 2 || strings.Contains(v, "뭐") || strings.Contains(v, "무엇") {
			continue
		}
		return v
	}
	return ""
}

// extractSoleValues assigns unlabeled values when the schema has a single
// unfilled field of that kind, as happens when asking for one missing field.
func extractSoleValues(text string, schema *templates.Schema, out map[string]string) {
	only := func(kind templates.FieldKind) (templates.Field, bool) {
		var found []templates.Field
		for _, f := range schema.Fields {
			if f.Kind == kind {
				found = append(found, f)
			}
		}
		if len(found) != 1 {
			return templates.Field{}, false
		}
		if _, set := out[found[0].Name]; set {
			return templates.Field{}, false
		}
		return found[0], true
	}

	if f, ok := only(templates.KindAmount); ok {
		if matches := amountRe.FindAllString(text, -1); len(matches) == 1 {
			if v, ok := normalizeAmount(matches[0]); ok {
				out[f.Name] = v
			}
		}
	}
	if f, ok := only(templates.KindAddress); ok {
		if m := addressRe.FindString(text); m != "" {
			out[f.Name] = strings.TrimSpace(m)
		}
	}
	if f, ok := only(templates.KindPeriod); ok {
		if m := periodRe.FindStringSubmatch(text); m != nil {
			out[f.Name] = periodFromMatch(m)
		}
	}
	if f, ok := only(templates.KindDate); ok {
		if m := dateRe.FindStringSubmatch(text); m != nil {
			out[f.Name] = dateFromMatch(m)
		}
	}
}

// normalizeAmount converts Korean money expressions to "N만원".
func normalizeAmount(s string) (string, bool) {
	var total, small float64
	var digits, sawMan, endsSmallUnit bool
	for _, t := range amountTokenRe.FindAllStringSubmatch(s, -1) {
		num, unit := t[1], t[2]
		if unit == "" {
			num = t[3]
		}
		var n float64
		if num != "" {
			v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
			if err != nil {
				return "", false
			}
			n = v
			digits = true
		}
		switch unit {
		case "억":
			total += (small + n) * 1e8
			small = 0
		case "만":
			total += (small + n) * 1e4
			small = 0
			sawMan = true
		case "천":
			small += n * 1e3
		case "백":
			small += n * 1e2
		default:
			small += n
		}
		endsSmallUnit = unit == "천" || unit == "백"
	}
	// "1억 5천" means 1억 5천만.
	if total >= 1e8 && !sawMan && endsSmallUnit {
		small *= 1e4
	}
	total += small
	if !digits || total <= 0 {
		return "", false
	}
	return strconv.FormatFloat(total/1e4, 'f', -1, 64) + "만원", true
}

// periodFromMatch formats submatches of periodExpr. Leading groups from
// unanchored expressions are skipped by reading the last three.
func periodFromMatch(m []string) string {
	g := m[len(m)-3:]
	years, months, onlyMonths := g[0], g[1], g[2]
	switch {
	case years != "" && months != "":
		return years + "년 " + months + "개월"
	case years != "":
		return years + "년"
	case onlyMonths != "":
		return onlyMonths + "개월"
	}
	return ""
}

func dateFromMatch(m []string) string {
	g := m[len(m)-3:]
	month, _ := strconv.Atoi(g[1])
	day, _ := strconv.Atoi(g[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return ""
	}
	return g[0] + "년 " + strconv.Itoa(month) + "월 " + strconv.Itoa(day) + "일"
}
