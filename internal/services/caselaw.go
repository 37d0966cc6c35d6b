package services

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"legalmind/internal/models"
)

//go:embed data/case_laws.json
var caseLawData []byte

const defaultCaseLimit = 5

var caseStopwords = map[string]bool{
	"판례": true, "판결": true, "사례": true, "관련": true, "대한": true,
	"찾아줘": true, "찾아": true, "알려줘": true, "검색": true, "검색해줘": true,
	"있어": true, "있나요": true, "보여줘": true,
}

var particles = []string{"에서", "으로", "에게", "과", "와", "을", "를", "이", "가", "은", "는", "에", "의", "로", "도"}

// CaseLawService searches the bundled precedent summaries.
type CaseLawService struct {
	cases []models.CaseLaw
}

func NewCaseLawService() (*CaseLawService, error) {
	var cases []models.CaseLaw
	if err := json.Unmarshal(caseLawData, &cases); err != nil {
		return nil, fmt.Errorf("failed to load case law data: %w", err)
	}
	return &CaseLawService{cases: cases}, nil
}

// Search ranks cases by how many query terms they contain; terms found in
// the title count twice. Ties go to the most recent decision.
func (s *CaseLawService) Search(query string, limit int) []models.CaseLaw {
	if limit <= 0 {
		limit = defaultCaseLimit
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		c     models.CaseLaw
		score int
	}
	var hits []scored
	for _, c := range s.cases {
		body := strings.Join(append([]string{c.Summary, c.Category}, c.Keywords...), " ")
		score := 0
		for _, t := range terms {
			switch {
			case strings.Contains(c.Title, t):
				score += 2
			case strings.Contains(body, t):
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{c: c, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].c.DecidedAt.Equal(hits[j].c.DecidedAt) {
			return hits[i].c.DecidedAt.After(hits[j].c.DecidedAt)
		}
		return hits[i].c.ID < hits[j].c.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]models.CaseLaw, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out
}

func (s *CaseLawService) Get(id string) (*models.CaseLaw, bool) {
	for i := range s.cases {
		if s.cases[i].ID == id {
			c := s.cases[i]
			return &c, true
		}
	}
	return nil, false
}

// queryTerms splits query into distinct search terms with trailing
// particles removed. Stopwords and single runes are dropped.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	seen := make(map[string]bool)
	var terms []string
	for _, f := range fields {
		t := stripParticle(f)
		if caseStopwords[f] || caseStopwords[t] || utf8.RuneCountInString(t) < 2 || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

func stripParticle(word string) string {
	for _, p := range particles {
		if strings.HasSuffix(word, p) && utf8.RuneCountInString(word)-utf8.RuneCountInString(p) >= 2 {
			return strings.TrimSuffix(word, p)
		}
	}
	return word
}

// FormatCaseLaws renders search results as a chat reply.
func FormatCaseLaws(cases []models.CaseLaw) string {
	if len(cases) == 0 {
		return "관련 판례를 찾지 못했습니다. 다른 키워드로 다시 검색해 보세요."
	}
	var b strings.Builder
	b.WriteString("관련 판례를 찾았습니다.\n")
	for i, c := range cases {
		fmt.Fprintf(&b, "\n%d. %s %s (%s)\n   %s\n   %s\n", i+1, c.Court, c.CaseNumber, c.DecidedAt.Format("2006.01.02"), c.Title, c.Summary)
	}
	b.WriteString("\n판례 요약은 참고용이며, 구체적인 사안은 변호사와 상담하시기 바랍니다.")
	return b.String()
}
