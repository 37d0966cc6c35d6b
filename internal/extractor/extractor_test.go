package extractor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalmind/internal/templates"
)

type fakeLLM struct {
	response string
	err      error
	calls    atomic.Int32
	system   string
}

func (f *fakeLLM) GenerateJSON(_ context.Context, systemPrompt, _ string) (string, error) {
	f.calls.Add(1)
	f.system = systemPrompt
	return f.response, f.err
}

func schemaFor(t *testing.T, typ templates.DocumentType) *templates.Schema {
	t.Helper()
	r, err := templates.NewRegistry()
	require.NoError(t, err)
	s, err := r.Get(context.Background(), typ)
	require.NoError(t, err)
	return s
}

func TestExtractPatternsLoanSentence(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease)

	got := ExtractPatterns("나 홍길동은 김철수에게 집을 빌리려고 해", lease)
	assert.Equal(t, map[string]string{"임차인": "홍길동", "임대인": "김철수"}, got)
}

// The lend/borrow heuristic only reads the sentence shape, not who actually
// owns the property. These cases pin current behaviour; they are not a contract.
func TestExtractPatternsLoanSentenceKnownLimitation(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease)

	got := ExtractPatterns("김철수가 홍길동에게 집을 빌려 주기로 했어", lease)
	assert.Equal(t, "김철수", got["임대인"])
	assert.Equal(t, "홍길동", got["임차인"])

	// Dropped subject marker: nothing is guessed.
	got = ExtractPatterns("홍길동 김철수에게 집 빌림", lease)
	assert.NotContains(t, got, "임차인")
}

func TestExtractPatternsKeyValueLines(t *testing.T) {
	agreement := schemaFor(t, templates.TypeAgreement)

	got := ExtractPatterns("갑: 홍길동, 을: 김철수\n합의내용 = 손해배상금 300만원을 지급한다", agreement)
	assert.Equal(t, "홍길동", got["갑"])
	assert.Equal(t, "김철수", got["을"])
	assert.Equal(t, "손해배상금 300만원을 지급한다", got["합의사항"])
}

func TestExtractPatternsKeyValueVariableNames(t *testing.T) {
	agreement := schemaFor(t, templates.TypeAgreement)

	got := ExtractPatterns("party_a: 홍길동", agreement)
	assert.Equal(t, map[string]string{"갑": "홍길동"}, got)
}

func TestExtractPatternsRoleSentences(t *testing.T) {
	poa := schemaFor(t, templates.TypePowerOfAttorney)

	got := ExtractPatterns("위임인은 이몽룡이고 수임인은 성춘향이야", poa)
	assert.Equal(t, "이몽룡", got["위임인"])
	assert.Equal(t, "성춘향", got["수임인"])
	assert.NotContains(t, got, "위임사항")
}

func TestExtractPatternsRejectsNonNames(t *testing.T) {
	poa := schemaFor(t, templates.TypePowerOfAttorney)

	got := ExtractPatterns("위임인 정보를 알려줄게", poa)
	assert.NotContains(t, got, "위임인")
}

func TestExtractPatternsNormalization(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease)

	tests := []struct {
		name string
		text string
		key  string
		want string
	}{
		{"deposit with eok and cheonman", "보증금은 1억 5천만원이야", "보증금", "15000만원"},
		{"deposit with commas", "보증금: 50,000,000원", "보증금", "5000만원"},
		{"monthly rent", "보증금 5000만원에 월세 50만원", "월세", "50만원"},
		{"deposit beside rent", "보증금 5000만원에 월세 50만원", "보증금", "5000만원"},
		{"jeonse alias", "전세 2억으로 하려고", "보증금", "20000만원"},
		{"years", "계약기간은 2년", "계약기간", "2년"},
		{"years and months", "기간 1년 6개월", "계약기간", "1년 6개월"},
		{"months", "계약기간 18개월로 해줘", "계약기간", "18개월"},
		{"date", "계약일은 2024.3.5", "계약일", "2024년 3월 5일"},
		{"korean date", "계약일 2024년 03월 05일", "계약일", "2024년 3월 5일"},
		{"address", "주소는 서울특별시 강남구 테헤란로 123", "부동산주소", "서울특별시 강남구 테헤란로 123"},
		{"address with unit", "소재지: 경기도 성남시 분당구 정자동 10 101동 1203호", "부동산주소", "경기도 성남시 분당구 정자동 10 101동 1203호"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPatterns(tt.text, lease)
			assert.Equal(t, tt.want, got[tt.key])
		})
	}
}

func TestExtractPatternsSoleValueForNarrowedSchema(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease).Narrow([]string{"보증금", "부동산주소"})

	got := ExtractPatterns("3억이고 부산광역시 해운대구 우동 1408", lease)
	assert.Equal(t, "30000만원", got["보증금"])
	assert.Equal(t, "부산광역시 해운대구 우동 1408", got["부동산주소"])
}

func TestExtractPatternsIgnoresKeysOutsideSchema(t *testing.T) {
	poa := schemaFor(t, templates.TypePowerOfAttorney).Narrow([]string{"위임사항"})

	got := ExtractPatterns("위임인은 이몽룡이고 보증금: 1000만원", poa)
	assert.Empty(t, got)
}

func TestExtractPatternsIsDeterministic(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease)
	text := "임대인: 김철수\n임차인은 홍길동이고 보증금 1억, 월세 30만원, 계약기간 2년"

	first := ExtractPatterns(text, lease)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ExtractPatterns(text, lease))
	}
	assert.Len(t, first, 5)
}

func TestExtractWithoutLLM(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease)

	got := New(nil).Extract(context.Background(), "나 홍길동은 김철수에게 집을 빌리려고 해", lease)
	assert.Equal(t, map[string]string{"임차인": "홍길동", "임대인": "김철수"}, got.Canonical(lease))
	assert.Equal(t, "홍길동", got["lessee_name"])
	assert.Equal(t, "김철수", got["lessor_name"])
}

func TestExtractAsksLLMOnlyForMissingKeys(t *testing.T) {
	poa := schemaFor(t, templates.TypePowerOfAttorney).Narrow([]string{"위임인", "수임인", "위임사항"})
	llm := &fakeLLM{response: `{"위임사항": "부동산 매매 계약 체결"}`}

	got := New(llm).Extract(context.Background(), "위임인은 이몽룡이고 수임인은 성춘향이야. 부동산 매매 계약 체결을 맡길게", poa)

	assert.Equal(t, int32(1), llm.calls.Load())
	assert.Contains(t, llm.system, "위임사항")
	assert.NotContains(t, llm.system, "- 위임인")
	assert.Equal(t, "이몽룡", got["위임인"])
	assert.Equal(t, "성춘향", got["수임인"])
	assert.Equal(t, "부동산 매매 계약 체결", got["위임사항"])
	assert.Equal(t, "부동산 매매 계약 체결", got["delegated_matters"])
}

func TestExtractSkipsLLMWhenComplete(t *testing.T) {
	agreement := schemaFor(t, templates.TypeAgreement)
	llm := &fakeLLM{response: `{}`}

	got := New(llm).Extract(context.Background(), "갑: 홍길동, 을: 김철수, 합의사항: 위자료 지급", agreement)
	assert.Zero(t, llm.calls.Load())
	assert.Empty(t, agreement.Missing(got))
}

func TestExtractLLMOverwritesPatterns(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease)
	llm := &fakeLLM{response: "결과입니다:\n```json\n{\"임대인\": \"박영희\", \"deposit\": \"1억원\", \"계약기간\": \"<UNKNOWN>\", \"없는항목\": \"x\"}\n```"}

	got := New(llm).Extract(context.Background(), "임대인: 김철수", lease)

	assert.Equal(t, "박영희", got["임대인"])
	assert.Equal(t, "박영희", got["lessor_name"])
	assert.Equal(t, "10000만원", got["보증금"])
	assert.NotContains(t, got, "계약기간")
	assert.NotContains(t, got, "lease_period")
	assert.NotContains(t, got, "없는항목")
}

func TestExtractDegradesOnLLMFailure(t *testing.T) {
	lease := schemaFor(t, templates.TypeLease)
	text := "나 홍길동은 김철수에게 집을 빌리려고 해"

	for _, llm := range []*fakeLLM{
		{err: errors.New("quota exceeded")},
		{response: "죄송합니다. 이해하지 못했습니다."},
		{response: `{"임대인": "박영희"`},
	} {
		got := New(llm).Extract(context.Background(), text, lease)
		assert.Equal(t, map[string]string{"임차인": "홍길동", "임대인": "김철수"}, got.Canonical(lease))
	}
}

func TestExtractNilSchema(t *testing.T) {
	assert.Empty(t, New(nil).Extract(context.Background(), "아무 말", nil))
}

func TestParseLLMValues(t *testing.T) {
	agreement := schemaFor(t, templates.TypeAgreement)

	got, err := ParseLLMValues(`{"갑": " 홍길동 ", "을": "", "합의사항": "null", "합의일자": "2024-01-02", "party_b_address": "N/A"}`, agreement)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"갑": "홍길동", "합의일자": "2024년 1월 2일"}, got)

	_, err = ParseLLMValues("no json here", agreement)
	assert.Error(t, err)
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"prefix {\"a\":{\"b\":2}} suffix {\"c\":3}", `{"a":{"b":2}}`},
		{`{"a":"}{"}`, `{"a":"}{"}`},
		{`{"a":"\"}"}`, `{"a":"\"}"}`},
		{`{"a":1`, ``},
		{`none`, ``},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FirstJSONObject(tt.in), tt.in)
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"500만원", "500만원", true},
		{"1억", "10000만원", true},
		{"1억 2천만원", "12000만원", true},
		{"2억5천만", "25000만원", true},
		{"3천5백만원", "3500만원", true},
		{"5천만원", "5000만원", true},
		{"1억 5천", "15000만원", true},
		{"1.5억", "15000만원", true},
		{"1,500,000원", "150만원", true},
		{"0원", "", false},
		{"없음", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
