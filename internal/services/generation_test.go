package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalmind/internal/extractor"
	"legalmind/internal/models"
	"legalmind/internal/state"
	"legalmind/internal/storage"
	"legalmind/internal/templates"
)

type flowFixture struct {
	flow       *DocumentFlow
	store      *state.MemoryStore
	classifier *fixedClassifier
	renderer   *stubRenderer
	uploader   *memUploader
	documents  *DocumentService
}

func newFlowFixture(t *testing.T, c Classification) *flowFixture {
	t.Helper()
	registry := newTestRegistry(t)
	renderer := &stubRenderer{}
	uploader := &memUploader{}
	documents := NewDocumentService(context.Background(), newTestDB(t), registry, renderer, uploader, time.Hour)
	store := state.NewMemoryStore(time.Minute)
	classifier := &fixedClassifier{result: c}
	return &flowFixture{
		flow:       NewDocumentFlow(store, registry, classifier, extractor.New(nil), documents),
		store:      store,
		classifier: classifier,
		renderer:   renderer,
		uploader:   uploader,
		documents:  documents,
	}
}

func (f *flowFixture) advance(t *testing.T, conv, text string) *TurnResult {
	t.Helper()
	res, err := f.flow.Advance(context.Background(), Turn{ConversationID: conv, UserID: "user-1", Text: text})
	require.NoError(t, err)
	return res
}

func TestFlowPowerOfAttorneyScenario(t *testing.T) {
	f := newFlowFixture(t, Classification{DocumentType: templates.TypePowerOfAttorney, Confidence: 92})

	res := f.advance(t, "c1", "위임장 써줘")
	assert.Equal(t, state.StatusAwaitingParameters, res.Status)
	assert.Equal(t, templates.TypePowerOfAttorney, res.DocumentType)
	assert.Equal(t, []string{"위임인", "수임인", "위임사항"}, res.Missing)
	assert.Contains(t, res.Reply, "1. 위임인")
	assert.Contains(t, res.Reply, "3. 위임사항")

	res = f.advance(t, "c1", "위임인은 이몽룡이고 수임인은 성춘향이야")
	assert.Equal(t, state.StatusAwaitingParameters, res.Status)
	assert.Equal(t, []string{"위임사항"}, res.Missing)
	assert.Equal(t, "이몽룡", res.Collected["위임인"])
	assert.Equal(t, "성춘향", res.Collected["수임인"])
	assert.Contains(t, res.Reply, "- 위임인: 이몽룡")
	assert.Zero(t, f.renderer.Calls())
	assert.Equal(t, int32(1), f.classifier.calls.Load())

	res = f.advance(t, "c1", "위임사항: 부동산 매매계약 체결")
	assert.Equal(t, state.StatusCompleted, res.Status)
	require.NotNil(t, res.Request)
	require.NotNil(t, res.Request.FileURL)
	assert.Contains(t, res.Reply, *res.Request.FileURL)
	assert.Equal(t, 1, f.renderer.Calls())

	assert.False(t, f.flow.Active(context.Background(), "c1"))
}

func TestFlowReportsExactlyMissingKeys(t *testing.T) {
	f := newFlowFixture(t, Classification{DocumentType: templates.TypeAgreement, Confidence: 88})

	res := f.advance(t, "c1", "갑: 홍길동")
	assert.Equal(t, state.StatusAwaitingParameters, res.Status)
	assert.Equal(t, []string{"을", "합의사항"}, res.Missing)
	assert.Equal(t, map[string]string{"갑": "홍길동"}, res.Collected)
	assert.Nil(t, res.Request)
	assert.Zero(t, f.renderer.Calls())

	g, err := f.store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusAwaitingParameters, g.Status)
}

func TestFlowLowConfidenceAsksForClarification(t *testing.T) {
	f := newFlowFixture(t, Classification{DocumentType: templates.TypeLease, Confidence: 55})

	res := f.advance(t, "c1", "서류 하나 만들어줘")
	assert.Equal(t, state.StatusAwaitingTemplate, res.Status)
	assert.Contains(t, res.Reply, "임대차계약서")
	assert.Contains(t, res.Reply, "위임장")
	assert.True(t, f.flow.Active(context.Background(), "c1"))

	g, err := f.store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, g.TemplateType)

	f.classifier.result = Classification{DocumentType: templates.TypeLease, Confidence: 90}
	res = f.advance(t, "c1", "임대차계약서요")
	assert.Equal(t, state.StatusAwaitingParameters, res.Status)
	assert.Equal(t, templates.TypeLease, res.DocumentType)
}

func TestFlowGivesUpAfterRepeatedClarification(t *testing.T) {
	f := newFlowFixture(t, Classification{})

	for i := 0; i < maxClarifications; i++ {
		res := f.advance(t, "c1", "음")
		assert.Equal(t, state.StatusAwaitingTemplate, res.Status)
	}
	res := f.advance(t, "c1", "글쎄")
	assert.Equal(t, state.StatusFailed, res.Status)
	assert.Equal(t, MsgClarificationAbandoned, res.Reply)
	assert.False(t, f.flow.Active(context.Background(), "c1"))
}

func TestFlowCollectedParamsAreMonotonic(t *testing.T) {
	f := newFlowFixture(t, Classification{DocumentType: templates.TypeLease, Confidence: 95})
	ctx := context.Background()

	turns := []string{
		"임대차계약서 작성해줘. 임대인: 김철수",
		"임대인: 박영희\n임차인: 홍길동",
		"보증금: 1억",
		"주소는 서울특별시 강남구 테헤란로 123",
	}
	seen := map[string]string{}
	for _, text := range turns {
		f.advance(t, "c1", text)
		g, err := f.store.Get(ctx, "c1")
		require.NoError(t, err)
		for k, v := range seen {
			assert.Equal(t, v, g.Collected[k], "key %s changed after %q", k, text)
		}
		for k, v := range g.Collected {
			seen[k] = v
		}
	}
	assert.Equal(t, "김철수", seen["임대인"])
	assert.Equal(t, "홍길동", seen["임차인"])
	assert.Equal(t, "10000만원", seen["보증금"])
}

func TestFlowUploadFailure(t *testing.T) {
	f := newFlowFixture(t, Classification{DocumentType: templates.TypeAgreement, Confidence: 90})
	f.uploader.uploadErr = errors.New("bucket unavailable")

	res := f.advance(t, "c1", "갑: 홍길동\n을: 김철수\n합의사항: 손해배상금 300만원을 지급한다")
	assert.Equal(t, state.StatusFailed, res.Status)
	assert.Equal(t, MsgGenerationFailed, res.Reply)
	require.NotNil(t, res.Request)
	assert.Equal(t, models.DocumentFailed, res.Request.Status)
	assert.Nil(t, res.Request.FileURL)
	assert.False(t, f.flow.Active(context.Background(), "c1"))

	var completed int64
	f.documents.db.Model(&models.DocumentRequest{}).Where("status = ?", models.DocumentCompleted).Count(&completed)
	assert.Zero(t, completed)
}

func TestFlowConversationsAreIsolated(t *testing.T) {
	f := newFlowFixture(t, Classification{DocumentType: templates.TypeAgreement, Confidence: 90})

	names := []string{"김민수", "이서연", "박지훈", "최유진", "정하늘", "강도윤", "조민재", "윤지호"}

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			conv := fmt.Sprintf("c%d", i)
			_, err := f.flow.Advance(context.Background(), Turn{ConversationID: conv, UserID: "u", Text: "갑: " + name})
			assert.NoError(t, err)
		}(i, name)
	}
	wg.Wait()

	for i, name := range names {
		g, err := f.store.Get(context.Background(), fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		assert.Equal(t, name, g.Collected["갑"])
	}
	assert.Zero(t, f.flow.locks.size())
}

type failingStore struct{ state.Store }

func (failingStore) Get(context.Context, string) (*state.Generation, error) {
	return nil, errors.New("redis down")
}

func TestFlowStoreFailure(t *testing.T) {
	f := newFlowFixture(t, Classification{DocumentType: templates.TypeAgreement, Confidence: 90})
	f.flow.store = failingStore{}

	_, err := f.flow.Advance(context.Background(), Turn{ConversationID: "c1", Text: "합의서"})
	assert.Error(t, err)
}

var _ storage.Uploader = (*memUploader)(nil)
