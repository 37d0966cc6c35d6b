package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeOpenAI(t *testing.T, handler func(body map[string]interface{}, w http.ResponseWriter)) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(body, w)
	}))
	t.Cleanup(srv.Close)
	return NewOpenAI("test-key", "test-model", srv.URL+"/v1")
}

func TestOpenAIGenerate(t *testing.T) {
	client := newFakeOpenAI(t, func(body map[string]interface{}, w http.ResponseWriter) {
		messages := body["messages"].([]interface{})
		assert.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
		assert.Equal(t, "test-model", body["model"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"안녕하세요"},"finish_reason":"stop"}]}`)
	})

	out, err := client.Generate(context.Background(), "system prompt", "hi")
	require.NoError(t, err)
	assert.Equal(t, "안녕하세요", out)
}

func TestOpenAIGenerateJSONRequestsJSONObject(t *testing.T) {
	client := newFakeOpenAI(t, func(body map[string]interface{}, w http.ResponseWriter) {
		format, ok := body["response_format"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"갑\":\"홍길동\"}"},"finish_reason":"stop"}]}`)
	})

	out, err := client.GenerateJSON(context.Background(), "", "extract")
	require.NoError(t, err)
	assert.JSONEq(t, `{"갑":"홍길동"}`, out)
}

func TestOpenAIGenerateStream(t *testing.T) {
	client := newFakeOpenAI(t, func(body map[string]interface{}, w http.ResponseWriter) {
		assert.Equal(t, true, body["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"법률", " 상담", "입니다"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := client.GenerateStream(context.Background(), "", "질문")
	require.NoError(t, err)

	var b strings.Builder
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		b.WriteString(chunk.Text)
	}
	assert.Equal(t, "법률 상담입니다", b.String())
}

func TestOpenAIGenerateError(t *testing.T) {
	client := newFakeOpenAI(t, func(body map[string]interface{}, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	_, err := client.Generate(context.Background(), "", "hi")
	assert.Error(t, err)
}
