// Package contracts defines the boundary interfaces between the core
// load-generation/measurement pipeline and its external collaborators:
// dataset construction and endpoint-specific HTTP formatting. Both are out
// of scope for the core; this package fixes the shape of that boundary so
// pkg/worker can be written and tested against it without depending on any
// concrete implementation.
//
// A narrow interface with doc comments, concrete implementation kept
// elsewhere — the same pattern used for storage backends elsewhere in this
// codebase.
package contracts

import (
	"context"
	"net/http"

	"github.com/aiperf-project/aiperf-core/pkg/types"
)

// Turn is a single request/response exchange within a Conversation, as
// supplied by the dataset provider.
type Turn struct {
	Role       string
	Texts      []string
	Images     []string
	Audios     []string
	Model      string
	MaxTokens  *int64
	ExtraBody  map[string]any
}

// Conversation is the ordered turn list returned for one conversation_id.
type Conversation struct {
	ConversationID string
	Turns          []Turn
}

// DatasetProvider is the REQ-side contract for the external dataset
// collaborator: given a conversation_id (or a worker-chosen id in rate
// mode when conversation_id is empty), return its Conversation.
//
// Implementations sit behind a REQ/REP fabric.RequestClient in production;
// pkg/worker depends only on this interface so it can be exercised against
// a fake in tests.
type DatasetProvider interface {
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
}

// EndpointKind identifies which wire format a request/response pair uses.
type EndpointKind string

const (
	EndpointChatCompletions  EndpointKind = "chat"
	EndpointCompletions      EndpointKind = "completions"
	EndpointEmbeddings       EndpointKind = "embeddings"
	EndpointRankings         EndpointKind = "rankings"
	EndpointHuggingFaceGen   EndpointKind = "huggingface_generate"
)

// RequestSpec is the fully-formed, endpoint-agnostic description of one
// HTTP call a builder hands back to the worker: method, URL, headers, and
// body. The worker performs the transport; it never knows the endpoint's
// wire shape.
type RequestSpec struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte

	// Streaming indicates the response should be read as a chunked stream
	// rather than a single body.
	Streaming bool
}

// RequestBuilder formats one conversation turn into a RequestSpec for a
// specific EndpointKind. model is the model name already selected by the
// worker's model-selection strategy.
type RequestBuilder interface {
	BuildRequest(kind EndpointKind, model string, turn Turn, streaming bool) (RequestSpec, error)
}

// ResponseChunk is one unit of a (possibly streamed) HTTP response, tagged
// with the perf-clock timestamp it was observed at.
type ResponseChunk struct {
	PerfNS      int64
	Data        []byte
	ContentOnly bool // false for usage-only chunks that carry no content
}

// ResponseParser turns the raw chunks captured by the worker into parsed
// response data plus token usage, for a specific EndpointKind. When usage
// is not present in the response, implementations are expected to invoke a
// tokenizer internally and still return counts.
type ResponseParser interface {
	ParseResponse(kind EndpointKind, chunks []ResponseChunk) (ParsedResult, error)
}

// ParsedResult is the output of a ResponseParser: one types.ParsedResponse
// per content-carrying chunk, plus aggregated token counts.
type ParsedResult struct {
	Responses           []types.ParsedResponse
	InputTokenCount      *int64
	OutputTokenCount     *int64
	ReasoningTokenCount  *int64
}
