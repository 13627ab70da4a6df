package api

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	Prompt                string             `json:"prompt"`
	MaxTokens             int                `json:"max_tokens,omitempty"`
	Temperature           float64            `json:"temperature,omitempty"`
	TopP                  float64            `json:"top_p,omitempty"`
	RepetitionPenalty     float64            `json:"repetition_penalty,omitempty"`
	RepetitionContextSize int                `json:"repetition_context_size,omitempty"`
	LogitBias             map[string]float32 `json:"logit_bias,omitempty"`
	Seed                  int64              `json:"seed,omitempty"`
	EOSTokens             []string           `json:"eos_tokens,omitempty"`
	SkipSpecialTokens     bool               `json:"skip_special_tokens,omitempty"`
	Stream                *bool              `json:"stream,omitempty"`
}

// GenerateResponse is the blocking-call reply.
type GenerateResponse struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Text   string `json:"text"`
	Usage  Usage  `json:"usage"`
}

// Usage mirrors generate.Usage on the wire.
type Usage struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	TotalTokens   int     `json:"total_tokens"`
	PromptTPS     float64 `json:"prompt_tokens_per_sec"`
	GenerationTPS float64 `json:"generation_tokens_per_sec"`
	PeakMemory    uint64  `json:"peak_memory_bytes"`
}

// StreamChunk is one server-sent event during a streamed generation: one per
// produced token, then a final chunk with Done set and the usage filled in.
type StreamChunk struct {
	ID               string  `json:"id"`
	Object           string  `json:"object"`
	Text             string  `json:"text"`
	Token            *int    `json:"token,omitempty"`
	GenerationTokens int     `json:"generation_tokens"`
	GenerationTPS    float64 `json:"generation_tokens_per_sec"`
	Done             bool    `json:"done,omitempty"`
	Usage            *Usage  `json:"usage,omitempty"`
}

// ErrorBody is the error envelope shared by every endpoint.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
