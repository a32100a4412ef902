package batchapi

import "fmt"

// EmbeddingsEndpoint is the target endpoint for embedding request records.
const EmbeddingsEndpoint = "/v1/embeddings"

// RequestRecord is one line of a chunk request file. The CustomID is the
// request token; it is the only correlation between a result line and the
// source row, so it must be unique within the file and globally decodable.
type RequestRecord struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     RequestBody `json:"body"`
}

// RequestBody holds the computation parameters for one item.
type RequestBody struct {
	Model string `json:"model"`
	Input string `json:"input"`

	// Dimensions is the collection-specific output width. Zero means the
	// model default.
	Dimensions int `json:"dimensions,omitempty"`
}

// NewEmbeddingRequest builds the request record for one retained item.
func NewEmbeddingRequest(token, model, input string, dimensions int) RequestRecord {
	return RequestRecord{
		CustomID: token,
		Method:   "POST",
		URL:      EmbeddingsEndpoint,
		Body: RequestBody{
			Model:      model,
			Input:      input,
			Dimensions: dimensions,
		},
	}
}

// ResultRecord is one line of a completed job's output payload. Exactly one
// of Response and Error carries the outcome; a populated Error means the
// single item failed without failing the job.
type ResultRecord struct {
	ID       string          `json:"id"`
	CustomID string          `json:"custom_id"`
	Response *ResultResponse `json:"response"`
	Error    *ResultError    `json:"error"`
}

// ResultResponse is the per-item HTTP-shaped response envelope.
type ResultResponse struct {
	StatusCode int           `json:"status_code"`
	Body       EmbeddingBody `json:"body"`
}

// EmbeddingBody is the embedding payload inside a successful response.
type EmbeddingBody struct {
	Data []EmbeddingDatum `json:"data"`
}

// EmbeddingDatum is one embedding vector.
type EmbeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// ResultError is the per-item error payload.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Vector extracts the embedding from a result line. It returns an error for
// lines with an error payload, a non-2xx status, or no embedding data.
func (r *ResultRecord) Vector() ([]float32, error) {
	if r.Error != nil {
		return nil, fmt.Errorf("%s: %s", r.Error.Code, r.Error.Message)
	}
	if r.Response == nil {
		return nil, fmt.Errorf("result line %s has no response", r.CustomID)
	}
	if r.Response.StatusCode < 200 || r.Response.StatusCode >= 300 {
		return nil, fmt.Errorf("result line %s has status %d", r.CustomID, r.Response.StatusCode)
	}
	if len(r.Response.Body.Data) == 0 {
		return nil, fmt.Errorf("result line %s has no embedding data", r.CustomID)
	}
	return r.Response.Body.Data[0].Embedding, nil
}
