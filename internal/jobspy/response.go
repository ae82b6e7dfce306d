package jobspy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SearchResponse is the usual shape of a JobSpy response body.
type SearchResponse struct {
	Count   int              `json:"count"`
	Jobs    []map[string]any `json:"jobs"`
	Message string           `json:"message,omitempty"`
}

type wireResponse struct {
	Count   *int              `json:"count"`
	Jobs    []json.RawMessage `json:"jobs"`
	Message string            `json:"message,omitempty"`
}

// DecodeResponse decodes raw as a SearchResponse. A bare array of jobs is
// accepted too. Count defaults to the number of jobs when absent.
//
// Elements of jobs that are not JSON objects decode as nil records so the
// record validator rejects them one by one instead of failing the batch.
func DecodeResponse(raw json.RawMessage) (SearchResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return SearchResponse{}, fmt.Errorf("decode response: empty body")
	}

	var wire wireResponse
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &wire.Jobs); err != nil {
			return SearchResponse{}, fmt.Errorf("decode response: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &wire); err != nil {
		return SearchResponse{}, fmt.Errorf("decode response: %w", err)
	}

	resp := SearchResponse{Message: wire.Message}
	if wire.Jobs != nil {
		resp.Jobs = make([]map[string]any, len(wire.Jobs))
		for i, elem := range wire.Jobs {
			resp.Jobs[i] = decodeRecord(elem)
		}
	}
	resp.Count = len(resp.Jobs)
	if wire.Count != nil {
		resp.Count = *wire.Count
	}
	return resp, nil
}

func decodeRecord(elem json.RawMessage) map[string]any {
	elem = bytes.TrimSpace(elem)
	if len(elem) == 0 || elem[0] != '{' {
		return nil
	}
	var rec map[string]any
	if err := json.Unmarshal(elem, &rec); err != nil {
		return nil
	}
	return rec
}
