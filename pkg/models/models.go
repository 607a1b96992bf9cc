package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyEnvelope     = errors.New("envelope has neither error nor results")
	ErrAmbiguousEnvelope = errors.New("envelope has both error and results")
)

// QueryRequest is one user submission. Filepath and Page are only sent by the
// extended protocol; RequestID is echoed back by backends that support it.
type QueryRequest struct {
	Question  string  `json:"question"`
	TopN      int     `json:"top_n"`
	Filepath  *string `json:"filepath,omitempty"`
	Page      *int    `json:"page,omitempty"`
	RequestID uint64  `json:"request_id,omitempty"`
}

type SearchResult struct {
	Link      string  `json:"link"`
	LinkText  string  `json:"link_text"`
	Category  *string `json:"category,omitempty"`
	ChunkText string  `json:"chunk_text"`
	Distance  float64 `json:"distance"`

	// Sent by the original backend, not displayed.
	FileName string `json:"file_name,omitempty"`
	Page     int    `json:"page,omitempty"`
	ChunkNo  int    `json:"chunk_no,omitempty"`
}

// ResponseEnvelope is one inbound message. Exactly one of Error or the
// result fields is meaningful, see IsError.
type ResponseEnvelope struct {
	Error      *string        `json:"error,omitempty"`
	SearchTime float64        `json:"search_time"`
	TargetRank *int           `json:"target_rank"`
	Results    []SearchResult `json:"results"`
	RequestID  uint64         `json:"request_id,omitempty"`
}

func (e ResponseEnvelope) IsError() bool { return e.Error != nil }

// MarshalJSON writes only the fields of the envelope's shape.
func (e ResponseEnvelope) MarshalJSON() ([]byte, error) {
	if e.Error != nil {
		return json.Marshal(struct {
			Error     string `json:"error"`
			RequestID uint64 `json:"request_id,omitempty"`
		}{*e.Error, e.RequestID})
	}
	results := e.Results
	if results == nil {
		results = []SearchResult{}
	}
	return json.Marshal(struct {
		SearchTime float64        `json:"search_time"`
		TargetRank *int           `json:"target_rank"`
		Results    []SearchResult `json:"results"`
		RequestID  uint64         `json:"request_id,omitempty"`
	}{e.SearchTime, e.TargetRank, results, e.RequestID})
}

// DecodeEnvelope parses a raw inbound payload and rejects messages that are
// neither or both shapes.
func DecodeEnvelope(payload []byte) (ResponseEnvelope, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(payload, &keys); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	_, hasErr := keys["error"]
	_, hasResults := keys["results"]
	switch {
	case hasErr && hasResults:
		return ResponseEnvelope{}, ErrAmbiguousEnvelope
	case !hasErr && !hasResults:
		return ResponseEnvelope{}, ErrEmptyEnvelope
	}

	var env ResponseEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ResponseEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if hasErr && env.Error == nil {
		// "error": null still selects the error shape.
		empty := ""
		env.Error = &empty
	}
	return env, nil
}

func NewErrorEnvelope(msg string) ResponseEnvelope {
	return ResponseEnvelope{Error: &msg}
}
