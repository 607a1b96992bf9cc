package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantErr   error
		wantIsErr bool
		check     func(t *testing.T, env ResponseEnvelope)
	}{
		{
			name:      "error shape",
			payload:   `{"error":"index unavailable"}`,
			wantIsErr: true,
			check: func(t *testing.T, env ResponseEnvelope) {
				if *env.Error != "index unavailable" {
					t.Errorf("Expected error 'index unavailable', got %q", *env.Error)
				}
			},
		},
		{
			name:      "null error still selects error shape",
			payload:   `{"error":null}`,
			wantIsErr: true,
		},
		{
			name:    "results shape with rank",
			payload: `{"search_time":0.5,"target_rank":3,"results":[{"link":"/pdf/a.pdf?page=1","link_text":"a.pdf, p.1","chunk_text":"x","distance":0.25}]}`,
			check: func(t *testing.T, env ResponseEnvelope) {
				if env.TargetRank == nil || *env.TargetRank != 3 {
					t.Errorf("Expected target rank 3, got %v", env.TargetRank)
				}
				if len(env.Results) != 1 {
					t.Fatalf("Expected 1 result, got %d", len(env.Results))
				}
				if env.Results[0].Category != nil {
					t.Errorf("Expected no category, got %q", *env.Results[0].Category)
				}
			},
		},
		{
			name:    "results shape with category and request id",
			payload: `{"search_time":1,"target_rank":null,"results":[{"link":"l","link_text":"t","category":"law","chunk_text":"c","distance":1}],"request_id":7}`,
			check: func(t *testing.T, env ResponseEnvelope) {
				if env.TargetRank != nil {
					t.Errorf("Expected nil target rank, got %d", *env.TargetRank)
				}
				if env.RequestID != 7 {
					t.Errorf("Expected request id 7, got %d", env.RequestID)
				}
				if c := env.Results[0].Category; c == nil || *c != "law" {
					t.Errorf("Expected category 'law', got %v", c)
				}
			},
		},
		{
			name:    "both shapes",
			payload: `{"error":"x","results":[]}`,
			wantErr: ErrAmbiguousEnvelope,
		},
		{
			name:    "neither shape",
			payload: `{"search_time":1}`,
			wantErr: ErrEmptyEnvelope,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeEnvelope([]byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEnvelope failed: %v", err)
			}
			if env.IsError() != tt.wantIsErr {
				t.Errorf("Expected IsError %v, got %v", tt.wantIsErr, env.IsError())
			}
			if tt.check != nil {
				tt.check(t, env)
			}
		})
	}
}

func TestDecodeEnvelopeInvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	if err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "decode envelope") {
		t.Errorf("Expected wrapped decode error, got %v", err)
	}
}

func TestEnvelopeMarshalSingleShape(t *testing.T) {
	b, err := json.Marshal(NewErrorEnvelope("boom"))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `{"error":"boom"}` {
		t.Errorf("Expected error-only JSON, got %s", b)
	}

	b, err = json.Marshal(ResponseEnvelope{SearchTime: 0.1})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `{"search_time":0.1,"target_rank":null,"results":[]}` {
		t.Errorf("Unexpected results JSON: %s", b)
	}
}
