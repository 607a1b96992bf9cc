package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seanblong/annsearch/pkg/models"
)

// Variant selects which request fields go on the wire.
type Variant int

const (
	// Extended sends question, top_n, filepath, page and request_id.
	Extended Variant = iota
	// Legacy sends only question and top_n.
	Legacy
)

func (v Variant) String() string {
	if v == Legacy {
		return "legacy"
	}
	return "extended"
}

// ParseVariant maps a config value to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extended":
		return Extended, nil
	case "legacy":
		return Legacy, nil
	default:
		return Extended, fmt.Errorf("unknown protocol variant %q", s)
	}
}

// Form holds the raw field values the user has entered.
type Form struct {
	Question string
	TopN     string
	Filepath string
	Page     string
}

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string { return e.Field + " " + e.Reason }

// ValidationError lists every field that prevented a submission.
type ValidationError struct {
	Reasons []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, "; ")
}

// Build validates the form and returns the request it describes. Question is
// required and top_n must parse to a non-zero integer; filepath and page pass
// through and are never the reason for a rejection.
func Build(f Form, v Variant) (models.QueryRequest, error) {
	var reasons []FieldError
	if f.Question == "" {
		reasons = append(reasons, FieldError{Field: "question", Reason: "required"})
	}
	topN, ok := ParseInt(f.TopN)
	if !ok || topN == 0 {
		reasons = append(reasons, FieldError{Field: "top_n", Reason: "required"})
	}
	if len(reasons) > 0 {
		return models.QueryRequest{}, &ValidationError{Reasons: reasons}
	}

	req := models.QueryRequest{Question: f.Question, TopN: topN}
	if v == Extended {
		fp := f.Filepath
		req.Filepath = &fp
		if page, ok := ParseInt(f.Page); ok {
			req.Page = &page
		}
	}
	return req, nil
}

// Encode serialises req for the given protocol variant. Legacy peers never
// see filepath, page or request_id.
func Encode(req models.QueryRequest, v Variant) ([]byte, error) {
	if v == Legacy {
		req.Filepath = nil
		req.Page = nil
		req.RequestID = 0
	} else if req.Filepath == nil {
		empty := ""
		req.Filepath = &empty
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return b, nil
}

func Decode(payload []byte) (models.QueryRequest, error) {
	var req models.QueryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.QueryRequest{}, fmt.Errorf("decode query: %w", err)
	}
	return req, nil
}

// ParseInt reads an integer the way a browser parseInt does: leading
// whitespace, an optional sign, then as many decimal digits as follow.
// Anything after the digits is ignored.
func ParseInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\r\n\f\v")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	n, digits := 0, 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		if n > (1<<31-1)/10 {
			// Cap rather than overflow; top_n and page never get this large.
			n = 1<<31 - 1
			digits++
			continue
		}
		n = n*10 + int(c-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
