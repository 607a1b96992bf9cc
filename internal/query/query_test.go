package query

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"5", 5, true},
		{"  12", 12, true},
		{"7abc", 7, true},
		{"-3", -3, true},
		{"+4", 4, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-", 0, false},
		{"1.9", 1, true},
	}
	for _, tt := range tests {
		got, ok := ParseInt(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseInt(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name       string
		form       Form
		wantFields []string
	}{
		{"valid", Form{Question: "foo", TopN: "5"}, nil},
		{"empty question", Form{Question: "", TopN: "5"}, []string{"question"}},
		{"whitespace question is non-empty", Form{Question: "   ", TopN: "5"}, nil},
		{"zero top_n", Form{Question: "foo", TopN: "0"}, []string{"top_n"}},
		{"absent top_n", Form{Question: "foo"}, []string{"top_n"}},
		{"non-numeric top_n", Form{Question: "foo", TopN: "many"}, []string{"top_n"}},
		{"both missing", Form{}, []string{"question", "top_n"}},
		{"bad page is not a rejection", Form{Question: "foo", TopN: "3", Page: "x"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.form, Extended)
			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %v", err)
			}
			var fields []string
			for _, r := range verr.Reasons {
				fields = append(fields, r.Field)
			}
			if !reflect.DeepEqual(fields, tt.wantFields) {
				t.Errorf("Expected fields %v, got %v", tt.wantFields, fields)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	_, err := Build(Form{}, Legacy)
	if err == nil {
		t.Fatal("Expected error")
	}
	if err.Error() != "question required; top_n required" {
		t.Errorf("Unexpected message %q", err.Error())
	}
}

func TestEncodeLegacy(t *testing.T) {
	req, err := Build(Form{Question: "foo", TopN: "5", Filepath: "a.pdf", Page: "2"}, Legacy)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	req.RequestID = 9
	b, err := Encode(req, Legacy)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != `{"question":"foo","top_n":5}` {
		t.Errorf("Unexpected legacy payload %s", b)
	}
}

func TestEncodeExtended(t *testing.T) {
	tests := []struct {
		name string
		form Form
		id   uint64
		want string
	}{
		{
			name: "all fields",
			form: Form{Question: "foo", TopN: "5", Filepath: "a.pdf", Page: "2"},
			id:   1,
			want: `{"question":"foo","top_n":5,"filepath":"a.pdf","page":2,"request_id":1}`,
		},
		{
			name: "empty filepath is still sent, unset page is omitted",
			form: Form{Question: "foo", TopN: "5"},
			id:   2,
			want: `{"question":"foo","top_n":5,"filepath":"","request_id":2}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Build(tt.form, Extended)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			req.RequestID = tt.id
			b, err := Encode(req, Extended)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, b)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	forms := []Form{
		{Question: "foo", TopN: "5"},
		{Question: "what is a vector?", TopN: "10", Filepath: "docs/x.pdf", Page: "3"},
		{Question: "ünïcödé \"quoted\"", TopN: "-1", Page: "0"},
	}
	for _, v := range []Variant{Legacy, Extended} {
		for _, f := range forms {
			req, err := Build(f, v)
			if err != nil {
				t.Fatalf("Build(%+v) failed: %v", f, err)
			}
			b, err := Encode(req, v)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(got, req) {
				t.Errorf("%s round trip mismatch: got %+v, want %+v", v, got, req)
			}
		}
	}
}

func TestParseVariant(t *testing.T) {
	for in, want := range map[string]Variant{"": Extended, "extended": Extended, "LEGACY": Legacy} {
		got, err := ParseVariant(in)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseVariant("v3"); err == nil {
		t.Error("Expected error for unknown variant")
	}
}
