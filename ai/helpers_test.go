package ai

import (
	"errors"
	"testing"
)

func Test_CleanResponse(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want string
	}{
		{
			name: "newlines",
			resp: "Hello\nWorld",
			want: "Hello World",
		},
		{
			name: "chat template tokens",
			resp: "<|im_start|> \nTtocsNeb: hi",
			want: "TtocsNeb: hi",
		},
		{
			name: "leading command",
			resp: "!ban everyone",
			want: "ban everyone",
		},
		{
			name: "leading slash after whitespace",
			resp: "  /timeout @Ada",
			want: "timeout @Ada",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanResponse(tt.resp); got != tt.want {
				t.Errorf("CleanResponse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_StripQuotes(t *testing.T) {
	tests := []struct {
		name string
		resp string
		want string
	}{
		{name: "quoted", resp: `"hi"`, want: "hi"},
		{name: "unquoted", resp: "hi there", want: "hi there"},
		{name: "nested quotes", resp: `""hi""`, want: "hi"},
		{name: "leading quote only", resp: `"hi`, want: "hi"},
		{name: "inner quotes kept", resp: `say "hi" to chat`, want: `say "hi" to chat`},
		{name: "lone quote", resp: `"`, want: ""},
		{name: "empty quotes", resp: `""`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripQuotes(tt.resp); got != tt.want {
				t.Errorf("StripQuotes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_Sanitize(t *testing.T) {
	tests := []struct {
		name string
		resp string
		max  int
		want string
	}{
		{name: "quoted with trailing newline", resp: "\"hi\"\n", max: 500, want: "hi"},
		{name: "nested quotes", resp: `""hi""`, max: 500, want: "hi"},
		{name: "unbalanced quote", resp: `"hi`, max: 500, want: "hi"},
		{name: "quote behind command", resp: `!"hi"`, max: 500, want: "hi"},
		{name: "quote at truncation point", resp: `"abcd"efgh"`, max: 5, want: "abcd"},
		{name: "raid welcome", resp: `"Welcome @Grace and the 42 raiders!"`, max: 500, want: "Welcome @Grace and the 42 raiders!"},
		{name: "only quotes", resp: ` "" `, max: 500, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := Sanitize(tt.resp, tt.max)
			if once != tt.want {
				t.Errorf("Sanitize() = %q, want %q", once, tt.want)
			}
			if twice := Sanitize(once, tt.max); twice != once {
				t.Errorf("Sanitize() is not idempotent: %q then %q", once, twice)
			}
		})
	}
}

func Test_Truncate(t *testing.T) {
	tests := []struct {
		name string
		resp string
		max  int
		want string
	}{
		{name: "short", resp: "hello", max: 10, want: "hello"},
		{name: "exact", resp: "hello", max: 5, want: "hello"},
		{name: "long", resp: "hello world", max: 5, want: "hello"},
		{name: "multibyte", resp: "héllo wörld", max: 7, want: "héllo w"},
		{name: "disabled", resp: "hello", max: 0, want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.resp, tt.max); got != tt.want {
				t.Errorf("Truncate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInferenceErrorUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := error(&InferenceError{Model: "llama3", Err: base})

	if !errors.Is(err, base) {
		t.Errorf("errors.Is() = false, want true")
	}
	var ie *InferenceError
	if !errors.As(err, &ie) || ie.Model != "llama3" {
		t.Errorf("errors.As() did not recover the model name")
	}
}
