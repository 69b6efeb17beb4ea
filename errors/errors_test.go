package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseRewrite,
				Kind:   KindOverflow,
				Path:   []string{"code", "branch"},
				Class:  "com/app/Secret",
				Member: "run",
				Detail: "offset too large",
			},
			contains: []string{"[rewrite]", "overflow", "code.branch", "com/app/Secret.run", "offset too large"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseParse,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[parse]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseIO,
				Kind:   KindInvalidData,
				Detail: "read archive",
				Cause:  errors.New("unexpected EOF"),
			},
			contains: []string{"[io]", "invalid_data", "read archive", "caused by", "unexpected EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseCodec,
		Kind:  KindLimit,
		Path:  []string{"literal"},
	}

	if !err.Is(&Error{Phase: PhaseCodec, Kind: KindLimit}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseParse, Kind: KindLimit}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseCodec, Kind: KindOverflow}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, &Error{Phase: PhaseCodec, Kind: KindLimit}) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseRewrite, KindLimit).
		Path("code").
		Class("com/app/Big").
		Member("<clinit>").
		Value(70000).
		Cause(cause).
		Detail("code length %d", 70000).
		Build()

	if err.Phase != PhaseRewrite {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseRewrite)
	}
	if err.Kind != KindLimit {
		t.Errorf("Kind = %v, want %v", err.Kind, KindLimit)
	}
	if len(err.Path) != 1 || err.Path[0] != "code" {
		t.Errorf("Path = %v, want [code]", err.Path)
	}
	if err.Class != "com/app/Big" || err.Member != "<clinit>" {
		t.Errorf("Class=%v Member=%v", err.Class, err.Member)
	}
	if err.Value != 70000 {
		t.Errorf("Value = %v, want 70000", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "code length 70000" {
		t.Errorf("Detail = %q, want 'code length 70000'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseRewrite, "jsr")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
		if !strings.Contains(err.Detail, "jsr") {
			t.Errorf("Detail = %q, should mention jsr", err.Detail)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseParse, []string{"constant_pool"}, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseEncode, []string{"branch"}, 40000, "int16")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
		if !strings.Contains(err.Detail, "int16") {
			t.Errorf("Detail = %q, should mention int16", err.Detail)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		err := Limit(PhaseCodec, "literal length", 9000, 8192)
		if err.Kind != KindLimit {
			t.Errorf("Kind = %v, want %v", err.Kind, KindLimit)
		}
		if !strings.Contains(err.Detail, "8192") {
			t.Errorf("Detail = %q, should contain limit", err.Detail)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseIO, "input", "app.jar")
		if err.Kind != KindNotFound {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotFound)
		}
	})

	t.Run("Mismatch", func(t *testing.T) {
		err := Mismatch("com/app/A", "main", "hello", "hellp")
		if err.Phase != PhaseVerify || err.Kind != KindMismatch {
			t.Errorf("got [%v] %v", err.Phase, err.Kind)
		}
		if !strings.Contains(err.Error(), "com/app/A.main") {
			t.Errorf("Error() = %q, should name the member", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		cause := errors.New("boom")
		err := Wrap(PhaseConfig, KindInvalidInput, "load muddy.toml", cause)
		if !errors.Is(err, cause) {
			t.Error("Wrap should keep cause reachable")
		}
	})
}
