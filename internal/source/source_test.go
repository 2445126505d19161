package source

import (
	"errors"
	"strings"
	"testing"
)

func fakeProvider(piped bool, stdin, clip string, clipErr error) *SourceProvider {
	return &SourceProvider{
		stdin:         strings.NewReader(stdin),
		isPiped:       func() bool { return piped },
		readClipboard: func() (string, error) { return clip, clipErr },
	}
}

func TestRequest(t *testing.T) {
	tests := []struct {
		name string
		sp   *SourceProvider
		args []string
		want string
	}{
		{"args win", fakeProvider(true, "[imp] stdin", "", nil), []string{"[fix]<file:A.swift>", "Leak"}, "[fix]<file:A.swift> Leak"},
		{"stdin when piped", fakeProvider(true, "  [review] all\n", "[fix] clip", nil), nil, "[review] all"},
		{"clipboard otherwise", fakeProvider(false, "", "[think] plan\n", nil), nil, "[think] plan"},
		{"empty clipboard", fakeProvider(false, "", "   ", nil), nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sp.Request(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Request = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetContentClipboardError(t *testing.T) {
	sp := fakeProvider(false, "", "", errors.New("no clipboard utility"))
	if _, err := sp.GetContent(); err == nil {
		t.Error("expected an error")
	}
}
