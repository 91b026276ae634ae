package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name   string
		args   []string
		config string
		origin string
	}{
		{"chrome", []string{"chrome-extension://abc/"}, "", "chrome-extension://abc/"},
		{"chrome on windows", []string{"chrome-extension://abc/", "--parent-window=6620"}, "", "chrome-extension://abc/"},
		{"config before origin", []string{"-config", "/tmp/b.yaml", "chrome-extension://abc/"}, "/tmp/b.yaml", "chrome-extension://abc/"},
		{"no origin", nil, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := parseArgs(tc.args, &bytes.Buffer{})
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if opts.configPath != tc.config || opts.origin != tc.origin {
				t.Fatalf("unexpected options %+v", opts)
			}
		})
	}
}

func TestUsageListsOnlyRealFlags(t *testing.T) {
	var out bytes.Buffer
	if _, err := parseArgs([]string{"-help"}, &out); err == nil {
		t.Fatal("expected -help to stop parsing")
	}
	if strings.Contains(out.String(), "parent-window") {
		t.Fatalf("usage advertises an unused flag:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "-config") {
		t.Fatalf("usage missing -config:\n%s", out.String())
	}
}
