// Copyright 2026 The Coldstore Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	ran := false
	root := &Command{
		Name: "coldstore",
		Subcommands: []*Command{
			{
				Name: "freeze",
				Run: func(args []string) error {
					ran = true
					if len(args) != 1 || args[0] != "src" {
						t.Errorf("args = %v, want [src]", args)
					}
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"freeze", "src"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran {
		t.Fatal("subcommand did not run")
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "coldstore",
		Subcommands: []*Command{
			{Name: "freeze", Run: func([]string) error { return nil }},
			{Name: "verify", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"verfy"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "verify"`) {
		t.Errorf("error %q missing suggestion", err)
	}
}

func TestExecuteUnknownCommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "coldstore",
		Subcommands: []*Command{
			{Name: "freeze", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"zzzzzzzzzz"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error %q has a suggestion for a distant name", err)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var deep bool
	command := &Command{
		Name: "verify",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flagSet.BoolVar(&deep, "deep", false, "")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"--deep", "bundle.tar.gz"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !deep {
		t.Error("--deep not parsed")
	}
}

func TestExecuteUnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "verify",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flagSet.Bool("deep", false, "")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--depe"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --deep?") {
		t.Errorf("error %q missing flag suggestion", err)
	}
}

func TestPrintHelpListsSubcommands(t *testing.T) {
	root := &Command{
		Name:    "coldstore",
		Summary: "directory freeze tool",
		Subcommands: []*Command{
			{Name: "freeze", Summary: "create an archive"},
			{Name: "verify", Summary: "check an archive"},
		},
	}

	var out strings.Builder
	root.PrintHelp(&out)
	help := out.String()

	for _, want := range []string{"freeze", "create an archive", "verify", "Commands:"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
}

func TestFullName(t *testing.T) {
	root := &Command{Name: "coldstore"}
	sub := &Command{Name: "freeze", parent: root}
	if got := sub.fullName(); got != "coldstore freeze" {
		t.Errorf("fullName = %q, want %q", got, "coldstore freeze")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"freeze", "freeze", 0},
		{"freeze", "freze", 1},
		{"verfy", "verify", 1},
		{"inspect", "freeze", 7},
		{"", "abc", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
