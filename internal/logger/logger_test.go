package logger

import (
	"testing"
)

func TestMsgStringWithoutLocation(t *testing.T) {
	msg := Msg{Kind: Warning, Text: "something odd"}
	if got := msg.String(StderrOptions{}, TerminalInfo{}); got != "warning: something odd\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestMsgStringIncludesClassForErrors(t *testing.T) {
	msg := Msg{Kind: Error, Class: ClassLink, Text: "No matching export"}
	if got := msg.String(StderrOptions{}, TerminalInfo{}); got != "link error: No matching export\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestMsgStringWithSource(t *testing.T) {
	source := Source{PrettyPath: "entry.js", Contents: "import {x} from './missing'\n"}
	r := source.RangeOfQuoted(0, "'./missing'")
	msg := Msg{Kind: Error, Class: ClassResolution, Text: "Could not resolve \"./missing\"", Location: LocationOrNil(&source, r)}
	got := msg.String(StderrOptions{IncludeSource: true}, TerminalInfo{})
	expected := "entry.js:1:16: resolution error: Could not resolve \"./missing\"\n" +
		"import {x} from './missing'\n" +
		"                ~~~~~~~~~~~\n"
	if got != expected {
		t.Fatalf("unexpected output:\n%s\nexpected:\n%s", got, expected)
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		msg   Msg
		fatal bool
	}{
		{Msg{Kind: Error, Class: ClassParse}, false},
		{Msg{Kind: Error, Class: ClassResolution}, false},
		{Msg{Kind: Error, Class: ClassInfrastructure}, true},
		{Msg{Kind: Error, Class: ClassPlugin}, true},
		{Msg{Kind: Warning, Class: ClassInfrastructure}, false},
	}
	for _, c := range cases {
		if c.msg.IsFatal() != c.fatal {
			t.Fatalf("IsFatal(%v/%v) != %v", c.msg.Kind, c.msg.Class, c.fatal)
		}
	}
}

func TestDeferLogSortsByLocation(t *testing.T) {
	log := NewDeferLog()
	log.AddMsg(Msg{Kind: Warning, Text: "b", Location: &MsgLocation{File: "b.js", Line: 1}})
	log.AddMsg(Msg{Kind: Error, Text: "a", Location: &MsgLocation{File: "a.js", Line: 2}})
	log.AddMsg(Msg{Kind: Warning, Text: "no location"})
	if !log.HasErrors() {
		t.Fatal("expected errors")
	}
	msgs := log.Done()
	if len(msgs) != 3 || msgs[0].Text != "no location" || msgs[1].Text != "a" || msgs[2].Text != "b" {
		t.Fatalf("unexpected order: %v", msgs)
	}
}

func TestLocationOrNilComputesLineAndColumn(t *testing.T) {
	source := Source{PrettyPath: "x.js", Contents: "a\nbc\r\nd"}
	loc := LocationOrNil(&source, Range{Loc: Loc{Start: 6}})
	if loc.Line != 3 || loc.Column != 0 || loc.LineText != "d" {
		t.Fatalf("unexpected location %+v", *loc)
	}
	loc = LocationOrNil(&source, Range{Loc: Loc{Start: 3}, Len: 1})
	if loc.Line != 2 || loc.Column != 1 || loc.LineText != "bc" {
		t.Fatalf("unexpected location %+v", *loc)
	}
}
