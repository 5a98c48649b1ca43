package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestLineReporter(t *testing.T) {
	var buf bytes.Buffer
	r := &LineReporter{Out: &buf, Description: "Ingesting knowledge"}
	r.Start(2)
	r.Update(1, "rfc/rfc8033.txt")
	r.Update(2, "p4/basic.p4")
	r.Finish()

	out := buf.String()
	for _, want := range []string{"Ingesting knowledge: 2 item(s)", "[1/2] rfc/rfc8033.txt", "[2/2] p4/basic.p4", "Ingesting knowledge: done"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestNewReporterUnderCI(t *testing.T) {
	t.Setenv("CI", "true")
	if _, ok := NewReporter("x").(*LineReporter); !ok {
		t.Error("expected LineReporter under CI")
	}
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	if _, ok := NewReporter("x").(*TerminalReporter); !ok {
		t.Error("expected TerminalReporter outside CI")
	}
}
