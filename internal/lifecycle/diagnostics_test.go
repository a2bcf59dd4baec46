package lifecycle

import (
	"errors"
	"testing"
)

func TestDiagnosticsAllSucceeded(t *testing.T) {
	d := NewDiagnostics(false)
	d.Register("a")
	d.Register("b")

	d.Start("a")
	d.Finish("a", nil)
	if d.AllSucceeded() {
		t.Fatalf("expected AllSucceeded false while b is still pending")
	}

	d.Start("b")
	d.Finish("b", nil)
	if !d.AllSucceeded() {
		t.Fatalf("expected AllSucceeded true once both components succeed")
	}
}

func TestDiagnosticsRecordsFailure(t *testing.T) {
	d := NewDiagnostics(false)
	d.Register("a")
	d.Start("a")
	d.Finish("a", errors.New("boom"))

	report := d.Report()
	if len(report) != 1 {
		t.Fatalf("expected 1 report, got %d", len(report))
	}
	if report[0].Status != Failed {
		t.Fatalf("expected Failed status, got %v", report[0].Status)
	}
	if report[0].Err != "boom" {
		t.Fatalf("expected error message recorded, got %q", report[0].Err)
	}
}

func TestDiagnosticsReverseOrder(t *testing.T) {
	d := NewDiagnostics(false)
	d.Register("first")
	d.Register("second")
	d.Register("third")

	got := d.ReverseOrder()
	want := []string{"third", "second", "first"}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: %v vs %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reverse order mismatch at %d: got %s want %s", i, got[i], want[i])
		}
	}
}
