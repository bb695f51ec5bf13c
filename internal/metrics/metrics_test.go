package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(TilesWritten)
	TilesWritten.Inc()
	if got := testutil.ToFloat64(TilesWritten); got != before+1 {
		t.Errorf("Expected %v, got %v", before+1, got)
	}

	removed := TilesRemoved.WithLabelValues("area")
	before = testutil.ToFloat64(removed)
	removed.Add(2)
	if got := testutil.ToFloat64(removed); got != before+2 {
		t.Errorf("Expected %v, got %v", before+2, got)
	}
}

func TestWriteTextfile(t *testing.T) {
	CellsProcessed.Inc()
	ClipDurationMs.Observe(3)

	path := filepath.Join(t.TempDir(), "cantons.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"cantons_cells_processed_total", "cantons_clip_duration_ms_bucket"} {
		if !strings.Contains(string(data), name) {
			t.Errorf("Expected %s in textfile output", name)
		}
	}
}
