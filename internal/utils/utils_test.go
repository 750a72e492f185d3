package utils

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, INFO)

	logger.Debug("hidden", nil)
	logger.Info("gatekeeper scan finished", Fields{"decision": "REJECTED", "b": 1})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at INFO level")
	}
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "gatekeeper scan finished") {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "| b=1 decision=REJECTED") {
		t.Errorf("fields should be sorted by key: %q", out)
	}
	if !strings.Contains(out, "utils_test.go") {
		t.Errorf("caller file should point at the test: %q", out)
	}
}

func TestLoggerDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, DEBUG)
	logger.Enable(false)
	logger.Error("nothing", nil)
	if buf.Len() != 0 {
		t.Error("disabled logger should not write")
	}
}

func TestInitLoggerCreatesDailyFile(t *testing.T) {
	dir := t.TempDir()
	path, err := InitLogger(dir)
	if err != nil {
		t.Fatalf("InitLogger: %v", err)
	}
	defer GetLogger().Close()

	if !strings.Contains(path, time.Now().Format("2006-01-02")) {
		t.Errorf("log file should be dated, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetricsCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.IncrementCounter("analysis_classify_live")
		}()
	}
	wg.Wait()

	if got := m.GetCounterValue("analysis_classify_live"); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
	if got := m.GetCounterValue("missing"); got != 0 {
		t.Errorf("missing counter should be 0, got %d", got)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetricsCollector()
	m.SetGauge("sessions_active", 3)
	m.AddGauge("sessions_active", -1)
	m.RecordHistogram("analysis_time_ms", 40)
	m.RecordHistogram("analysis_time_ms", 10)

	snap := m.GetMetrics()
	gauges := snap["gauges"].(map[string]int64)
	if gauges["sessions_active"] != 2 {
		t.Errorf("expected gauge 2, got %d", gauges["sessions_active"])
	}
	h := snap["histograms"].(map[string]map[string]int64)["analysis_time_ms"]
	if h["count"] != 2 || h["min"] != 10 || h["max"] != 40 || h["sum"] != 50 {
		t.Errorf("unexpected histogram %v", h)
	}
}

func TestAPIMetricsRecordAnalysis(t *testing.T) {
	m := NewMetricsCollector()
	am := NewAPIMetrics(m, NewLogger(&bytes.Buffer{}, ERROR))

	am.RecordAnalysis("gatekeeper", "fallback", 5*time.Millisecond)
	am.RecordAPIRequest("/api/state", "GET", 200, time.Millisecond)

	if m.GetCounterValue("analysis_gatekeeper_fallback") != 1 {
		t.Error("fallback counter not incremented")
	}
	if m.GetCounterValue("api_responses_2xx") != 1 {
		t.Error("status class counter not incremented")
	}
}

func TestSealAndOpenSecret(t *testing.T) {
	sealed, err := SealSecret("AIza-test", "pass")
	if err != nil {
		t.Fatalf("SealSecret: %v", err)
	}
	if !strings.HasPrefix(sealed, EncryptedPrefix) {
		t.Fatalf("sealed value missing prefix: %q", sealed)
	}

	opened, err := OpenSecret(sealed, "pass")
	if err != nil || opened != "AIza-test" {
		t.Fatalf("OpenSecret = %q, %v", opened, err)
	}

	if _, err := OpenSecret(sealed, "wrong"); err == nil {
		t.Error("wrong passphrase should fail")
	}
	if _, err := OpenSecret(sealed, ""); err == nil {
		t.Error("missing passphrase should fail")
	}

	plain, _ := SealSecret("AIza-test", "")
	if plain != "AIza-test" {
		t.Errorf("empty passphrase should leave value as is, got %q", plain)
	}
	if v, _ := OpenSecret("plain", "pass"); v != "plain" {
		t.Errorf("plain value should pass through, got %q", v)
	}
}
