package types

import "testing"

func TestMetricArrayAppendAndSum(t *testing.T) {
	a := NewMetricArray(2)
	for i := 1; i <= 5; i++ {
		a.Append(float64(i))
	}
	if a.Len() != 5 {
		t.Fatalf("expected len 5, got %d", a.Len())
	}
	if a.Sum() != 15 {
		t.Fatalf("expected sum 15, got %f", a.Sum())
	}
}

func TestMetricArrayToResultMedian(t *testing.T) {
	a := NewMetricArray(4)
	a.Extend([]float64{1, 2, 3, 4, 5})
	res := a.ToResult("test_metric", "Test Metric", "ms")
	if res.P50 != 3 {
		t.Fatalf("expected median 3, got %f", res.P50)
	}
	if *res.Min != 1 || *res.Max != 5 {
		t.Fatalf("expected min 1 max 5, got min=%v max=%v", *res.Min, *res.Max)
	}
	if res.Count != 5 {
		t.Fatalf("expected count 5, got %d", res.Count)
	}
}

func TestMetricArrayGrowsPastInitialCapacity(t *testing.T) {
	a := NewMetricArray(1)
	for i := 0; i < 100; i++ {
		a.Append(float64(i))
	}
	if a.Len() != 100 {
		t.Fatalf("expected len 100, got %d", a.Len())
	}
}

func TestCreditPhaseStatsCountBased(t *testing.T) {
	total := int64(10)
	cfg := CreditPhaseConfig{Type: CreditPhaseProfiling, TotalExpectedRequests: &total}
	if !cfg.IsValid() {
		t.Fatalf("expected count-based config to be valid")
	}
	stats := NewCreditPhaseStats(cfg)
	ok, err := stats.ShouldSend()
	if err != nil || !ok {
		t.Fatalf("expected ShouldSend true, got %v err=%v", ok, err)
	}
	stats.Sent = 10
	ok, err = stats.ShouldSend()
	if err != nil || ok {
		t.Fatalf("expected ShouldSend false once sent == total, got %v", ok)
	}
	if stats.IsComplete() {
		t.Fatalf("phase should not be complete before sending/end are both stamped")
	}
}

func TestCreditPhaseConfigRejectsBothCountAndDuration(t *testing.T) {
	total := int64(10)
	dur := 5.0
	cfg := CreditPhaseConfig{Type: CreditPhaseWarmup, TotalExpectedRequests: &total, ExpectedDurationSec: &dur}
	if cfg.IsValid() {
		t.Fatalf("expected config with both count and duration set to be invalid")
	}
}
