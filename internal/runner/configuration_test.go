package runner_test

import (
	"testing"

	"github.com/signalnine/motifsweep/internal/runner"
)

func TestEnumerateOrder(t *testing.T) {
	configs := runner.Enumerate([]string{"cnn-deep", "cnn-2"}, []string{"relu", "exponential"}, nil, 2)
	if len(configs) != 8 {
		t.Fatalf("got %d configurations, want 8", len(configs))
	}
	want := []string{
		"cnn-deep_relu_0", "cnn-deep_relu_1",
		"cnn-deep_exponential_0", "cnn-deep_exponential_1",
		"cnn-2_relu_0", "cnn-2_relu_1",
		"cnn-2_exponential_0", "cnn-2_exponential_1",
	}
	for i, c := range configs {
		if c.Name() != want[i] {
			t.Errorf("configs[%d] = %s, want %s", i, c.Name(), want[i])
		}
	}
}

func TestEnumerateScales(t *testing.T) {
	configs := runner.Enumerate([]string{"cnn-deep"}, nil, []float64{0.001, 1, 0.5}, 1)
	want := []string{"cnn-deep_0.001", "cnn-deep_1", "cnn-deep_0.5"}
	if len(configs) != len(want) {
		t.Fatalf("got %d configurations", len(configs))
	}
	for i, c := range configs {
		if c.BaseName() != want[i] {
			t.Errorf("BaseName = %s, want %s", c.BaseName(), want[i])
		}
		if p := c.ScalePtr(); p == nil || *p != c.Scale {
			t.Errorf("ScalePtr = %v", p)
		}
	}
}

func TestEnumerateModelsOnly(t *testing.T) {
	configs := runner.Enumerate([]string{"cnn-50"}, nil, nil, 3)
	if len(configs) != 3 || configs[2].Name() != "cnn-50_2" || configs[0].ScalePtr() != nil {
		t.Errorf("got %+v", configs)
	}
}

func TestFilterAndBases(t *testing.T) {
	configs := runner.Enumerate([]string{"cnn-deep", "cnn-2"}, []string{"relu", "tanh"}, nil, 3)
	got := runner.Filter(configs, "cnn-2", "")
	if len(got) != 6 {
		t.Errorf("model filter: got %d", len(got))
	}
	got = runner.Filter(configs, "", "tanh")
	order, counts := runner.Bases(got)
	if len(order) != 2 || order[0] != "cnn-deep_tanh" || order[1] != "cnn-2_tanh" {
		t.Errorf("bases: got %v", order)
	}
	if counts["cnn-2_tanh"] != 3 {
		t.Errorf("counts: got %v", counts)
	}
}
