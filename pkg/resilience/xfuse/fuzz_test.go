package xfuse

import (
	"testing"
	"time"
)

// FuzzDefaultKeyFunc 模糊测试默认缓存键推导
func FuzzDefaultKeyFunc(f *testing.F) {
	// 添加种子语料
	f.Add("", int64(0))
	f.Add("user", int64(42))
	f.Add("带中文的键", int64(-1))
	f.Add("a\x00b", int64(1<<62))

	f.Fuzz(func(t *testing.T, s string, n int64) {
		k1, err := DefaultKeyFunc(s, n)
		if err != nil {
			t.Fatalf("serializable args must not fail: %v", err)
		}
		if k1 == "" {
			t.Fatal("key must not be empty")
		}

		// 相同参数必须得到相同的键
		k2, err := DefaultKeyFunc(s, n)
		if err != nil {
			t.Fatalf("second derivation failed: %v", err)
		}
		if k1 != k2 {
			t.Errorf("key not stable: %q vs %q", k1, k2)
		}
	})
}

// FuzzPercentileOf 模糊测试最近秩分位数
func FuzzPercentileOf(f *testing.F) {
	// 添加种子语料
	f.Add(0.5, int64(1), int64(2), int64(3))
	f.Add(0.0, int64(0), int64(0), int64(0))
	f.Add(1.0, int64(100), int64(1), int64(50))
	f.Add(-0.5, int64(5), int64(5), int64(5))
	f.Add(1.5, int64(7), int64(8), int64(9))

	f.Fuzz(func(t *testing.T, p float64, a, b, c int64) {
		samples := []time.Duration{
			time.Duration(a), time.Duration(b), time.Duration(c),
		}
		// percentileOf 要求升序输入
		if samples[0] > samples[1] {
			samples[0], samples[1] = samples[1], samples[0]
		}
		if samples[1] > samples[2] {
			samples[1], samples[2] = samples[2], samples[1]
		}
		if samples[0] > samples[1] {
			samples[0], samples[1] = samples[1], samples[0]
		}

		got := percentileOf(samples, p)

		// 任意 p 值下结果必须落在样本范围内
		if got < samples[0] || got > samples[2] {
			t.Errorf("percentile %v out of range: got %v, samples %v", p, got, samples)
		}
	})
}

// FuzzLoadConfig 模糊测试配置加载不会 panic
func FuzzLoadConfig(f *testing.F) {
	// 添加种子语料
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"default": {"timeout": "3s"}}`))
	f.Add([]byte(`default: {timeout: 2s}`))
	f.Add([]byte(`:[`))
	f.Add([]byte(``))

	f.Fuzz(func(t *testing.T, data []byte) {
		// 不校验结果，只要求任意输入都不 panic 且错误可判别
		cfg, err := LoadConfig(data, FormatYAML)
		if err == nil {
			if validateErr := cfg.Validate(); validateErr != nil {
				t.Errorf("LoadConfig returned invalid config without error: %v", validateErr)
			}
		}
		_, _ = LoadConfig(data, FormatJSON)
	})
}
