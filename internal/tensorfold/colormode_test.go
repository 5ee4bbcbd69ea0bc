package tensorfold

import "testing"

func TestColorForOffsetMultiChannelReadsAlphaByte(t *testing.T) {
	data := []byte{10, 20, 30, 40}
	r, g, b, a := colorForOffset(data, 0, ModeMultiChannel)
	if r != 10 || g != 20 || b != 30 || a != 40 {
		t.Fatalf("expected (10,20,30,40), got (%d,%d,%d,%d)", r, g, b, a)
	}
}

func TestColorForOffsetHeatmapSpansFullGradient(t *testing.T) {
	r0, g0, b0, _ := colorForOffset([]byte{0}, 0, ModeHeatmap)
	if r0 != 0 || g0 != 0 || b0 != 255 {
		t.Fatalf("expected pure blue at 0, got (%d,%d,%d)", r0, g0, b0)
	}
	r255, g255, b255, _ := colorForOffset([]byte{255}, 0, ModeHeatmap)
	if r255 != 255 || g255 != 0 || b255 != 0 {
		t.Fatalf("expected pure red at 255, got (%d,%d,%d)", r255, g255, b255)
	}
}

func TestColorForOffsetAttentionFlowRoutesAlphaFromMagnitude(t *testing.T) {
	_, _, _, aLow := colorForOffset([]byte{0}, 0, ModeAttentionFlow)
	_, _, _, aHigh := colorForOffset([]byte{255}, 0, ModeAttentionFlow)
	if aLow != 0 {
		t.Fatalf("expected alpha 0 for zero magnitude, got %d", aLow)
	}
	if aHigh != 255 {
		t.Fatalf("expected alpha 255 for max magnitude, got %d", aHigh)
	}
}

func TestColorForOffsetMemoryPatternSplitsWarmCool(t *testing.T) {
	rWarm, gWarm, bWarm, _ := colorForOffset([]byte{50}, 0, ModeMemoryPattern) // positive int8
	if !(rWarm == 255 && gWarm < 255 && bWarm < 255) {
		t.Fatalf("expected a warm (red-leaning) tint for positive byte, got (%d,%d,%d)", rWarm, gWarm, bWarm)
	}
	rCool, gCool, bCool, _ := colorForOffset([]byte{200}, 0, ModeMemoryPattern) // int8(200) == -56
	if !(bCool == 255 && rCool < 255 && gCool < 255) {
		t.Fatalf("expected a cool (blue-leaning) tint for negative byte, got (%d,%d,%d)", rCool, gCool, bCool)
	}
}

func TestAdjustRGBAppliesBrightnessAndContrast(t *testing.T) {
	r, g, b := adjustRGB(100, 100, 100, DefaultAdjustment())
	if r != 100 || g != 100 || b != 100 {
		t.Fatalf("expected no-op adjustment to pass through, got (%d,%d,%d)", r, g, b)
	}
	brighter, _, _ := adjustRGB(100, 100, 100, Adjustment{Brightness: 0.5, Contrast: 1})
	if brighter <= 100 {
		t.Fatalf("expected positive brightness to raise channel value, got %d", brighter)
	}
	r2, _, _ := adjustRGB(200, 200, 200, Adjustment{Brightness: 0, Contrast: 2})
	if r2 != 255 {
		t.Fatalf("expected high contrast to clamp bright channel to 255, got %d", r2)
	}
}
