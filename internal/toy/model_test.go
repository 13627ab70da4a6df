package toy

import (
	"context"
	"testing"

	"github.com/DePasqualeOrg/mlx-vlm/internal/cache"
	"github.com/DePasqualeOrg/mlx-vlm/internal/model"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tensor"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tokenizer"
)

func newCausal(t *testing.T) *LM {
	t.Helper()
	return New(16, 8, 2, 2, 1, model.Capabilities{CacheKind: cache.KindCausal})
}

func TestForwardDeterministic(t *testing.T) {
	in := model.Inputs{InputIDs: []int{1, 2, 3}}
	a := newCausal(t)
	b := newCausal(t)
	outA, err := a.Forward(context.Background(), in, model.MakeCache(a))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	outB, err := b.Forward(context.Background(), in, model.MakeCache(b))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(outA.Logits) != 16 {
		t.Fatalf("logits length = %d, want vocab size 16", len(outA.Logits))
	}
	for i := range outA.Logits {
		if outA.Logits[i] != outB.Logits[i] {
			t.Fatalf("same-seed models diverged at logit %d", i)
		}
	}
}

func TestForwardWritesAllPromptPositions(t *testing.T) {
	m := newCausal(t)
	caches := model.MakeCache(m)
	in := model.Inputs{InputIDs: []int{4, 5, 6, 7}}
	if _, err := m.Forward(context.Background(), in, caches); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(caches) != m.NumLayers() {
		t.Fatalf("cache layers = %d, want %d", len(caches), m.NumLayers())
	}
	for i, c := range caches {
		if c.Len() != len(in.InputIDs) {
			t.Fatalf("layer %d cached %d positions, want %d", i, c.Len(), len(in.InputIDs))
		}
	}

	if _, err := m.Step(context.Background(), model.Step{Token: 3}, caches); err != nil {
		t.Fatalf("Step: %v", err)
	}
	for i, c := range caches {
		if c.Len() != len(in.InputIDs)+1 {
			t.Fatalf("layer %d cached %d positions after step, want %d", i, c.Len(), len(in.InputIDs)+1)
		}
	}
}

func TestForwardEmptyPrompt(t *testing.T) {
	m := newCausal(t)
	if _, err := m.Forward(context.Background(), model.Inputs{}, model.MakeCache(m)); err == nil {
		t.Fatal("expected error for empty input ids")
	}
}

func TestMultimodalInputsShiftLogits(t *testing.T) {
	in := model.Inputs{InputIDs: []int{1, 2}}
	plain := newCausal(t)
	outPlain, err := plain.Forward(context.Background(), in, model.MakeCache(plain))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	withImage := newCausal(t)
	pixels := tensor.New(1, 2, 2)
	tensor.FillRand(pixels, 9)
	inImg := in
	inImg.PixelValues = pixels
	outImg, err := withImage.Forward(context.Background(), inImg, model.MakeCache(withImage))
	if err != nil {
		t.Fatalf("Forward with pixels: %v", err)
	}
	same := true
	for i := range outPlain.Logits {
		if outPlain.Logits[i] != outImg.Logits[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("pixel values had no effect on logits")
	}
}

func TestCrossAttentionConvention(t *testing.T) {
	m := New(16, 8, 1, 2, 1, model.Capabilities{CacheKind: cache.KindCausal, HasCrossAttention: true})
	caches := model.MakeCache(m)
	out, err := m.Forward(context.Background(), model.Inputs{InputIDs: []int{1}}, caches)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if out.CrossAttentionStates == nil {
		t.Fatal("prefill produced no cross-attention states")
	}
	if _, err := m.Step(context.Background(), model.Step{Token: 2}, caches); err == nil {
		t.Fatal("expected error for step without cross-attention states")
	}
	if _, err := m.Step(context.Background(), model.Step{Token: 2, CrossAttentionStates: out.CrossAttentionStates}, caches); err != nil {
		t.Fatalf("Step with states: %v", err)
	}
}

func TestEncoderDecoderConvention(t *testing.T) {
	m := New(16, 8, 1, 2, 1, model.Capabilities{CacheKind: cache.KindSimple, IsEncoderDecoder: true})
	caches := model.MakeCache(m)
	if _, ok := caches[0].(*cache.Simple); !ok {
		t.Fatalf("cache type %T, want *cache.Simple", caches[0])
	}
	out, err := m.Forward(context.Background(), model.Inputs{InputIDs: []int{1, 2}}, caches)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if out.EncoderOutputs == nil {
		t.Fatal("prefill produced no encoder outputs")
	}
	if _, err := m.Step(context.Background(), model.Step{Token: 2, EncoderOutputs: out.EncoderOutputs}, caches); err == nil {
		t.Fatal("expected error for step without decoder input ids")
	}
	step := model.Step{DecoderInputIDs: []int{3}, EncoderOutputs: out.EncoderOutputs}
	if _, err := m.Step(context.Background(), step, caches); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func TestFailAtStep(t *testing.T) {
	m := newCausal(t)
	m.FailAtStep = 2
	caches := model.MakeCache(m)
	if _, err := m.Forward(context.Background(), model.Inputs{InputIDs: []int{1}}, caches); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if _, err := m.Step(context.Background(), model.Step{Token: 1}, caches); err != nil {
		t.Fatalf("step 1 should succeed: %v", err)
	}
	if _, err := m.Step(context.Background(), model.Step{Token: 1}, caches); err == nil {
		t.Fatal("step 2 should fail")
	}
}

func TestVocabFileLoads(t *testing.T) {
	v, err := tokenizer.NewVocab(Vocab())
	if err != nil {
		t.Fatalf("NewVocab: %v", err)
	}
	if len(v.EOSTokenIDs()) == 0 {
		t.Fatal("built-in vocabulary has no EOS token")
	}
	ids, err := v.Encode("the cat runs")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("built-in vocabulary failed to encode plain text")
	}
}
