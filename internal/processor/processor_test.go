package processor

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
	"github.com/DePasqualeOrg/mlx-vlm/internal/model"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tensor"
	"github.com/DePasqualeOrg/mlx-vlm/internal/tokenizer"
)

func testHandle(t *testing.T) tokenizer.Handle {
	t.Helper()
	v, err := tokenizer.NewVocab(tokenizer.VocabFile{
		Tokens:        []string{"<s>", "</s>", "hi", " there"},
		SpecialTokens: []string{"<s>", "</s>"},
		EOSTokens:     []string{"</s>"},
	})
	if err != nil {
		t.Fatalf("NewVocab: %v", err)
	}
	return v
}

func TestTextProcess(t *testing.T) {
	p := NewText(testHandle(t))
	in, err := p.Process(Request{Prompt: "hi there"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(in.InputIDs) != 2 {
		t.Fatalf("InputIDs = %v, want 2 ids", in.InputIDs)
	}
	if len(in.Mask) != len(in.InputIDs) {
		t.Fatalf("mask length %d != ids length %d", len(in.Mask), len(in.InputIDs))
	}
	for _, m := range in.Mask {
		if m != 1 {
			t.Fatalf("mask = %v, want all ones", in.Mask)
		}
	}
}

func TestTextProcessEmptyPrompt(t *testing.T) {
	p := NewText(testHandle(t))
	if _, err := p.Process(Request{Prompt: ""}); err == nil {
		t.Fatal("expected error for prompt producing no tokens")
	}
}

func TestPrepareRejectsUnsupportedModalities(t *testing.T) {
	p := NewText(testHandle(t))
	img := tensor.New(1, 2, 2)

	_, err := Prepare(p, logger.Discard(), Request{Prompt: "hi", Images: []*tensor.Tensor{img}})
	if !errors.Is(err, ErrUnsupportedModality) {
		t.Fatalf("images: err = %v, want ErrUnsupportedModality", err)
	}
	_, err = Prepare(p, logger.Discard(), Request{Prompt: "hi", Audio: []*tensor.Tensor{img}})
	if !errors.Is(err, ErrUnsupportedModality) {
		t.Fatalf("audio: err = %v, want ErrUnsupportedModality", err)
	}
}

// fallbackProc fails in the native representation and succeeds in compat.
type fallbackProc struct {
	tok       tokenizer.Handle
	calls     []Representation
	compatErr error
}

func (f *fallbackProc) Tokenizer() tokenizer.Handle { return f.tok }

func (f *fallbackProc) Capabilities() Capabilities { return Capabilities{Images: true, Audio: true} }

func (f *fallbackProc) Process(req Request) (*model.Inputs, error) {
	f.calls = append(f.calls, req.Representation)
	if req.Representation != RepresentationCompat {
		return nil, fmt.Errorf("native layout rejected")
	}
	if f.compatErr != nil {
		return nil, f.compatErr
	}
	return &model.Inputs{InputIDs: []int{1}}, nil
}

func TestPrepareFallsBackOnce(t *testing.T) {
	p := &fallbackProc{tok: testHandle(t)}
	in, err := Prepare(p, logger.Discard(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if in == nil || len(in.InputIDs) != 1 {
		t.Fatalf("inputs = %+v", in)
	}
	if len(p.calls) != 2 || p.calls[0] != RepresentationNative || p.calls[1] != RepresentationCompat {
		t.Fatalf("calls = %v, want native then compat", p.calls)
	}
}

func TestPrepareDoubleFailureJoinsErrors(t *testing.T) {
	p := &fallbackProc{tok: testHandle(t), compatErr: fmt.Errorf("compat layout rejected")}
	_, err := Prepare(p, logger.Discard(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"native layout rejected", "compat layout rejected"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
	if len(p.calls) != 2 {
		t.Fatalf("processor called %d times, want exactly 2", len(p.calls))
	}
}

func TestPrepareExplicitCompatDoesNotRetry(t *testing.T) {
	p := &fallbackProc{tok: testHandle(t), compatErr: fmt.Errorf("compat layout rejected")}
	_, err := Prepare(p, logger.Discard(), Request{Prompt: "hi", Representation: RepresentationCompat})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(p.calls) != 1 {
		t.Fatalf("processor called %d times, want 1", len(p.calls))
	}
}

func TestPrepareTruncatesAudioToOne(t *testing.T) {
	p := &recordingProc{tok: testHandle(t)}
	audio := []*tensor.Tensor{tensor.New(1, 2), tensor.New(1, 2)}
	if _, err := Prepare(p, logger.Discard(), Request{Prompt: "hi", Audio: audio}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.audioSeen != 1 {
		t.Fatalf("processor saw %d audio inputs, want 1", p.audioSeen)
	}
}

type recordingProc struct {
	tok       tokenizer.Handle
	audioSeen int
}

func (r *recordingProc) Tokenizer() tokenizer.Handle { return r.tok }

func (r *recordingProc) Capabilities() Capabilities { return Capabilities{Audio: true} }

func (r *recordingProc) Process(req Request) (*model.Inputs, error) {
	r.audioSeen = len(req.Audio)
	return &model.Inputs{InputIDs: []int{1}}, nil
}
