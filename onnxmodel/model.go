// Package onnxmodel runs a causal language model exported to ONNX as
// the model collaborator of a seqgen.Generator.
package onnxmodel

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"seqgen-go/seqgen"
	"seqgen-go/tensor"
)

// Model wraps an ONNX Runtime session over a causal LM graph with
// "input_ids" and "attention_mask" inputs and a "logits" output shaped
// [rows, seq, vocab]. The full token matrix is fed on every call and
// the logits of the last position are returned, so no incremental state
// is threaded between calls (Forward returns a nil state).
type Model struct {
	session   *ort.DynamicAdvancedSession
	vocabSize int
}

// New loads the ONNX model at modelPath. vocabSize must match the last
// axis of the graph's logits output.
func New(modelPath string, vocabSize int) (*Model, error) {
	if vocabSize < 1 {
		return nil, fmt.Errorf("vocab size must be >= 1, got %d", vocabSize)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(4); err != nil {
		return nil, fmt.Errorf("set session threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_ids", "attention_mask"}, []string{"logits"}, opts)
	if err != nil {
		return nil, fmt.Errorf("load onnx model: %w", err)
	}

	return &Model{session: session, vocabSize: vocabSize}, nil
}

// Close releases the session.
func (m *Model) Close() error {
	return m.session.Destroy()
}

// Forward runs the model over the batch and returns the logits of the
// last position of every row.
func (m *Model) Forward(tokenIDs [][]int, attentionMask [][]int, _ seqgen.State) (*tensor.Tensor, seqgen.State, error) {
	rows := len(tokenIDs)
	if rows == 0 {
		return nil, nil, fmt.Errorf("empty batch")
	}
	cols := len(tokenIDs[0])

	idsData := make([]int64, 0, rows*cols)
	maskData := make([]int64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		if len(tokenIDs[r]) != cols || len(attentionMask[r]) != cols {
			return nil, nil, fmt.Errorf("ragged batch: row %d has %d tokens and %d mask entries, want %d",
				r, len(tokenIDs[r]), len(attentionMask[r]), cols)
		}
		for c := 0; c < cols; c++ {
			idsData = append(idsData, int64(tokenIDs[r][c]))
			maskData = append(maskData, int64(attentionMask[r][c]))
		}
	}

	inShape := ort.NewShape(int64(rows), int64(cols))
	idsTensor, err := ort.NewTensor(inShape, idsData)
	if err != nil {
		return nil, nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(inShape, maskData)
	if err != nil {
		return nil, nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outShape := ort.NewShape(int64(rows), int64(cols), int64(m.vocabSize))
	outTensor, err := ort.NewTensor(outShape, make([]float32, rows*cols*m.vocabSize))
	if err != nil {
		return nil, nil, fmt.Errorf("create logits tensor: %w", err)
	}
	defer outTensor.Destroy()

	if err := m.session.Run(
		[]ort.Value{idsTensor, maskTensor},
		[]ort.Value{outTensor},
	); err != nil {
		return nil, nil, fmt.Errorf("run onnx session: %w", err)
	}

	// Keep only the last position's logits per row.
	logits := tensor.NewTensor(rows, m.vocabSize)
	data := outTensor.GetData()
	for r := 0; r < rows; r++ {
		src := (r*cols + cols - 1) * m.vocabSize
		copy(logits.Data[r*m.vocabSize:(r+1)*m.vocabSize], data[src:src+m.vocabSize])
	}

	return logits, nil, nil
}
