package collab

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"classhub/internal/ot"
)

// EncodeSteps serialises a step slice to gzip-compressed JSON, the format
// the document store persists.
func EncodeSteps(steps []ot.Step) ([]byte, error) {
	if len(steps) == 0 {
		steps = []ot.Step{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress steps: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress steps: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSteps reverses EncodeSteps. Client ids are preserved on each step.
func DecodeSteps(data []byte) ([]ot.Step, error) {
	if len(data) == 0 {
		return nil, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress steps: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress steps: %w", err)
	}
	var steps []ot.Step
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	return steps, nil
}
