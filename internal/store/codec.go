package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"

	"neoalexandria/internal/core"
)

// serializeEmbedding packs a dense vector into a compact binary blob, the
// way the teacher's store.go does for sqlite BLOB columns, so we don't pay
// JSON overhead on the hot embedding-read path.
func serializeEmbedding(embedding []float64) ([]byte, error) {
	if embedding == nil {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, int32(len(embedding))); err != nil {
		return nil, err
	}
	for _, v := range embedding {
		if err := binary.Write(buf, binary.LittleEndian, math.Float64bits(v)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func deserializeEmbedding(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	buf := bytes.NewReader(data)
	var n int32
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		var bits uint64
		if err := binary.Read(buf, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		out[i] = math.Float64frombits(bits)
	}
	return out, nil
}

func marshalStringSlice(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStringSlice(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalSparseEmbedding(m map[int]float64) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalSparseEmbedding(s string) (map[int]float64, error) {
	if s == "" {
		return nil, nil
	}
	out := map[int]float64{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalScholarly(m *core.ScholarlyMetadata) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalScholarly(s string) (*core.ScholarlyMetadata, error) {
	if s == "" {
		return nil, nil
	}
	var out core.ScholarlyMetadata
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
