package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"open-dio/models"
)

// requestEntry mirrors the wire form {code, amount}. Amount is decoded
// separately so that a missing or non-numeric amount reaches the calculator
// as an invalid entry instead of failing the whole request.
type requestEntry struct {
	Code   string          `json:"code"`
	Amount json.RawMessage `json:"amount"`
}

// ReadSpendingRequest decodes a calculation request: either a bare array of
// {code, amount} or an object with a "sectors" array.
func ReadSpendingRequest(r io.Reader) ([]models.SpendingInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: read request: %w", err)
	}
	data = bytes.TrimSpace(data)

	var entries []requestEntry
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Sectors []requestEntry `json:"sectors"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("loader: decode request: %w", err)
		}
		entries = wrapped.Sectors
	} else if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("loader: decode request: %w", err)
	}

	inputs := make([]models.SpendingInput, len(entries))
	for i, e := range entries {
		amount := math.NaN()
		var f float64
		if len(e.Amount) > 0 && json.Unmarshal(e.Amount, &f) == nil {
			amount = f
		}
		inputs[i] = models.SpendingInput{Code: e.Code, Amount: amount}
	}
	return inputs, nil
}

// LoadSpendingRequest reads a request file; "-" reads stdin.
func LoadSpendingRequest(path string) ([]models.SpendingInput, error) {
	if path == "-" {
		return ReadSpendingRequest(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %q: %w", path, err)
	}
	defer f.Close()
	return ReadSpendingRequest(f)
}
