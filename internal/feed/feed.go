// Package feed reads source rows from files. Supported inputs are a JSON
// array of objects, newline-delimited JSON objects, and CSV with a header row.
package feed

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadFile loads rows from path, picking the format from the extension
// (.csv reads as CSV, everything else as JSON).
func ReadFile(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening source file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadCSV(f)
	}
	return ReadJSON(f)
}

// ReadJSON reads rows from either a JSON array of objects or one JSON object
// per line. The first non-space byte decides which.
func ReadJSON(r io.Reader) ([]map[string]any, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading source: %w", err)
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return nil, err
		}
		if b == '[' {
			return readJSONArray(br)
		}
		return readNDJSON(br)
	}
}

func readJSONArray(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("parsing JSON array: %w", err)
	}
	return numbersToAny(rows), nil
}

func readNDJSON(r io.Reader) ([]map[string]any, error) {
	var rows []map[string]any
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var row map[string]any
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("parsing JSON on line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	return numbersToAny(rows), nil
}

// numbersToAny rewrites json.Number values as strings. The coercion layer
// parses strings into destination types itself, and string form keeps full
// precision where float64 would not.
func numbersToAny(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		for k, v := range row {
			if n, ok := v.(json.Number); ok {
				row[k] = n.String()
			}
		}
	}
	return rows
}

// ReadCSV reads rows from CSV. The first record is the header; every value
// arrives as a string and the coercion layer handles typing. An empty cell
// reads as an empty string, not an absent field.
func ReadCSV(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]any
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
