package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tierboard/internal/domain"
)

type importKind int

const (
	kindPlacements importKind = iota
	kindPlayers
)

// importBatch is a parsed file. fileLines maps batch position to the
// line number in the source file.
type importBatch struct {
	kind          importKind
	placements    []domain.PlacementSubmission
	registrations []domain.RegistrationSubmission
	fileLines     []int
	rejected      []string
}

func (b *importBatch) len() int {
	return len(b.fileLines)
}

// fileLine converts a 1-based batch line into the source file line
func (b *importBatch) fileLine(batchLine int) int {
	if batchLine < 1 || batchLine > len(b.fileLines) {
		return batchLine
	}
	return b.fileLines[batchLine-1]
}

// parseImport splits r into batch entries. Blank lines and lines starting
// with # are skipped. Lines with the wrong column count are rejected here;
// every other check is left to the server.
func parseImport(r io.Reader, kind importKind) (*importBatch, error) {
	batch := &importBatch{kind: kind}
	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, ",")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}

		switch kind {
		case kindPlayers:
			if len(cols) > 2 {
				batch.rejected = append(batch.rejected, fmt.Sprintf("%d: expected name[,secondaryName], got %d columns", n, len(cols)))
				continue
			}
			reg := domain.RegistrationSubmission{IGN: cols[0]}
			if len(cols) == 2 {
				reg.DisplayName = cols[1]
			}
			batch.registrations = append(batch.registrations, reg)
		default:
			if len(cols) < 3 || len(cols) > 4 {
				batch.rejected = append(batch.rejected, fmt.Sprintf("%d: expected name,gamemode,tier[,region], got %d columns", n, len(cols)))
				continue
			}
			sub := domain.PlacementSubmission{IGN: cols[0], Gamemode: cols[1], Tier: cols[2]}
			if len(cols) == 4 {
				sub.Region = cols[3]
			}
			batch.placements = append(batch.placements, sub)
		}
		batch.fileLines = append(batch.fileLines, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}

type apiResponse struct {
	Success bool               `json:"success"`
	Data    domain.BatchResult `json:"data"`
	Error   string             `json:"error"`
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// submit posts the batch to the matching admin route
func (c *apiClient) submit(ctx context.Context, batch *importBatch) (*domain.BatchResult, error) {
	path := "/api/v1/placements/batch"
	var body interface{} = domain.BatchPlacementSubmission{Entries: batch.placements}
	if batch.kind == kindPlayers {
		path = "/api/v1/players/batch"
		body = domain.BatchRegistration{Entries: batch.registrations}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting batch: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("server rejected batch (status %d): %s", resp.StatusCode, out.Error)
	}
	return &out.Data, nil
}
