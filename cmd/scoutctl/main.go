// Package main implements scoutctl, a small CLI that submits a search and
// polls the job to completion.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/eventscout/eventscout/internal/poll"
	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/search"
)

type statusBody struct {
	Status string        `json:"status"`
	Events []scout.Event `json:"events"`
	Total  *int          `json:"total"`
	Error  string        `json:"error"`
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Service base URL")
	query := flag.String("query", "", "Search query (required)")
	city := flag.String("city", "", "City filter")
	platforms := flag.String("platforms", "", "Comma-separated platform list")
	interval := flag.Duration("interval", 3*time.Second, "Poll interval")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: scoutctl -query <text> [-city ...] [-platforms ...]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *addr, *query, *city, *platforms, *interval); err != nil {
		fmt.Fprintf(os.Stderr, "scoutctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, query, city, platforms string, interval time.Duration) error {
	client := &http.Client{Timeout: 30 * time.Second}

	req := search.Request{Query: query, City: city}
	if platforms != "" {
		req.Platforms = strings.Split(platforms, ",")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/v1/search", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Println("inline results:")
		return printJSON(body)
	case http.StatusAccepted:
		var accepted struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal(body, &accepted); err != nil {
			return fmt.Errorf("decode accepted response: %w", err)
		}
		fmt.Printf("job %s running, polling every %s\n", accepted.JobID, interval)
		return pollJob(ctx, client, addr, accepted.JobID, interval)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited, retry after %s seconds", resp.Header.Get("Retry-After"))
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func pollJob(ctx context.Context, client *http.Client, addr, jobID string, interval time.Duration) error {
	var last statusBody

	check := func(ctx context.Context) (scout.JobRecord, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/v1/jobs/%s/status", addr, jobID), nil)
		if err != nil {
			return scout.JobRecord{}, err
		}
		resp, err := client.Do(httpReq)
		if err != nil {
			return scout.JobRecord{}, err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return scout.JobRecord{}, fmt.Errorf("status check returned %d", resp.StatusCode)
		}
		var body statusBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return scout.JobRecord{}, fmt.Errorf("decode status: %w", err)
		}
		last = body

		job := scout.JobRecord{ID: jobID, Status: scout.JobStatus(body.Status), ErrorText: body.Error}
		if body.Total != nil {
			job.EventsScraped = *body.Total
		}
		return job, nil
	}

	poller := poll.New(check, poll.Options{Interval: interval}, nil)
	job, err := poller.Wait(ctx)
	if err != nil {
		return fmt.Errorf("poll job: %w", err)
	}

	if job.Status == scout.JobStatusFailed {
		return fmt.Errorf("job failed: %s", job.ErrorText)
	}
	fmt.Printf("job completed with %d events:\n", job.EventsScraped)
	data, err := json.Marshal(last.Events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	return printJSON(data)
}

func printJSON(data []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(out.String())
	return nil
}
