package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/timmy/csvgen/internal/client"
	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
)

type result struct {
	job     *domain.Job
	err     error
	elapsed time.Duration
}

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "csvgen server URL")
	jobs := flag.Int("jobs", 10, "Number of jobs to submit")
	rows := flag.Int("rows", 50000, "Rows per job")
	concurrency := flag.Int("concurrency", 4, "Jobs in flight at once")
	poll := flag.Duration("poll", 250*time.Millisecond, "Status poll interval")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall timeout")
	flag.Parse()

	appLogger := logger.New(&logger.Config{Level: "info", Format: "text", ServiceName: "csvgen-bench"})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := client.New(*baseURL, 30*time.Second)
	fields := []domain.Column{
		{Name: "id", Kind: "id", Order: 0},
		{Name: "email", Kind: "email", Order: 1},
		{Name: "score", Kind: "score", Order: 2},
		{Name: "created_date", Kind: "created_date", Order: 3},
	}

	start := time.Now()
	results := make([]result, *jobs)
	sem := make(chan struct{}, max(*concurrency, 1))
	var wg sync.WaitGroup
	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			t0 := time.Now()
			id, err := c.Generate(ctx, fields, *rows)
			if err != nil {
				results[i] = result{err: err}
				return
			}
			job, err := c.WaitForJob(ctx, id, *poll)
			results[i] = result{job: job, err: err, elapsed: time.Since(t0)}
		}(i)
	}
	wg.Wait()
	total := time.Since(start)

	var completed, failed int
	var slowest time.Duration
	for _, r := range results {
		switch {
		case r.err != nil:
			failed++
			appLogger.WithError(r.err).Warn("Job did not finish")
		case r.job.Status == domain.JobStatusFailed:
			failed++
			appLogger.WithField(logger.FieldJobID, r.job.ID).Warnf("Job failed: %s", r.job.Error)
		default:
			completed++
			slowest = max(slowest, r.elapsed)
		}
	}

	if status, err := c.WorkerStatus(ctx); err == nil {
		appLogger.WithFields(logger.Fields{
			"pool_size": status.Size,
			"crashes":   status.Crashes,
			"completed": status.Completed,
		}).Info("Pool status after run")
	}

	rowsDone := completed * *rows
	fmt.Printf("jobs: %d completed, %d failed\n", completed, failed)
	fmt.Printf("wall: %s, slowest job: %s\n", total.Round(time.Millisecond), slowest.Round(time.Millisecond))
	fmt.Printf("throughput: %.0f rows/s\n", float64(rowsDone)/total.Seconds())
	if failed > 0 {
		os.Exit(1)
	}
}
