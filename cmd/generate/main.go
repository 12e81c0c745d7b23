package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/generator"
	"github.com/timmy/csvgen/internal/logger"
	"github.com/timmy/csvgen/internal/merge"
	"github.com/timmy/csvgen/internal/planner"
	"github.com/timmy/csvgen/internal/pool"
	"github.com/timmy/csvgen/internal/progress"
	"github.com/timmy/csvgen/internal/service"
)

// parseFields turns "id:id,email:email,note" into columns; a missing kind means the name is the kind.
func parseFields(list string) []domain.Column {
	var cols []domain.Column
	for i, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, kind, ok := strings.Cut(part, ":")
		if !ok {
			kind = name
		}
		cols = append(cols, domain.Column{Name: name, Kind: kind, Order: i})
	}
	return cols
}

func main() {
	fields := flag.String("fields", "id:id,username:username,email:email,status:status,score:score,created_date:created_date", "Comma separated name:kind list")
	rows := flag.Int("rows", 1000, "Number of rows to generate")
	workers := flag.Int("workers", 0, "Execution units (0 = number of CPUs)")
	chunkSize := flag.Int("chunk-size", planner.DefaultMaxChunkSize, "Maximum rows per chunk")
	outDir := flag.String("out", "./generated", "Output directory")
	tempDir := flag.String("temp", "./temp", "Directory for chunk segments")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	appLogger := logger.New(&logger.Config{
		Level:       *logLevel,
		Format:      "text",
		ServiceName: "csvgen-generate",
	})
	logger.SetDefaultLogger(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := generator.NewRegistry(time.Now())
	executor, err := service.NewChunkExecutor(registry, *tempDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize chunk executor")
	}
	workerPool := pool.New(*workers, executor, appLogger)
	defer workerPool.Close()

	merger, err := merge.NewEngine(*outDir, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize merge engine")
	}

	broadcaster := progress.NewBroadcaster(1024, appLogger)
	defer broadcaster.Close()
	sub := broadcaster.Subscribe()

	svc := service.NewGenerationService(workerPool, merger, broadcaster, nil, nil, appLogger, &service.GenerationConfig{
		MaxChunkSize:    *chunkSize,
		DownloadBaseURL: "file://" + *outDir,
	})

	jobID, err := svc.Submit(ctx, service.SubmitRequest{Columns: parseFields(*fields), RowCount: *rows})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
		os.Exit(2)
	}

	go func() {
		for ev := range sub.C {
			fmt.Fprintf(os.Stderr, "[%3d%%] %-12s %s\n", ev.Progress, ev.Status, ev.Message)
		}
	}()

	job, err := svc.Wait(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interrupted: %v\n", err)
		os.Exit(130)
	}
	broadcaster.Unsubscribe(sub.ID)

	if job.Status == domain.JobStatusFailed {
		fmt.Fprintf(os.Stderr, "generation failed: %s\n", job.Error)
		os.Exit(1)
	}
	fmt.Printf("%s\t%d rows\t%s\t%dms\n", merger.ArtifactPath(jobID), job.RowCount, job.FileSizeHuman, job.ProcessingTimeMs())
}
