package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/yungbote/verbatim-backend/internal/app"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

func main() {
	var projectRaw string
	flag.StringVar(&projectRaw, "project", "", "project_id to analyze")
	flag.Parse()

	projectID, err := uuid.Parse(strings.TrimSpace(projectRaw))
	if err != nil || projectID == uuid.Nil {
		fmt.Println("a valid -project id is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := logger.New("development")
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	cfg, err := app.LoadConfig(log)
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Pipeline.Synchronous = true

	a, err := app.NewWithConfig(ctx, log, cfg)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	progress, err := a.RunProject(ctx, projectID)
	if err != nil {
		fmt.Printf("analysis failed: %v\n", err)
		a.Close()
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(progress)
}
