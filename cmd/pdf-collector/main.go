package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/assembler"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/collector"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/config"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/database"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/event"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/gateway"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/server"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/staging"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/utils"
	"github.com/spf13/pflag"
)

// exit logs a fatal error, runs the registered cleaners and terminates.
func exit(cleaner *event.Cleaner, msg string, err error) {
	logger.FatalF(msg, err)
	_ = cleaner.Clean()
	os.Exit(1)
}

func main() {
	configPath := pflag.StringP("config", "c", "config.json", "path of the JSON configuration file")
	pflag.Parse()

	c, err := config.ReadConfig(*configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigCreated) {
			fmt.Fprintf(os.Stderr, "%v (%s)\n", err, *configPath)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error occured while reading config %v\n", err)
		os.Exit(1)
	}

	loggerCallback := logger.Init(c.LogPath, c.DebugMode)
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	store, err := staging.NewStore(c.StagingRoot)
	if err != nil {
		exit(cleaner, "Error occured while preparing staging root, details: %v", err)
	}
	cleaner.Add(event.CallableFunc(func(context.Context) error {
		return store.Close()
	}))
	swept, err := store.Sweep()
	if err != nil {
		logger.WarnF("Fail to sweep staging root %s, details: %v", store.Root(), err)
	} else if swept > 0 {
		logger.InfoF("Removed %d staging directories left by a previous run", swept)
	}

	ledger, err := database.OpenDocumentStore(c)
	if err != nil {
		exit(cleaner, "Error occured while initializing database, details: %v", err)
	}

	uploader, err := gateway.NewClient(c.Gateway.BaseURL, c.Gateway.UploadPath, c.Gateway.Token,
		utils.ParseStringTime(c.Gateway.Timeout, time.Minute))
	if err != nil {
		exit(cleaner, "Error occured while initializing gateway client, details: %v", err)
	}
	logger.InfoF("Documents are uploaded to %s", uploader.Endpoint())

	handler, err := collector.NewHandler(collector.Options{
		Store:            store,
		Assembler:        assembler.New(c.AppName),
		Uploader:         uploader,
		Ledger:           ledger,
		InitialReadLimit: c.InitialFrameLimit,
		JoinedReadLimit:  c.JoinedFrameLimit,
	})
	if err != nil {
		exit(cleaner, "Error occured while initializing collector, details: %v", err)
	}

	srv := server.NewServer(c, handler)
	cleaner.Add(srv)

	if err := srv.Start(); err != nil {
		exit(cleaner, "PDF Collector Server Start error: %v", err)
	}
	<-cleaner.Done()
}
