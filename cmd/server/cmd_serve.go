package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-api/internal/capture"
	"github.com/Brownie44l1/plant-api/internal/handlers"
	"github.com/Brownie44l1/plant-api/internal/hub"
	"github.com/Brownie44l1/plant-api/internal/log"
	"github.com/Brownie44l1/plant-api/internal/model"
	"github.com/Brownie44l1/plant-api/internal/session"
	"github.com/Brownie44l1/plant-api/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, stdout, stderr)
		},
	}
	addModelFlags(cmd)
	addCameraFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := log.Init(stderr, cfg.LogLevel)

	kb, err := loadKnowledge(cfg)
	if err != nil {
		return err
	}
	opener, err := capture.NewOpener(cfg.Camera)
	if err != nil {
		return err
	}

	h := hub.New(logger)
	pub := handlers.NewPublisher(h, logger)
	sess, err := session.New(session.Options{
		Loader: model.ONNXLoader{
			ModelPath:    cfg.ModelPath(),
			MetadataPath: cfg.MetadataPath(),
			LibraryPath:  cfg.ORTLibrary,
		},
		OpenCamera: opener,
		Knowledge:  kb,
		Sink:       pub,
		FPS:        cfg.Camera.FPS,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer sess.Dispose()
	pub.Watch(sess)

	api := handlers.NewHandler(sess, kb, logger)
	api.SetNotifier(pub)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(web.Static(), h.ServeWSHandler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load eagerly so the first page visit finds the model ready. A failure
	// is logged and retried on the first request that needs the model.
	go func() {
		if err := sess.LoadModel(ctx); err != nil {
			logger.Warn("model not loaded at startup", "error", hintWrap(err, cfg))
		}
		pub.PublishStatus(sess.Status())
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server starting",
		"addr", cfg.Addr(), "model", cfg.ModelPath(), "camera", cfg.Camera.Device,
		"backend", cfg.Camera.Backend, "fps", cfg.Camera.FPS, "diseases", kb.Len())
	fmt.Fprintf(stdout, "Plant disease detector listening on http://localhost%s\n", cfg.Addr())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
