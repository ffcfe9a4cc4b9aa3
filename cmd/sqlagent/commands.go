package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/api"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/database"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/schema"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	question    string
	showSteps   bool
	askTimeout  time.Duration
	seedMembers int
	seedSeed    uint64
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer one question and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := strings.TrimSpace(question)
		if q == "" && len(args) > 0 {
			q = strings.TrimSpace(strings.Join(args, " "))
		}
		if q == "" {
			return errors.New("a question is required (-q)")
		}

		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if askTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, askTimeout)
			defer cancel()
		}

		a, err := newApp(ctx, cfg, apiKey, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.Run(ctx, q)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if showSteps {
			for i, st := range res.Steps {
				fmt.Fprintf(out, "[%d] %s(%s)\n%s\n\n", i+1, st.Tool, st.Input, st.Observation)
			}
		}
		fmt.Fprintln(out, res.Answer)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, apiKey, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		deps := api.Deps{
			Agent:     a.engine,
			Database:  a.db,
			Searcher:  a.retriever,
			SQL:       a.sql,
			Tools:     a.tools,
			Providers: a.router,
		}
		if a.history != nil {
			deps.History = a.history
		}
		handler := api.NewHandler(deps, askTimeout, logger)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: handler.Router(),
		}
		errc := make(chan error, 1)
		go func() {
			logger.Info("SQL agent listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-errc:
			return fmt.Errorf("server: %w", err)
		case <-quit:
		}

		logger.Info("Shutting down SQL agent...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the sample tables and load generated rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()
		ctx := cmd.Context()

		db, err := database.Open(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		opts := seed.DefaultOptions()
		if seedMembers > 0 {
			opts.Members = seedMembers
		}
		if seedSeed != 0 {
			opts.Seed = seedSeed
		}
		ds := seed.Generate(opts)
		if err := seed.Load(ctx, db.SQL(), db.Dialect(), ds, logger); err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "loaded %d members, %d items, %d campaigns, %d transactions\n",
			len(ds.Members), len(ds.Items), len(ds.Campaigns), len(ds.Transactions))
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the schema catalog into the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		a := &app{cfg: cfg, logger: logger}
		defer a.Close()

		if err := a.openRetriever(); err != nil {
			return err
		}
		docs := schema.NewCatalog().Documents()
		if err := a.retriever.Index(cmd.Context(), docs); err != nil {
			return fmt.Errorf("index schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d schema documents\n", len(docs))
		return nil
	},
}

func init() {
	askCmd.Flags().StringVarP(&question, "question", "q", "", "question to answer")
	askCmd.Flags().BoolVar(&showSteps, "steps", false, "print intermediate tool calls")
	for _, c := range []*cobra.Command{askCmd, serveCmd} {
		c.Flags().DurationVar(&askTimeout, "timeout", 0, "bound on a single question, 0 for none")
	}
	seedCmd.Flags().IntVar(&seedMembers, "members", 0, "number of members to generate")
	seedCmd.Flags().Uint64Var(&seedSeed, "seed", 0, "random seed for generated rows")
}
