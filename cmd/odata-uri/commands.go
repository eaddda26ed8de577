package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/api"
	grpcapi "github.com/lemonberrylabs/odata-uri-parser/pkg/api/grpc"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/store"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/uriparser"
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <uri>",
		Short: "Parse a request URI and print every clause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newURIParser(cmd, args[0])
			if err != nil {
				return reportError(cmd, err)
			}
			u, err := p.Parse()
			if err != nil {
				return reportError(cmd, err)
			}
			printClauses(cmd.OutOrStdout(), u.Clauses())
			return nil
		},
	}
	addModelFlags(cmd)
	return cmd
}

func newPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path <uri>",
		Short: "Resolve only the resource path of a request URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newURIParser(cmd, args[0])
			if err != nil {
				return reportError(cmd, err)
			}
			path, err := p.ParsePath()
			if err != nil {
				return reportError(cmd, err)
			}
			printSegments(cmd.OutOrStdout(), path)
			return nil
		},
	}
	addModelFlags(cmd)
	return cmd
}

func newFilterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter <expression>",
		Short: "Parse a $filter expression without a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyColor(cmd); err != nil {
				return err
			}
			s, err := loadSettings(cmd)
			if err != nil {
				return reportError(cmd, err)
			}
			logger, err := newLogger(cmd)
			if err != nil {
				return reportError(cmd, err)
			}
			tok, err := expr.ParseFilter(args[0],
				expr.WithMaxDepth(s.FilterLimit),
				expr.WithCaseInsensitive(s.CaseInsensitive),
				expr.WithLogger(logger))
			if err != nil {
				return reportError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), expr.Describe(tok))
			return nil
		},
	}
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC parse services",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	cmd.Flags().Int("port", 0, "HTTP server port (default 8080, env PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8081, env GRPC_PORT)")
	cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	cmd.Flags().String("models-dir", "", "Directory of YAML models to load at startup (env MODELS_DIR)")
	cmd.Flags().Bool("access-log", false, "Log every request to stderr")
	return cmd
}

func serve(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return reportError(cmd, err)
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return reportError(cmd, err)
	}

	port := envOrDefault("PORT", "8080")
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		port = fmt.Sprintf("%d", v)
	}
	grpcPort := envOrDefault("GRPC_PORT", "8081")
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		grpcPort = fmt.Sprintf("%d", v)
	}
	host := envOrDefault("HOST", "0.0.0.0")
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		host = v
	}
	modelsDir := os.Getenv("MODELS_DIR")
	if v, _ := cmd.Flags().GetString("models-dir"); v != "" {
		modelsDir = v
	}

	opts := []api.Option{api.WithSettings(s), api.WithLogger(logger)}
	if v, _ := cmd.Flags().GetBool("access-log"); v {
		opts = append(opts, api.WithAccessLog())
	}
	models := store.New()
	server := api.New(models, opts...)
	grpcServer := grpcapi.New(models, grpcapi.WithSettings(s), grpcapi.WithLogger(logger))

	if modelsDir != "" {
		if _, err := server.LoadDir(modelsDir); err != nil {
			logger.Warn("failed to load models directory", "dir", modelsDir, "error", err)
		}
	}

	grpcAddr := fmt.Sprintf("%s:%s", host, grpcPort)
	go func() {
		logger.Info("grpc server listening", "addr", grpcAddr)
		if err := grpcServer.Serve(grpcAddr); err != nil {
			logger.Error("grpc server error", "error", err)
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", host, port)
	fmt.Fprintf(cmd.ErrOrStderr(), "%s listening on %s\n", headerFmt("odata-uri"), addr)
	return server.Listen(addr)
}

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "YAML model file (env ODATA_MODEL)")
	cmd.Flags().String("service-root", "", "service root the URI is relative to (env ODATA_SERVICE_ROOT)")
}

func newURIParser(cmd *cobra.Command, uri string) (*uriparser.Parser, error) {
	if err := applyColor(cmd); err != nil {
		return nil, err
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	m, err := loadModel(cmd)
	if err != nil {
		return nil, err
	}
	root := envOrDefault("ODATA_SERVICE_ROOT", "")
	if v, _ := cmd.Flags().GetString("service-root"); v != "" {
		root = v
	}
	return uriparser.New(m, root, uri, uriparser.WithSettings(s), uriparser.WithLogger(logger))
}

func applyColor(cmd *cobra.Command) error {
	off, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return err
	}
	if off || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	return nil
}
