package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sqlassist/sqlassist-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over a JSON HTTP API",
	Long: `Serve one assistant session over HTTP.

Endpoints:
  GET  /healthz
  POST /v1/dataset   multipart field "file", or JSON {"url": "..."}
  GET  /v1/schema
  POST /v1/query     {"sql": "..."}       (?format=csv for a CSV download)
  POST /v1/ask       {"question": "..."}  (?format=csv for a CSV download)

When jwt_secret is configured every /v1 request needs an HS256 bearer token.`,
	Example: `  # Serve an empty session and upload data later
  sqlassist serve --addr :8080

  # Preload a dataset
  sqlassist serve -i s3://bucket/passengers.csv.gz`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server_addr setting, :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, _, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cfg, err := sessionConfig(cmd, settings)
	if err != nil {
		return err
	}
	debug, _ := cmd.Flags().GetBool("debug")

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = settings.ServerAddr
	}

	sess, err := openSession(cmd.Context(), cfg, settings, sessionOptions{debug: debug})
	if err != nil {
		return err
	}
	defer sess.Close()

	if !sess.asst.HasTranslator() {
		warnColor.Fprintf(statusOut, "No translator configured: /v1/ask is disabled\n")
	}

	srv := server.New(sess.asst, server.Config{
		MaxUploadBytes: int64(settings.MaxUploadMB) << 20,
		Auth: server.AuthConfig{
			JWTSecret: settings.JWTSecret,
			Issuer:    settings.JWTIssuer,
			Audience:  settings.JWTAudience,
		},
		Debug: debug,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	successColor.Fprintf(statusOut, "✓ Serving on %s\n", addr)
	return srv.Run(ctx, addr)
}
