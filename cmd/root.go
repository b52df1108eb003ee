package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/config"
	"github.com/openwallet-foundation-labs/gmail-mcp-server/internal/logging"
)

// rootCmd represents the base command for the gmail-mcp-server application
var rootCmd = &cobra.Command{
	Use:   "gmail-mcp-server",
	Short: "Gmail tools for AI assistants, over MCP or the command line",
	Long: `gmail-mcp-server gives AI assistants access to one or more Gmail
accounts. Each account is addressed by its email address and authorized
once through Google OAuth; the credential is stored and refreshed.

It can run as:
  - An MCP (Model Context Protocol) server (default)
  - A CLI that runs the same operations and prints JSON`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// version will be set by main
var version = "dev"

var (
	v      = config.New()
	cfg    *config.Config
	logger = logging.Discard()
)

// SetVersion sets the version for the root command
func SetVersion(ver string) {
	version = ver
	rootCmd.Version = ver
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gmail-mcp-server version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration once flags are parsed and builds the
// logger every command uses.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	c, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = c
	logger = newLogger(cfg)
	if file := v.ConfigFileUsed(); file != "" {
		logger.Debug("loaded config file", slog.String("path", file))
	}
	return nil
}

// newLogger logs to stderr. Stdout belongs to the stdio transport and to
// command output.
func newLogger(c *config.Config) *slog.Logger {
	return logging.New(os.Stderr, logging.Options{
		Debug:  c.Debug,
		Format: logging.Format(c.LogFormat),
	})
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(config.KeyConfigFile, "", "Config file (default: ./config.yaml or ~/.config/gmail-mcp-server/config.yaml)")
	flags.String(config.KeyClientSecretFile, "client_secret.json", "Google OAuth client secret JSON file")
	flags.String(config.KeyGoogleClientID, "", "Google OAuth client ID, used when the client secret file does not exist. Can also use GOOGLE_CLIENT_ID env var.")
	flags.String(config.KeyGoogleClientSecret, "", "Google OAuth client secret, used when the client secret file does not exist. Can also use GOOGLE_CLIENT_SECRET env var.")
	flags.String(config.KeyTokenDir, "token_files", "Directory holding one stored credential per account")
	flags.String(config.KeyAttachmentDir, "downloaded_attachments", "Directory attachments are downloaded to")
	flags.String(config.KeyBodyPolicy, config.BodyPolicyFirstInline, fmt.Sprintf("Body extraction policy: %s or %s", config.BodyPolicyFirstInline, config.BodyPolicyPreferText))
	flags.Float64(config.KeyRateLimit, 0, "Gmail API calls per second per account (0: no limit)")
	flags.Int(config.KeyRateBurst, 5, "Burst size for the rate limit")
	flags.Bool(config.KeyDebug, false, "Enable debug logging")
	flags.String(config.KeyLogFormat, "text", "Log format: text or json")
}

// resetConfig gives tests a fresh configuration state.
func resetConfig() {
	v = config.New()
	cfg = nil
	logger = logging.Discard()
}

func init() {
	addGlobalFlags(rootCmd)
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthorizeCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newInboxCmd())
	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
