package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"musicseed-go/client"
	"musicseed-go/history"
	"musicseed-go/storage"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	dataDir   string
	quota     int
	compress  bool
	verbose   bool

	rootCmd = &cobra.Command{
		Use:   "musicseed",
		Short: "Turn a reference song into a style prompt and new lyrics",
		Long: `musicseed searches for a reference song, analyzes it through the
musicseed proxy and writes a style prompt and original lyrics from it.
Results can be refined with free-form instructions.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(os.Stderr)
			log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
			if verbose {
				log.SetLevel(log.DebugLevel)
			} else {
				log.SetLevel(log.WarnLevel)
			}
		},
		RunE: runInteractive,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start an interactive session",
		RunE:  runInteractive,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Manage locally saved results",
	}
	historyListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved results, newest first",
		RunE:  runHistoryList,
	}
	historyShowCmd = &cobra.Command{
		Use:   "show [id]",
		Short: "Print one saved result",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	historyDeleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one saved result",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}
	historyClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved result",
		RunE:  runHistoryClear,
	}

	usageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Show how many generations remain for this device",
		RunE:  runUsage,
	}
)

func init() {
	godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOrDefault("MUSICSEED_SERVER", "http://localhost:8080"), "musicseed proxy URL")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory for the identity token and history")
	rootCmd.PersistentFlags().IntVar(&quota, "quota", 0, "quota assumed until the proxy reports one (0 uses the default)")
	rootCmd.PersistentFlags().BoolVar(&compress, "compress", true, "gzip history entries")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyClearCmd)
	rootCmd.AddCommand(runCmd, historyCmd, usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataDir() string {
	if dir := os.Getenv("MUSICSEED_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".musicseed"
	}
	return filepath.Join(home, ".musicseed")
}

func identityPath() string {
	return filepath.Join(dataDir, "identity")
}

func newAPIClient() *client.Client {
	return client.New(serverURL, client.WithTimeout(3*time.Minute))
}

// openHistory opens the local history database. The caller closes the DB.
func openHistory() (*storage.DB, *history.Store, error) {
	db, err := storage.Open(filepath.Join(dataDir, "history.db"), "", history.BucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	store, err := history.NewStore(db, history.WithCompression(compress))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}
