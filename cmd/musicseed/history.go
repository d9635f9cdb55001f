package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"musicseed-go/client"
	"musicseed-go/history"
	"musicseed-go/models"
	"musicseed-go/session"

	"github.com/spf13/cobra"
)

func runHistoryList(cmd *cobra.Command, args []string) error {
	db, store, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}
	return writeHistoryList(cmd.OutOrStdout(), entries)
}

func writeHistoryList(out io.Writer, entries []models.HistoryEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "履歴はありません")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tSONG\tARTIST")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Song.Title, e.Song.Artist)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, store, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == args[0] {
			song := e.Song
			result := e.Result
			fmt.Fprintf(cmd.OutOrStdout(), "「%s」/ %s\n", song.Title, song.Artist)
			printResult(cmd.OutOrStdout(), session.View{Song: &song, Result: &result})
			return nil
		}
	}
	return fmt.Errorf("%s: %w", args[0], history.ErrNotFound)
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	db, store, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Delete(args[0]); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "削除しました: %s\n", args[0])
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	db, store, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "履歴を削除しました")
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	identity, err := client.LoadOrCreateIdentity(identityPath())
	if err != nil {
		return err
	}

	status, err := newAPIClient().Usage(cmd.Context(), identity)
	if err != nil {
		return err
	}
	writeUsage(cmd.OutOrStdout(), status)
	return nil
}

func writeUsage(out io.Writer, status models.UsageStatus) {
	fmt.Fprintf(out, "使用回数: %d / %d\n", status.Count, status.Quota)
	switch {
	case !status.Allowed:
		fmt.Fprintln(out, "利用回数の上限に達しています。")
	case status.Remaining != nil:
		fmt.Fprintf(out, "残り %d 回\n", *status.Remaining)
	}
}
