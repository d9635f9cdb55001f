package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"musicseed-go/client"
	"musicseed-go/models"
	"musicseed-go/session"

	"github.com/spf13/cobra"
)

const helpText = `:new   新しい曲から始める
:help  このヘルプ
:quit  終了`

// repl drives a session from line-based input
type repl struct {
	machine   *session.Machine
	in        *bufio.Scanner
	out       io.Writer
	lastState session.State
	refining  bool
}

func newREPL(opts session.Options, in io.Reader, out io.Writer) *repl {
	r := &repl{
		in:  bufio.NewScanner(in),
		out: out,
	}
	r.in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	opts.OnChange = r.onChange
	r.machine = session.New(opts)
	return r
}

func runInteractive(cmd *cobra.Command, args []string) error {
	identity, err := client.LoadOrCreateIdentity(identityPath())
	if err != nil {
		return err
	}

	db, store, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	api := newAPIClient()
	r := newREPL(session.Options{
		Gateway:  api,
		Ledger:   client.NewUsage(api, quota),
		History:  store,
		Identity: identity,
		Quota:    quota,
	}, os.Stdin, cmd.OutOrStdout())

	return r.run(cmd.Context())
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, "musicseed: 参考にしたい曲を入力してください (:help でコマンド一覧)")
	r.machine.LoadUsage(ctx)
	r.renderUsage(r.machine.View())

	for {
		fmt.Fprint(r.out, prompt(r.machine.View()))
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())

		switch line {
		case ":quit", ":q":
			return nil
		case ":help":
			fmt.Fprintln(r.out, helpText)
			continue
		case ":new":
			r.machine.Reset()
			continue
		}

		err := r.handle(ctx, line)
		v := r.machine.View()
		r.render(v)
		if err != nil && v.Error == "" && !errors.Is(err, session.ErrAbandoned) {
			fmt.Fprintf(r.out, "! %s\n", errorText(err))
		}
	}
}

// handle applies one input line to the session according to its state
func (r *repl) handle(ctx context.Context, line string) error {
	switch r.machine.State() {
	case session.Idle:
		if line == "" {
			return nil
		}
		r.machine.SetQuery(line)
		return r.machine.Submit(ctx)

	case session.Selecting:
		if line == "c" {
			return r.machine.Cancel()
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			return errors.New("番号を入力してください")
		}
		return r.machine.Pick(n - 1)

	case session.Confirming:
		switch strings.ToLower(line) {
		case "", "y", "yes":
			return r.machine.Confirm(ctx)
		case "n", "no":
			return r.machine.Reject()
		default:
			return errors.New("y か n を入力してください")
		}

	case session.Results:
		if line == "" {
			return nil
		}
		r.machine.SetRefineInput(line)
		return r.machine.SubmitRefine(ctx)
	}
	return nil
}

// onChange prints progress while a call is in flight
func (r *repl) onChange(v session.View) {
	if v.State != r.lastState {
		switch v.State {
		case session.Searching:
			fmt.Fprintln(r.out, "検索中...")
		case session.Analyzing:
			fmt.Fprintln(r.out, "楽曲を分析して歌詞を作成中...")
		}
		r.lastState = v.State
	}
	if v.Refining && !r.refining {
		fmt.Fprintln(r.out, "修正中...")
	}
	r.refining = v.Refining
}

func (r *repl) render(v session.View) {
	if v.Error != "" {
		fmt.Fprintf(r.out, "! %s\n", v.Error)
	}

	switch v.State {
	case session.Selecting:
		fmt.Fprintln(r.out, "候補:")
		for i, c := range v.Candidates {
			fmt.Fprintf(r.out, "  %d. %s / %s%s\n", i+1, c.Title, c.Artist, details(c.Genre, c.Year))
			if c.Description != "" {
				fmt.Fprintf(r.out, "     %s\n", c.Description)
			}
		}
	case session.Confirming:
		if v.Song != nil && v.Error == "" {
			fmt.Fprintf(r.out, "「%s」/ %s を参考に作成しますか？\n", v.Song.Title, v.Song.Artist)
		}
	case session.Results:
		if v.Result != nil && v.Error == "" {
			printResult(r.out, v)
		}
	}
}

func (r *repl) renderUsage(v session.View) {
	switch {
	case v.Locked:
		fmt.Fprintln(r.out, "利用回数の上限に達しています。")
	case v.Remaining != nil:
		fmt.Fprintf(r.out, "残り %d 回\n", *v.Remaining)
	}
}

func printResult(out io.Writer, v session.View) {
	res := v.Result
	fmt.Fprintln(out, "\n== Style Prompt ==")
	fmt.Fprintln(out, res.StylePrompt)
	if res.StylePromptTranslation != "" {
		fmt.Fprintf(out, "(%s)\n", res.StylePromptTranslation)
	}
	fmt.Fprintln(out, "\n== Lyrics ==")
	fmt.Fprintln(out, res.Lyrics)
	if res.Reasoning != "" {
		fmt.Fprintln(out, "\n== 分析 ==")
		fmt.Fprintln(out, res.Reasoning)
	}
	if len(res.Sources) > 0 {
		fmt.Fprintln(out, "\n== 参考 ==")
		for _, s := range res.Sources {
			title := s.Title
			if title == "" {
				title = s.URI
			}
			fmt.Fprintf(out, "- %s <%s>\n", title, s.URI)
		}
	}
	fmt.Fprintln(out)

	switch {
	case v.Locked:
		fmt.Fprintln(out, "利用回数の上限に達しました。")
	case v.Remaining != nil:
		fmt.Fprintf(out, "残り %d 回\n", *v.Remaining)
	}
}

func prompt(v session.View) string {
	switch v.State {
	case session.Selecting:
		return "番号 (c: 戻る)> "
	case session.Confirming:
		return "[Y/n]> "
	case session.Results:
		return "修正指示 (:new で新しい曲)> "
	default:
		return "曲名・アーティスト> "
	}
}

func details(genre, year string) string {
	var parts []string
	if genre != "" {
		parts = append(parts, genre)
	}
	if year != "" {
		parts = append(parts, year)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// errorText returns the user-facing part of err
func errorText(err error) string {
	var classified *models.Error
	if errors.As(err, &classified) {
		return classified.Message
	}
	return err.Error()
}
