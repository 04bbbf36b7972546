package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/kirillkom/cvgram/internal/client"
	"github.com/kirillkom/cvgram/internal/config"
	"github.com/kirillkom/cvgram/internal/observability/logging"
)

const usage = `type keywords to search as you type (comma or space separated)
  :mine           list your own CVs
  :get <cv_id>    print a download link
  :upload <path>  upload a PDF
  :quit           exit`

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "cvsearch", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.ClientAPIURL, cfg.ClientToken)
	searcher := client.NewSearcher(api.Search, cfg.ClientSearchDebounce)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for out := range searcher.Results() {
			if out.Err != nil {
				fmt.Fprintf(os.Stderr, "search %q: %v\n", out.Query, out.Err)
				continue
			}
			printList(os.Stdout, out.Result)
		}
	}()

	fmt.Fprintln(os.Stderr, usage)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			if !runCommand(ctx, api, searcher, line) {
				break loop
			}
		}
	}

	searcher.Close()
	<-done
}

// runCommand handles one input line and reports whether to keep reading.
func runCommand(ctx context.Context, api *client.Client, searcher *client.Searcher, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ":quit", ":q":
		return false
	case ":mine":
		email, err := api.TokenEmail()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mine: %v\n", err)
			return true
		}
		res, err := api.ListMine(ctx, email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mine: %v\n", err)
			return true
		}
		printList(os.Stdout, res)
	case ":get":
		link, err := api.DownloadURL(ctx, arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get: %v\n", err)
			return true
		}
		fmt.Printf("%s\n(expires %s)\n", link.URL, link.ExpiresAt.Local().Format("15:04:05"))
	case ":upload":
		if err := upload(ctx, api, arg); err != nil {
			fmt.Fprintf(os.Stderr, "upload: %v\n", err)
		}
	default:
		searcher.Type(line)
	}
	return true
}

func upload(ctx context.Context, api *client.Client, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rec, err := api.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Printf("uploaded %s as %s (%s)\n", rec.OriginalFilename, rec.ID, rec.Status)
	return nil
}

func printList(w io.Writer, res client.ListResult) {
	fmt.Fprintf(w, "%s (%d)\n", res.Message, res.Count)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CV_ID\tOWNER\tFILE\tSTATUS\tUPLOADED\tKEYWORDS")
	for _, cv := range res.CVs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			cv.ID, cv.OwnerEmail, cv.OriginalFilename, cv.Status,
			cv.UploadedAt.Local().Format("2006-01-02 15:04"), truncate(strings.Join(cv.Keywords, ","), 60))
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
