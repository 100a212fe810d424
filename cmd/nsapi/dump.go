package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ryhazerus/nsapi"
)

// newDumpCmd creates the dump subcommand.
func newDumpCmd() *cobra.Command {
	dumpCmd := &cobra.Command{
		Use:   "dump [nations|regions ...]",
		Short: "Download gzipped daily dumps",
		Long: `Download the gzipped daily dump files into the current directory.
Multiple dumps are fetched concurrently; dump downloads identify
themselves with the User-Agent but do not consume the API call budget.

Example:
  nsapi dump nations regions
  nsapi dump nations --date 2026-08-01`,
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"nations", "regions"},
		RunE:      runDump,
	}
	dumpCmd.Flags().String("date", "", "archived dump date (YYYY-MM-DD); default is the most recent dump")
	return dumpCmd
}

func runDump(cmd *cobra.Command, args []string) error {
	limiter, _, err := setup(cmd)
	if err != nil {
		return err
	}

	var date time.Time
	if dateStr, _ := cmd.Flags().GetString("date"); dateStr != "" {
		date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	client := limiter.Client()
	eg, ctx := errgroup.WithContext(cmd.Context())
	for _, name := range args {
		var req *http.Request
		switch name {
		case "nations":
			req = nsapi.NationsDump(date)
		case "regions":
			req = nsapi.RegionsDump(date)
		default:
			return fmt.Errorf("unknown dump %q", name)
		}
		eg.Go(func() error {
			return download(client, req.WithContext(ctx))
		})
	}
	return eg.Wait()
}

// download fetches one dump into a file named after the URL's last path
// segment.
func download(client *http.Client, req *http.Request) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := nsapi.CheckStatus(resp); err != nil {
		return err
	}

	name := path.Base(req.URL.Path)
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", name)
	return nil
}
