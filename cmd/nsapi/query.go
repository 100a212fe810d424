package main

import (
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryhazerus/nsapi"
	"github.com/ryhazerus/nsapi/xmltree"
)

// newQueryCmd creates the query subcommand.
func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query [key=value ...] [shard ...]",
		Short: "Send a shard query to the API",
		Long: `Build and send an API query. Arguments of the form key=value become
query parameters; bare arguments become shards.

Example:
  nsapi query nation=testlandia fullname population
  nsapi query region=the_north_pacific numnations`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuery,
	}
	queryCmd.Flags().BoolP("verbose", "v", false, "print request and response headers to stderr")
	return queryCmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	limiter, _, err := setup(cmd)
	if err != nil {
		return err
	}

	params := url.Values{}
	var shards []string
	for _, arg := range args {
		if key, value, ok := strings.Cut(arg, "="); ok {
			params.Add(key, value)
		} else {
			shards = append(shards, arg)
		}
	}

	req := nsapi.World(params, shards...)
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		fmt.Fprintf(os.Stderr, "> %s %s\n", req.Method, req.URL.Redacted())
	}

	resp, err := limiter.SendContext(cmd.Context(), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "< %s\n", resp.Status)
		for key, values := range resp.Header {
			for _, value := range values {
				fmt.Fprintf(os.Stderr, "< %s: %s\n", key, value)
			}
		}
	}

	if err := nsapi.CheckStatus(resp); err != nil {
		return err
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasSuffix(contentType, "/xml") {
		_, err := io.Copy(os.Stdout, resp.Body)
		return err
	}

	root, err := xmltree.Parse(resp.Body)
	if err != nil {
		return err
	}
	return root.WriteIndent(os.Stdout, "  ")
}
