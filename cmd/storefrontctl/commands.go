package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jamesprial/storefront-mcp/internal/apiclient"
	"github.com/jamesprial/storefront-mcp/internal/concierge"
	"github.com/jamesprial/storefront-mcp/internal/conversions"
	"github.com/jamesprial/storefront-mcp/internal/storefront"
)

// app holds the clients shared by all subcommands. Any client may be nil
// when its credentials are not configured.
type app struct {
	catalog storefront.CatalogManager
	events  conversions.Sender
	chat    concierge.Chatter
	logger  *zap.Logger

	fullGID  bool
	testCode string
	provider concierge.Provider
	useRAG   bool
}

type rootOptions struct {
	configPath string
	output     string
	verbose    bool
}

type loader func(rootOptions) (*app, error)

var (
	errNoStorefront  = errors.New("storefront is not configured: set STOREFRONT_DOMAIN and STOREFRONT_ACCESS_TOKEN")
	errNoConversions = errors.New("conversions are not configured: set META_PIXEL_ID and META_ACCESS_TOKEN")
	errNoConcierge   = errors.New("concierge is not configured: set STOREFRONT_CONCIERGE_URL")
)

var numericID = regexp.MustCompile(`^\d+$`)

func newRootCmd(load loader) *cobra.Command {
	var opts rootOptions
	var a *app

	// lazy defers building clients until a subcommand runs, so --help works
	// without credentials.
	lazy := func() (*app, error) {
		if a != nil {
			return a, nil
		}
		loaded, err := load(opts)
		if err != nil {
			return nil, err
		}
		a = loaded
		return a, nil
	}

	root := &cobra.Command{
		Use:           "storefrontctl",
		Short:         "Verify storefront, conversions and concierge connectivity",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: environment and .env only)")
	root.PersistentFlags().StringVar(&opts.output, "output", "text", "output format: json|text")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newCountsCmd(lazy, &opts))
	root.AddCommand(newCollectionsCmd(lazy, &opts))
	root.AddCommand(newVerifyHandlesCmd(lazy, &opts))
	root.AddCommand(newVerifyGIDCmd(lazy))
	root.AddCommand(newTestEventCmd(lazy, &opts))
	root.AddCommand(newChatCmd(lazy))

	return root
}

func newCountsCmd(lazy func() (*app, error), opts *rootOptions) *cobra.Command {
	var first, concurrency int
	cmd := &cobra.Command{
		Use:   "counts [handles...]",
		Short: "Count products in collections (all collections when no handle is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lazy()
			if err != nil {
				return err
			}
			if a.catalog == nil {
				return errNoStorefront
			}

			var counts []storefront.CategoryCount
			if len(args) == 0 {
				counts, err = a.catalog.CollectionCounts(cmd.Context(), storefront.MaxPageSize, first, concurrency)
				if err != nil {
					return err
				}
			} else {
				counts = a.catalog.CountCategories(cmd.Context(), args, first, concurrency)
			}
			return printCounts(cmd.OutOrStdout(), opts.output, a.logger, counts)
		},
	}
	cmd.Flags().IntVar(&first, "first", 10, "page size per collection")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "parallel lookups (1 = sequential)")
	return cmd
}

func newCollectionsCmd(lazy func() (*app, error), opts *rootOptions) *cobra.Command {
	var first, concurrency int
	var withCounts bool
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List collections, optionally sampling each for products",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lazy()
			if err != nil {
				return err
			}
			if a.catalog == nil {
				return errNoStorefront
			}

			if withCounts {
				counts, err := a.catalog.CollectionCounts(cmd.Context(), first, 1, concurrency)
				if err != nil {
					return err
				}
				return printCounts(cmd.OutOrStdout(), opts.output, a.logger, counts)
			}

			cols, err := a.catalog.Collections(cmd.Context(), first)
			if err != nil {
				return err
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), cols)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d collections:\n", len(cols))
			for _, c := range cols {
				fmt.Fprintf(cmd.OutOrStdout(), "- %s (handle: %s)\n", c.Title, c.Handle)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&first, "first", 100, "number of collections to list")
	cmd.Flags().BoolVar(&withCounts, "counts", false, "sample each collection for products")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "parallel lookups with --counts (1 = sequential)")
	return cmd
}

func newVerifyHandlesCmd(lazy func() (*app, error), opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-handles [handles...]",
		Short: "Check that collection handles resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lazy()
			if err != nil {
				return err
			}
			if a.catalog == nil {
				return errNoStorefront
			}
			if len(args) == 0 {
				args = []string{"frontpage", "top-selling-products"}
			}

			counts := a.catalog.CountCategories(cmd.Context(), args, 1, 1)
			if opts.output == "json" {
				if err := writeJSON(cmd.OutOrStdout(), counts); err != nil {
					return err
				}
				return failures(a.logger, counts)
			}
			for _, c := range counts {
				switch {
				case c.Err != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "Lookup failed: %s (%s)\n", c.Handle, c.Error)
				case c.Found:
					fmt.Fprintf(cmd.OutOrStdout(), "Found collection: %s -> Title: %s\n", c.Handle, c.Title)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "Collection NOT found: %s\n", c.Handle)
				}
			}
			return failures(a.logger, counts)
		},
	}
}

func newVerifyGIDCmd(lazy func() (*app, error)) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "verify-gid",
		Short: "Fetch a sample product and check its catalog id format",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lazy()
			if err != nil {
				return err
			}
			if a.catalog == nil {
				return errNoStorefront
			}
			if !cmd.Flags().Changed("full") {
				full = a.fullGID
			}

			products, err := a.catalog.Products(cmd.Context(), 1, "", false)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				return errors.New("no products found in the store")
			}

			p := products[0]
			formatted := storefront.FormatProductID(p.ID, full)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Product title: %s\n", p.Title)
			fmt.Fprintf(out, "Original GID:  %s\n", p.ID)
			fmt.Fprintf(out, "Formatted ID:  %s\n", formatted)

			ok := numericID.MatchString(formatted)
			if full {
				ok = strings.HasPrefix(formatted, "gid://") && numericID.MatchString(storefront.NumericID(formatted))
			}
			if !ok {
				return fmt.Errorf("formatted id %q is not in the expected format", formatted)
			}
			fmt.Fprintln(out, "OK: product ids are formatted for the ad catalog")
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "expect full GIDs (default from config)")
	return cmd
}

func newTestEventCmd(lazy func() (*app, error), opts *rootOptions) *cobra.Command {
	var name, sourceURL, testCode, email string
	var productIDs []string
	cmd := &cobra.Command{
		Use:   "test-event",
		Short: "Send one event to the conversions test console",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lazy()
			if err != nil {
				return err
			}
			if a.events == nil {
				return errNoConversions
			}
			if testCode == "" {
				testCode = a.testCode
			}

			event := conversions.Event{
				Name:      name,
				SourceURL: sourceURL,
				User:      conversions.UserData{Email: email},
			}
			if len(productIDs) > 0 {
				event.Custom = conversions.ProductContent{ProductIDs: productIDs}.CustomData(a.fullGID)
			}

			receipt, err := a.events.SendTest(cmd.Context(), testCode, event).Get()
			if err != nil {
				a.logger.Warn("test event failed", zap.String("event_name", name), zap.Error(err))
				return errors.New(apiclient.Describe(err, nil))
			}
			if opts.output == "json" {
				return writeJSON(cmd.OutOrStdout(), receipt)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "events received: %d\nfbtrace_id: %s\n", receipt.EventsReceived, receipt.FBTraceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "PageView", "event name")
	cmd.Flags().StringVar(&sourceURL, "url", "", "event source URL")
	cmd.Flags().StringVar(&testCode, "test-code", "", "test event code (default from META_TEST_EVENT_CODE)")
	cmd.Flags().StringVar(&email, "email", "", "shopper email, hashed before sending")
	cmd.Flags().StringSliceVar(&productIDs, "product", nil, "product id for custom_data (repeatable)")
	return cmd
}

func newChatCmd(lazy func() (*app, error)) *cobra.Command {
	var provider, token string
	var noRAG bool
	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Send one message to the concierge and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := lazy()
			if err != nil {
				return err
			}
			if a.chat == nil {
				return errNoConcierge
			}

			p := a.provider
			if provider != "" {
				if p, err = concierge.ParseProvider(provider); err != nil {
					return err
				}
			}
			req := concierge.ChatRequest{
				Messages: []concierge.Message{{Role: "user", Content: strings.Join(args, " ")}},
				Provider: p,
				UseRAG:   a.useRAG && !noRAG,
			}

			res := a.chat.Chat(cmd.Context(), token, req)
			if !res.OK() {
				a.logger.Warn("concierge chat failed", zap.String("provider", string(p)), zap.Error(res.Fault()))
			}
			fmt.Fprintln(cmd.OutOrStdout(), concierge.Render(res))
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "gemini|openai|grok|openrouter (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "shopper session token")
	cmd.Flags().BoolVar(&noRAG, "no-rag", false, "disable catalog retrieval")
	return cmd
}

// printCounts renders counts and reports an error when any lookup failed.
// Failed lookups are listed alongside the successful ones.
func printCounts(w io.Writer, output string, logger *zap.Logger, counts []storefront.CategoryCount) error {
	if output == "json" {
		if err := writeJSON(w, counts); err != nil {
			return err
		}
		return failures(logger, counts)
	}
	for _, c := range counts {
		switch {
		case c.Err != nil:
			fmt.Fprintf(w, "- %s: error: %s\n", c.Handle, c.Error)
		case !c.Found:
			fmt.Fprintf(w, "- %s: not found\n", c.Handle)
		default:
			fmt.Fprintf(w, "- %s (handle: %s): %d products\n", c.Title, c.Handle, c.Count)
		}
	}
	return failures(logger, counts)
}

func failures(logger *zap.Logger, counts []storefront.CategoryCount) error {
	failed := 0
	for _, c := range counts {
		if c.Err != nil {
			failed++
			logger.Debug("lookup failed", zap.String("handle", c.Handle), zap.Error(c.Err))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", failed, len(counts))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
