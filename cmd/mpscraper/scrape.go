package main

import (
	"time"

	"github.com/spf13/cobra"
	"mpscraper/pkg/scraper"
	"mpscraper/pkg/ui"
)

// scrapeFlags are shared by the scrape and batch commands
type scrapeFlags struct {
	pages        int
	days         int
	limit        int
	startDate    string
	endDate      string
	noContent    bool
	skipExisting bool
	all          bool

	output      string
	storageMode string
	saveAs      string
	noMedia     bool
	concurrent  int
	interval    time.Duration
}

func (f *scrapeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.pages, "pages", 0, "maximum listing pages per account (-1 for no cap)")
	fs.IntVar(&f.days, "days", 0, "only keep articles from the last N days (0 disables the window)")
	fs.IntVarP(&f.limit, "limit", "n", 0, "stop after N articles (0 for no limit)")
	fs.StringVar(&f.startDate, "start-date", "", "earliest publish date, YYYY-MM-DD")
	fs.StringVar(&f.endDate, "end-date", "", "latest publish date, YYYY-MM-DD (inclusive)")
	fs.BoolVar(&f.noContent, "no-content", false, "only collect the article list, skip bodies")
	fs.BoolVar(&f.skipExisting, "skip-existing", false, "skip articles already in the database")
	fs.BoolVar(&f.all, "all", false, "walk every page with no date window")

	fs.StringVarP(&f.output, "output", "o", "", "output directory for local storage")
	fs.StringVar(&f.storageMode, "storage-mode", "", "storage targets: local, database or both")
	fs.StringVar(&f.saveAs, "save-as", "", "local body format: markdown or html")
	fs.BoolVar(&f.noMedia, "no-media", false, "do not download images and videos")
	fs.IntVar(&f.concurrent, "concurrent", 0, "concurrent media downloads")
	fs.DurationVar(&f.interval, "interval", 0, "delay between listing pages")
}

// configFlags returns only the config overrides the user actually set
func (f *scrapeFlags) configFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed
	if changed("output") {
		flags["output"] = f.output
	}
	if changed("storage-mode") {
		flags["storage-mode"] = f.storageMode
	}
	if changed("save-as") {
		flags["save-as"] = f.saveAs
	}
	if changed("no-media") {
		flags["no-media"] = f.noMedia
	}
	if changed("concurrent") {
		flags["concurrent"] = f.concurrent
	}
	if changed("interval") {
		flags["interval"] = f.interval
	}
	return flags
}

func (f *scrapeFlags) options(cmd *cobra.Command, skipByDefault bool) scraper.Options {
	changed := cmd.Flags().Changed
	opts := scraper.Options{
		Limit:        f.limit,
		StartDate:    f.startDate,
		EndDate:      f.endDate,
		SkipExisting: f.skipExisting || skipByDefault,
	}
	if changed("pages") {
		opts.MaxPages = scraper.Int(f.pages)
	}
	if changed("days") {
		opts.Days = scraper.Int(f.days)
	}
	if f.noContent {
		opts.IncludeContent = scraper.Bool(false)
	}
	if f.all {
		opts.MaxPages = scraper.Int(scraper.UnlimitedPages)
		if !changed("days") {
			opts.Days = scraper.Int(0)
		}
	}
	return opts
}

var scrapeOpts scrapeFlags

var scrapeCmd = &cobra.Command{
	Use:   "scrape <account>",
	Short: "Harvest the articles of one official account",
	Long: `Search the account by name, page through its published articles and store
them according to storage.mode.

Examples:
  mpscraper scrape "Daily Tech" --days 7
  mpscraper scrape "Daily Tech" --limit 20 --no-content
  mpscraper scrape "Daily Tech" --start-date 2024-01-01 --end-date 2024-03-31
  mpscraper scrape "Daily Tech" --all --storage-mode both`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	scrapeOpts.register(scrapeCmd)
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	account := args[0]

	a, err := loadApp(scrapeOpts.configFlags(cmd))
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	p, err := a.openPersistence(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	s := a.newScraper(p.existence())
	opts := scrapeOpts.options(cmd, a.cfg.Scraper.SkipExisting)

	ui.PrintInfo("Account", account)
	articles, err := s.ScrapeAccount(ctx, account, opts)
	if err != nil {
		return explain(err)
	}
	if len(articles) == 0 {
		ui.PrintWarning("No articles matched")
		return nil
	}
	ui.PrintArticles(articles)

	display := ui.NewProgressDisplay(account, len(articles), verbose)
	for i := range articles {
		err := p.persister.Persist(ctx, &articles[i])
		display.Advance(articles[i].Title, err)
		if err != nil {
			display.Complete()
			return explain(err)
		}
	}
	display.Complete()

	ui.PrintSuccess("Harvest complete")
	return nil
}
