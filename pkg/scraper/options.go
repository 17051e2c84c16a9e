package scraper

import (
	"time"

	"mpscraper/pkg/config"
	errs "mpscraper/pkg/errors"
	"mpscraper/pkg/models"
)

// UnlimitedPages as Options.MaxPages removes the page cap.
const UnlimitedPages = -1

// DateLayout is the format of Options.StartDate and Options.EndDate.
const DateLayout = "2006-01-02"

// Options tunes one ScrapeAccount run. Nil pointers fall back to the
// configured Settings.
type Options struct {
	MaxPages       *int
	Days           *int
	Limit          int
	StartDate      string
	EndDate        string
	IncludeContent *bool
	SkipExisting   bool
}

// Int returns a pointer to v, for Options fields.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for Options fields.
func Bool(v bool) *bool { return &v }

// Settings are the per-scraper defaults and pacing delays.
type Settings struct {
	RequestInterval time.Duration
	ContentInterval time.Duration
	MaxPages        int
	Days            int
	IncludeContent  bool
}

// SettingsFromConfig extracts Settings from the scraper config section.
func SettingsFromConfig(cfg config.ScraperConfig) Settings {
	return Settings{
		RequestInterval: cfg.RequestInterval,
		ContentInterval: cfg.ContentInterval,
		MaxPages:        cfg.MaxPages,
		Days:            cfg.Days,
		IncludeContent:  cfg.IncludeContent,
	}
}

// plan is an Options resolved against Settings and the clock.
type plan struct {
	maxPages       int
	limit          int
	window         models.DateWindow
	days           int
	includeContent bool
	skipExisting   bool
}

func (p plan) pageCapped() bool {
	return p.maxPages != UnlimitedPages
}

// resolve validates opts and derives the run plan. An explicit limit or
// date bound disables the configured default lookback unless Days is also
// given explicitly.
func resolve(opts Options, settings Settings, now time.Time) (plan, error) {
	p := plan{
		maxPages:       settings.MaxPages,
		limit:          opts.Limit,
		includeContent: settings.IncludeContent,
		skipExisting:   opts.SkipExisting,
	}
	if opts.MaxPages != nil {
		p.maxPages = *opts.MaxPages
	}
	if p.maxPages < UnlimitedPages {
		return plan{}, errs.Newf(errs.ErrorTypeInvalidOptions, "max pages must be >= 0 or %d, got %d", UnlimitedPages, p.maxPages)
	}
	if p.limit < 0 {
		return plan{}, errs.Newf(errs.ErrorTypeInvalidOptions, "limit must not be negative, got %d", p.limit)
	}
	if opts.IncludeContent != nil {
		p.includeContent = *opts.IncludeContent
	}

	explicit := opts.Limit > 0 || opts.StartDate != "" || opts.EndDate != ""
	switch {
	case opts.Days != nil:
		p.days = *opts.Days
	case !explicit:
		p.days = settings.Days
	}

	loc := now.Location()
	w := models.DateWindow{Start: time.Unix(0, 0), End: now}

	if opts.StartDate != "" {
		start, err := time.ParseInLocation(DateLayout, opts.StartDate, loc)
		if err != nil {
			return plan{}, errs.Wrap(errs.ErrorTypeInvalidOptions, err, "invalid start date")
		}
		w.Start = start
		w.Enabled = true
	} else if p.days > 0 {
		w.Start = now.Add(-time.Duration(p.days) * 24 * time.Hour)
		w.Enabled = true
	}

	if opts.EndDate != "" {
		end, err := time.ParseInLocation(DateLayout, opts.EndDate, loc)
		if err != nil {
			return plan{}, errs.Wrap(errs.ErrorTypeInvalidOptions, err, "invalid end date")
		}
		w.End = end.AddDate(0, 0, 1).Add(-time.Second)
		w.Enabled = true
	}

	if w.Enabled && w.Start.After(w.End) {
		return plan{}, errs.Newf(errs.ErrorTypeInvalidOptions, "start %s is after end %s",
			w.Start.Format(DateLayout), w.End.Format(DateLayout))
	}
	p.window = w
	return p, nil
}
