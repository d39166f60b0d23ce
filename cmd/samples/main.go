package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/EmpoweredVote/geocode/internal/boundary"
	"github.com/EmpoweredVote/geocode/internal/config"
	"github.com/EmpoweredVote/geocode/internal/db"
	"github.com/EmpoweredVote/geocode/internal/geocode"
	"github.com/EmpoweredVote/geocode/internal/logger"
	"github.com/EmpoweredVote/geocode/internal/wikidata"
)

// Resolves every sample location and checks the Commons category starts with
// the sample name. Exits non-zero when any sample fails.
func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "Per-sample timeout")
	only := flag.String("name", "", "Only run the sample with this name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatalf("config: %v", err)
	}
	l, err := logger.Setup(cfg.LogLevel, "console")
	if err != nil {
		fatalf("logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	gdb, err := db.Connect(cfg.DatabaseURL, l)
	if err != nil {
		fatalf("database: %v", err)
	}

	limit := rate.Inf
	if cfg.WikidataRate > 0 {
		limit = rate.Limit(cfg.WikidataRate)
	}
	kb := wikidata.NewClient(wikidata.Config{
		UserAgent: cfg.UserAgent,
		Limiter:   rate.NewLimiter(limit, 1),
	})
	resolver := geocode.NewResolver(boundary.NewStore(gdb), kb)

	samples, err := geocode.LoadSamples()
	if err != nil {
		fatalf("%v", err)
	}

	failed := 0
	for _, s := range samples {
		if *only != "" && s.Name != *only {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		resp, err := resolver.Resolve(ctx, s.Lat, s.Lon)
		cancel()
		if err != nil {
			failed++
			l.Error("sample failed", zap.String("name", s.Name), zap.Error(err))
			fmt.Printf("FAIL %-40s %v\n", s.Name, err)
			continue
		}

		title := ""
		if c := resp.Result.CommonsCat; c != nil {
			title = c.Title
		}
		if !s.Matches(title) {
			failed++
			fmt.Printf("FAIL %-40s got %q\n", s.Name, title)
			continue
		}
		fmt.Printf("ok   %-40s %s\n", s.Name, title)
	}

	if failed > 0 {
		fatalf("%d sample(s) failed", failed)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
