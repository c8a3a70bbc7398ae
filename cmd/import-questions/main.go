package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/itilprep/itil-exam-backend/internal/cache"
	"github.com/itilprep/itil-exam-backend/internal/config"
	"github.com/itilprep/itil-exam-backend/internal/database"
	"github.com/itilprep/itil-exam-backend/internal/importer"
	"github.com/itilprep/itil-exam-backend/internal/logger"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/repository"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

const (
	modeInsert  = "insert"
	modeReplace = "replace"
	modeJSON    = "json"
)

func main() {
	var (
		file   string
		mode   string
		out    string
		dryRun bool
		yes    bool
	)
	flag.StringVar(&file, "file", "itil-questions.md", "Markdown question bank to import")
	flag.StringVar(&mode, "mode", modeInsert, "insert (append with given ids), replace (swap the whole bank) or json")
	flag.StringVar(&out, "out", "internal/repository/data/questions.json", "Output file for -mode=json")
	flag.BoolVar(&dryRun, "dry-run", false, "Parse and report without writing anything")
	flag.BoolVar(&yes, "yes", false, "Do not ask before replacing the bank")
	flag.Parse()

	// Plain output when piped into a file or another program.
	color.NoColor = color.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── Parse ─────────────────────────────────────────────────────────
	f, err := os.Open(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to open question bank")
	}
	res, err := importer.ParseMarkdown(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse question bank")
	}

	color.Cyan("\n=== ITIL Question Import ===")
	fmt.Printf("Source: %s\n", file)
	color.Green("Parsed %d questions", len(res.Questions))
	if len(res.Skipped) > 0 {
		color.Yellow("Skipped %d blocks:", len(res.Skipped))
		for _, s := range res.Skipped {
			fmt.Printf("  line %d: %s (%s)\n", s.Line, truncate(s.Prompt, 60), s.Reason)
		}
	}
	printDistribution(res.Questions)

	if len(res.Questions) == 0 {
		color.Red("Nothing to import.")
		os.Exit(1)
	}
	if dryRun {
		color.Yellow("\nDry run, nothing written.")
		return
	}

	// ─── Write ─────────────────────────────────────────────────────────
	switch mode {
	case modeJSON:
		if err := writeJSON(out, res.Questions); err != nil {
			log.Fatal().Err(err).Str("out", out).Msg("Failed to write JSON")
		}
		color.Green("\nWrote %d questions to %s", len(res.Questions), out)
		return
	case modeInsert, modeReplace:
	default:
		color.Red("Unknown mode %q", mode)
		flag.Usage()
		os.Exit(2)
	}

	if mode == modeReplace && !yes && !confirm(fmt.Sprintf("Replace the whole question bank with %d questions?", len(res.Questions))) {
		color.Yellow("Aborted.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	repo := repository.NewQuestionRepository(pool)
	var n int64
	if mode == modeReplace {
		n, err = repo.ReplaceAll(ctx, res.Questions)
	} else {
		n, err = repo.BulkInsert(ctx, res.Questions)
	}
	if err != nil {
		log.Fatal().Err(err).Str("mode", mode).Msg("Import failed")
	}
	color.Green("\nImported %d questions (%s).", n, mode)

	// The API caches the catalog; drop it so the new bank is served at once.
	if rdb, err := database.NewRedisClient(ctx, cfg, log); err == nil {
		defer rdb.Close()
		if err := cache.NewCatalogCache(rdb, cfg.QuestionCacheTTL).Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("Catalog cache not invalidated")
		}
	} else {
		log.Warn().Err(err).Msg("Redis unavailable, catalog cache expires on its own")
	}
}

func printDistribution(questions []model.Question) {
	color.Yellow("\nCategory Distribution")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Category", "Questions"})
	for _, c := range service.CountCategories(questions) {
		table.Append([]string{c.Category, strconv.Itoa(c.Count)})
	}
	table.SetFooter([]string{"Total", strconv.Itoa(len(questions))})
	table.Render()
}

func writeJSON(path string, questions []model.Question) error {
	data, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// confirm asks a yes/no question on an interactive terminal. Without one it
// refuses, so scripted runs must pass -yes.
func confirm(question string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		color.Red("%s Refusing without a terminal; pass -yes.", question)
		return false
	}
	fmt.Printf("%s [y/N]: ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func truncate(s string, n int) string {
	if s == "" {
		return "(no prompt)"
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
