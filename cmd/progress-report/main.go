package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/itilprep/itil-exam-backend/internal/config"
	"github.com/itilprep/itil-exam-backend/internal/database"
	"github.com/itilprep/itil-exam-backend/internal/logger"
	"github.com/itilprep/itil-exam-backend/internal/model"
	"github.com/itilprep/itil-exam-backend/internal/repository"
	"github.com/itilprep/itil-exam-backend/internal/service"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

func main() {
	var (
		userID string
		limit  int
	)
	flag.StringVar(&userID, "user", "", "User id to report on (empty reports every result)")
	flag.IntVar(&limit, "limit", 20, "Number of recent results to list (0 lists all)")
	flag.Parse()

	color.NoColor = color.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mdb, err := database.NewMongoDatabase(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure MongoDB")
	}
	defer mdb.Client().Disconnect(context.Background())

	fallbackDB, err := database.OpenFallbackStore(ctx, cfg.FallbackDBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open fallback store")
	}
	defer fallbackDB.Close()

	results := service.NewResultService(
		repository.NewResultRepository(mdb),
		repository.NewFallbackResultRepository(fallbackDB),
		repository.NewUserStatsRepository(mdb),
		nil,
		cfg.Exam.PassThresholdPercent,
		log,
	)

	overview, err := service.NewProgressService(results).Overview(ctx, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load results")
	}
	history, err := results.ListResults(ctx, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load results")
	}

	who := userID
	if who == "" {
		who = "all users"
	}
	color.Cyan("\n=== ITIL Exam Progress: %s ===", who)

	if len(history) == 0 {
		color.Yellow("No exam results yet.")
		return
	}

	printHistory(history, limit)
	printSummary(overview)
	printCategories(overview.Summary.CategoryScores)
}

func printHistory(history []model.ExamResult, limit int) {
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}

	color.Yellow("\nRecent Exams")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Date", "Score", "Percent", "Result", "Time", "Flagged"})
	for _, r := range history {
		outcome := color.RedString("FAIL")
		if r.Passed {
			outcome = color.GreenString("PASS")
		}
		table.Append([]string{
			r.Date.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d/%d", r.Correct, r.Total),
			strconv.Itoa(r.Percentage) + "%",
			outcome,
			formatSeconds(r.TimeSpent),
			strconv.Itoa(r.FlaggedCount),
		})
	}
	table.Render()
}

func printSummary(o *service.ProgressOverview) {
	s := o.Summary
	color.Yellow("\nSummary")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Exams taken", strconv.Itoa(s.TotalExams)})
	table.Append([]string{"Passed / failed", fmt.Sprintf("%d / %d", s.Passed, s.Failed)})
	table.Append([]string{"Average score", strconv.Itoa(s.AverageScore) + "%"})
	table.Append([]string{"Best / worst", fmt.Sprintf("%d%% / %d%%", s.BestScore, s.WorstScore)})
	table.Append([]string{"Trend", fmt.Sprintf("%+d points", s.Trend)})
	table.Append([]string{"With flagged questions", strconv.Itoa(s.WithFlagged)})
	if o.Stats != nil {
		table.Append([]string{"Last exam", o.Stats.LastExamAt.Local().Format("2006-01-02 15:04")})
	}
	table.Render()
}

func printCategories(scores []service.CategoryProgress) {
	color.Yellow("\nBy Category")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Category", "Correct", "Total", "Percent"})
	for _, c := range scores {
		table.Append([]string{
			c.Category,
			strconv.Itoa(c.Correct),
			strconv.Itoa(c.Total),
			strconv.Itoa(c.Percentage) + "%",
		})
	}
	table.Render()
}

func formatSeconds(total int) string {
	return fmt.Sprintf("%dm %02ds", total/60, total%60)
}
