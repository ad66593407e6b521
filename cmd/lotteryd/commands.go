package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/R3E-Network/lottery_layer/internal/app/domain/lottery"
	"github.com/R3E-Network/lottery_layer/internal/app/runtime"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/cli"
	"github.com/R3E-Network/lottery_layer/internal/platform/migrations"
)

const dateLayout = "2006-01-02"

func serve(ctx context.Context, args []string) error {
	fs, cfgPath := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	a, err := runtime.NewApplication(cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func migrate(args []string, p *cli.Printer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: migrate needs up, down or status", errUsage)
	}
	direction := args[0]
	fs, cfgPath := newFlagSet("migrate")
	steps := fs.Int("steps", 1, "versions to roll back")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	db, err := runtime.OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	spin := p.NewSpinner("migrating " + direction)
	spin.Start()
	var v uint
	switch direction {
	case "up":
		v, err = migrations.Up(db.DB)
	case "down":
		v, err = migrations.Down(db.DB, *steps)
	case "status":
		v, err = migrations.Version(db.DB)
	default:
		spin.Error("unknown direction " + direction)
		return fmt.Errorf("%w: unknown migrate direction %q", errUsage, direction)
	}
	if err != nil {
		spin.Error(err.Error())
		return err
	}
	spin.Success(fmt.Sprintf("schema at version %d", v))
	return nil
}

// openRuntime builds the application for a one-shot command. The HTTP
// server and scheduler are not started.
func openRuntime(cfgPath string) (*runtime.Application, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.Scheduler.Enabled = false
	return runtime.NewApplication(cfg)
}

func importCombinations(ctx context.Context, args []string, p *cli.Printer) error {
	fs, cfgPath := newFlagSet("import")
	code := fs.String("lottery", "", "lottery code")
	drawDate := fs.String("draw-date", "", "draw date (YYYY-MM-DD); defaults to the next draw")
	layoutName := fs.String("layout", "standard", "file layout: standard or legacy")
	file := fs.String("file", "", "CSV file with the offered combinations")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *code == "" || *file == "" {
		return fmt.Errorf("%w: import needs -lottery and -file", errUsage)
	}
	layout, err := inventory.LayoutByName(*layoutName)
	if err != nil {
		return err
	}

	a, err := openRuntime(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())
	application := a.App()

	lot, err := application.Stores.Lotteries.GetLotteryByCode(ctx, strings.ToUpper(*code))
	if err != nil {
		return fmt.Errorf("lottery %s: %w", *code, err)
	}
	date := lot.DrawDateAt(time.Now())
	if *drawDate != "" {
		if date, err = time.Parse(dateLayout, *drawDate); err != nil {
			return fmt.Errorf("%w: -draw-date must be YYYY-MM-DD", errUsage)
		}
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	spin := p.NewSpinner(fmt.Sprintf("importing %s for %s %s", *file, lot.Code, date.Format(dateLayout)))
	spin.Start()
	entries, report, err := inventory.ParseCombinations(f, lot, layout)
	if err != nil {
		spin.Error(err.Error())
		return err
	}
	stats, err := application.Inventory.Refresh(ctx, lot, date, entries)
	if err != nil {
		spin.Error(err.Error())
		return err
	}
	spin.Success(fmt.Sprintf("%d combinations offered", report.Accepted))

	p.Table([]string{"ROWS", "ACCEPTED", "DUPLICATES", "INELIGIBLE", "INVALID", "INSERTED", "REACTIVATED", "DEACTIVATED"},
		[][]string{{
			strconv.Itoa(report.Rows), strconv.Itoa(report.Accepted), strconv.Itoa(report.Duplicates),
			strconv.Itoa(report.Ineligible), strconv.Itoa(len(report.Invalid)),
			strconv.Itoa(stats.Inserted), strconv.Itoa(stats.Reactivated), strconv.Itoa(stats.Deactivated),
		}})
	for _, msg := range report.Invalid {
		p.Warning("%s", msg)
	}
	return nil
}

// secoFlags collects repeated -seco number[-series] values.
type secoFlags []lottery.SecoPrize

func (s *secoFlags) String() string {
	parts := make([]string, len(*s))
	for i, p := range *s {
		parts[i] = p.Number + "-" + p.Series
	}
	return strings.Join(parts, ",")
}

func (s *secoFlags) Set(v string) error {
	number, series, _ := strings.Cut(v, "-")
	if number == "" {
		return fmt.Errorf("seco %q has no number", v)
	}
	*s = append(*s, lottery.SecoPrize{Number: number, Series: series})
	return nil
}

// result builds the draw outcome carrying the collected secos.
func (s secoFlags) result(lotteryID string, drawDate time.Time, number, series string) lottery.Result {
	return lottery.Result{
		LotteryID: lotteryID,
		DrawDate:  drawDate,
		Number:    number,
		Series:    series,
		Secos:     lottery.SecoList(s),
	}
}

func deliverResult(ctx context.Context, args []string, p *cli.Printer) error {
	fs, cfgPath := newFlagSet("result")
	code := fs.String("lottery", "", "lottery code")
	drawDate := fs.String("draw-date", "", "draw date (YYYY-MM-DD)")
	number := fs.String("number", "", "winning number")
	series := fs.String("series", "", "winning series")
	var secos secoFlags
	fs.Var(&secos, "seco", "secondary prize as number[-series]; repeatable")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *code == "" || *drawDate == "" || *number == "" {
		return fmt.Errorf("%w: result needs -lottery, -draw-date and -number", errUsage)
	}
	date, err := time.Parse(dateLayout, *drawDate)
	if err != nil {
		return fmt.Errorf("%w: -draw-date must be YYYY-MM-DD", errUsage)
	}

	a, err := openRuntime(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())
	application := a.App()

	lot, err := application.Stores.Lotteries.GetLotteryByCode(ctx, strings.ToUpper(*code))
	if err != nil {
		return fmt.Errorf("lottery %s: %w", *code, err)
	}
	delivery, err := application.Results.Deliver(ctx, secos.result(lot.ID, date, *number, *series))
	if err != nil {
		return err
	}
	if !delivery.Settled {
		p.Info("result for %s %s was already settled", lot.Code, *drawDate)
		return nil
	}
	r := delivery.Report
	p.Success("settled %s %s: %s-%s", lot.Code, *drawDate, delivery.Result.Number, delivery.Result.Series)
	p.Table([]string{"PROCESSED", "WON", "LOST", "SKIPPED", "ERRORS", "CREDIT FAILURES", "PAID"},
		[][]string{{
			strconv.Itoa(r.Processed), strconv.Itoa(r.Won), strconv.Itoa(r.Lost), strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Errors), strconv.Itoa(r.CreditFailures), r.TotalPaid.StringFixed(2),
		}})
	return nil
}

func syncResults(ctx context.Context, args []string, p *cli.Printer) error {
	fs, cfgPath := newFlagSet("sync")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a, err := openRuntime(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())

	report, err := a.App().Results.Sync(ctx)
	if err != nil {
		return err
	}
	p.Success("fetched %d results", report.Fetched)
	p.Table([]string{"DELIVERED", "SETTLED", "UNKNOWN", "FAILED"}, [][]string{{
		strconv.Itoa(report.Delivered), strconv.Itoa(report.Settled),
		strconv.Itoa(report.Unknown), strconv.Itoa(report.Failed),
	}})
	return nil
}

func rollDraws(ctx context.Context, args []string, p *cli.Printer) error {
	fs, cfgPath := newFlagSet("roll")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	a, err := openRuntime(*cfgPath)
	if err != nil {
		return err
	}
	defer a.Shutdown(context.Background())

	rolled, err := a.App().Roller.Roll(ctx)
	if err != nil {
		return err
	}
	p.Success("%d lotteries moved to their next draw", rolled)
	return nil
}
