package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"fxscheduler/cmd/executor"
	"fxscheduler/src/connectors"
	"fxscheduler/src/database"
	"fxscheduler/src/executors"
	"fxscheduler/src/model"
	"fxscheduler/src/report"
	"fxscheduler/src/repository"
	"fxscheduler/src/risk"
	"fxscheduler/src/schedule"
	"fxscheduler/src/security"
	"fxscheduler/src/tradingtime"
)

var Version string

func main() {
	// .env is optional, the environment wins
	_ = godotenv.Load()
	executor.SetupLogger(executor.GetConfig())

	app := cli.NewApp()
	app.Name = "fxscheduler"
	app.Usage = "Schedule-driven FX trading"
	app.Version = Version

	app.Commands = []cli.Command{
		runCMD,
		positionsCMD,
		closeAllCMD,
		scheduleCMD,
		reportCMD,
		testLotCMD,
		tokenHashCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "run the scheduler",
		Action:      runAction,
		Description: `Trade the schedule until interrupted`,
	}
	positionsCMD = cli.Command{
		Name:   "positions",
		Usage:  "list open broker positions",
		Action: positionsAction,
	}
	closeAllCMD = cli.Command{
		Name:   "close-all",
		Usage:  "close every open position",
		Action: closeAllAction,
	}
	scheduleCMD = cli.Command{
		Name:   "schedule",
		Usage:  "validate and print the schedule",
		Action: scheduleAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "file", Usage: "schedule CSV, defaults to SCHEDULE_CSV"},
		},
	}
	reportCMD = cli.Command{
		Name:   "report",
		Usage:  "print the metrics of a trading date",
		Action: reportAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "date", Usage: "trading date YYYY-MM-DD, defaults to today"},
		},
	}
	testLotCMD = cli.Command{
		Name:   "testlot",
		Usage:  "compute the automatic lot size",
		Action: testLotAction,
		Flags: []cli.Flag{
			cli.StringFlag{Name: "balance", Value: "1000000"},
			cli.StringFlag{Name: "rate", Value: "150"},
			cli.StringFlag{Name: "symbol", Value: "USD_JPY"},
			cli.StringFlag{Name: "currency", Value: "JPY", Usage: "account currency"},
			cli.StringFlag{Name: "quote-rate", Value: "150", Usage: "account-currency value of one quote unit, for crosses"},
			cli.StringFlag{Name: "risk", Value: "1.0"},
			cli.IntFlag{Name: "leverage", Value: 25},
		},
	}
	tokenHashCMD = cli.Command{
		Name:      "tokenhash",
		Usage:     "hash an admin API token for ADMIN_TOKEN_HASH",
		ArgsUsage: "<token>",
		Action:    tokenHashAction,
	}
)

func runAction(_ *cli.Context) error {
	logrus.WithField("cmd", "run").Info("Starting scheduler CMD")

	e := &executor.Executor{}
	if err := e.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func positionsAction(_ *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	broker, _, err := connectors.NewBroker(connectors.GetConfig(), nil)
	if err != nil {
		return err
	}
	positions, err := broker.GetPositions(ctx, "")
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	for _, p := range positions {
		fmt.Printf("%s %s %s %s @%s pnl %s\n", p.PositionID, p.Symbol, p.Side, p.Size, p.Price, p.UnrealizedPnL)
	}
	return nil
}

func closeAllAction(_ *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := database.InitMainDB(); err != nil {
		return err
	}
	app, err := executors.Build()
	if err != nil {
		return err
	}
	summary, err := app.Runner.Kill(ctx)
	fmt.Println(summary)
	return err
}

func calendar() (*tradingtime.Calendar, error) {
	return tradingtime.NewCalendarFromConfig(tradingtime.GetConfig())
}

func scheduleAction(c *cli.Context) error {
	cal, err := calendar()
	if err != nil {
		return err
	}
	path := c.String("file")
	if path == "" {
		path = executors.GetConfig().ScheduleCSV
	}
	sched, err := schedule.LoadFile(path, cal)
	if err != nil {
		return err
	}
	fmt.Println(sched.Describe(time.Now()))
	for _, re := range sched.Rejected() {
		fmt.Println("rejected:", re.Error())
	}
	return nil
}

func reportAction(c *cli.Context) error {
	cal, err := calendar()
	if err != nil {
		return err
	}
	date := c.String("date")
	if date == "" {
		date = cal.DateKey(time.Now())
	}

	if err := database.InitMainDB(); err != nil {
		return err
	}
	var results []model.TradeResult
	if database.Enabled() {
		results, err = repository.NewTradeResultRepository().FindByTradingDate(context.Background(), date)
	} else {
		var csv *report.DailyCSV
		if csv, err = report.NewDailyCSV(report.GetConfig().ResultsDir, cal.Location); err == nil {
			results, err = csv.ReadDay(date)
		}
	}
	if err != nil {
		return err
	}
	fmt.Println(report.Compute(results).Format("Performance " + date))
	return nil
}

func testLotAction(c *cli.Context) error {
	parse := func(name string) (decimal.Decimal, error) {
		v, err := decimal.NewFromString(c.String(name))
		if err != nil {
			return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
		}
		return v, nil
	}
	in := risk.LotInput{Symbol: c.String("symbol"), Leverage: c.Int("leverage"), Currency: c.String("currency")}
	var err error
	if in.Balance, err = parse("balance"); err != nil {
		return err
	}
	if in.Rate, err = parse("rate"); err != nil {
		return err
	}
	if in.QuoteRate, err = parse("quote-rate"); err != nil {
		return err
	}
	if in.RiskRatio, err = parse("risk"); err != nil {
		return err
	}

	lot, err := risk.AutoLot(in)
	if err != nil {
		return err
	}
	fmt.Printf("%s lot: %s (balance %s, risk %s, leverage %d, rate %s)\n",
		in.Symbol, lot, in.Balance, in.RiskRatio, in.Leverage, in.Rate)
	return nil
}

func tokenHashAction(c *cli.Context) error {
	hash, err := security.HashToken(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
