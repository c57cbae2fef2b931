package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mfmahdi/dcabot/internal/config"
	"github.com/mfmahdi/dcabot/internal/exchange"
	"github.com/mfmahdi/dcabot/internal/notifier"
	"github.com/mfmahdi/dcabot/internal/order"
	"github.com/mfmahdi/dcabot/internal/trader"
	"github.com/mfmahdi/dcabot/internal/utils"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitTimedOut  = 2
	exitCancelled = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	log, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer log.Sync()

	req, err := order.NewRequest(cfg.Market, cfg.Side, cfg.Amount, cfg.AmountCurrency)
	if err != nil {
		log.Errorf("Main | %v", err)
		return exitFailure
	}

	mode := "production"
	if cfg.Sandbox {
		mode = "sandbox"
	}
	log.Infof("Main | Market=%s Side=%s Amount=%s %s Mode=%s Notifier=%s",
		req.Symbol, req.Side, req.Amount, req.AmountCurrency, mode, cfg.Settings.Notifier)

	if !cfg.Sandbox && !cfg.JobMode {
		if !confirm() {
			fmt.Println("Exiting without submitting the order.")
			return exitOK
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := buildNotifier(ctx, cfg)
	if err != nil {
		log.Errorf("Main | Notifier setup failed: %v", err)
		return exitFailure
	}

	ex := exchange.NewBinanceExchange(cfg.Settings.APIKey, cfg.Settings.APISecret, cfg.Sandbox, log)

	t := trader.New(trader.Config{
		PollInterval: cfg.PollInterval,
		WarnAfter:    cfg.WarnAfter,
	}, ex, n, utils.RealClock{}, log)

	result, err := t.Run(ctx, req)
	if err != nil {
		var rejection *exchange.RejectionError
		if errors.As(err, &rejection) {
			fmt.Fprintln(os.Stderr, rejection.Reason)
			return exitFailure
		}
		log.Errorf("Main | Run failed: %v", err)
		return exitFailure
	}

	switch result.Outcome {
	case trader.OutcomeFilled:
		fmt.Printf("%s %s order of %s %s complete @ %s, total fee %s %s\n",
			req.Symbol, req.Side, req.Amount, req.AmountCurrency,
			result.Order.Price, result.TotalFee, result.FeeCurrency)
		return exitOK
	case trader.OutcomeTimedOut:
		return exitTimedOut
	case trader.OutcomeCancelled:
		return exitCancelled
	default:
		return exitFailure
	}
}

func confirm() bool {
	fmt.Print("Production order! Confirm [Y]: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "Y"
}

func buildNotifier(ctx context.Context, cfg config.Config) (notifier.Notifier, error) {
	switch cfg.Settings.Notifier {
	case "", "none":
		return notifier.Nop{}, nil
	case "telegram":
		return notifier.NewTelegramNotifier(cfg.Settings.Telegram.Token, cfg.Settings.Telegram.ChatID), nil
	case "sns":
		return notifier.NewSNSNotifier(ctx,
			cfg.Settings.SNS.Region,
			cfg.Settings.SNS.AccessKeyID,
			cfg.Settings.SNS.SecretAccessKey,
			cfg.Settings.SNS.TopicARN)
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Settings.Notifier)
	}
}
