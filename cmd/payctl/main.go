package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"societypay/backend"
	"societypay/config"
	"societypay/gateway"
	"societypay/history"
	"societypay/logger"
	"societypay/models"
	"societypay/receipt"
	"societypay/services"
	"societypay/services/events"
)

func main() {
	var (
		itemID       = flag.String("item", "", "payable item id (course or payment request)")
		kind         = flag.String("kind", "request", "payable kind: course or request")
		price        = flag.Float64("price", 0, "price in INR (decimal)")
		description  = flag.String("desc", "", "item description")
		token        = flag.String("token", os.Getenv("SESSION_TOKEN"), "session token")
		payerName    = flag.String("payer-name", "", "payer name")
		payerEmail   = flag.String("payer-email", "", "payer email")
		payerContact = flag.String("payer-contact", "", "payer contact in E.164 format")
		export       = flag.String("export", "", "write an .xlsx statement of recorded attempts to this path")
		emailReceipt = flag.Bool("email-receipt", false, "email the receipt PDF to the payer after verification")
	)
	flag.Parse()

	config.LoadConfig()

	if *itemID == "" {
		logger.Fatal("missing -item")
	}

	item := models.PayableItem{
		ID:          *itemID,
		Kind:        models.KindSocietyPaymentRequest,
		Price:       *price,
		Description: *description,
	}
	if *kind == "course" {
		item.Kind = models.KindCourseEnrollment
	}

	client := backend.NewClient(config.AppConfig.BackendBaseURL)

	var checkout gateway.Checkout
	if config.AppConfig.RazorpayKeyID != "" && config.AppConfig.RazorpayKeySecret != "" {
		checkout = gateway.NewRazorpayCheckout(config.AppConfig.RazorpayKeyID, config.AppConfig.RazorpayKeySecret)
	}

	publisher := events.NewPublisher(config.KafkaBrokerList(), config.AppConfig.KafkaTopic)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("Error closing Kafka producer: %v", err)
		}
	}()

	var journal history.Recorder = history.NewMemoryRecorder()
	if config.JournalEnabled() {
		pg, err := history.OpenPostgres(config.GetJournalConnString())
		if err != nil {
			logger.Warn("attempt journal unavailable, falling back to memory: %v", err)
		} else {
			defer pg.Close()
			journal = pg
		}
	}

	// Ctrl-C while the checkout is open cancels the context, which the
	// gateway adapter reports as user dismissal.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator := services.NewCoordinator(client, checkout,
		services.CheckoutSettings{
			Key:         config.AppConfig.RazorpayKeyID,
			Currency:    config.AppConfig.Currency,
			CompanyName: config.AppConfig.CompanyName,
			ThemeColor:  config.AppConfig.ThemeColor,
		},
		services.WithPublisher(publisher),
		services.WithJournal(journal),
		services.WithRefresh(func() {
			pending, err := client.PendingRequests(context.Background(), *token)
			if err != nil {
				logger.Warn("failed to refresh pending payments: %v", err)
				return
			}
			logger.Info("pending payments after settlement: %d", len(pending))
		}),
	)

	order, err := coordinator.CreateOrder(ctx, item, *token)
	if err != nil {
		logger.Fatal("order creation failed: %v", err)
	}
	logger.Info("order %s created for %s, opening checkout", order.OrderID, item.ID)

	payer := gateway.PayerInfo{Name: *payerName, Email: *payerEmail, Contact: *payerContact}
	result, err := coordinator.BeginGatewayFlow(ctx, order, payer, *token)
	if err != nil {
		logger.Fatal("payment flow failed: %v", err)
	}

	switch result.State {
	case models.StateUserCancelled:
		logger.Info("%s", result.Message)
	case models.StateVerified:
		logger.Info("payment verified for %s", item.ID)
		if *emailReceipt && *payerEmail != "" && result.Proof != nil {
			pdf, err := receipt.GeneratePDF(order, item, *result.Proof, *payerName)
			if err != nil {
				logger.Error("receipt generation failed: %v", err)
			} else if err := receipt.Email(*payerEmail, *payerName, pdf); err != nil {
				logger.Error("receipt email failed: %v", err)
			}
		}
	}

	if *export != "" {
		if err := history.ExportStatement(context.Background(), journal, *export); err != nil {
			logger.Error("statement export failed: %v", err)
		} else {
			logger.Info("statement written to %s", *export)
		}
	}
}
