package receipt

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	gomail "gopkg.in/gomail.v2"

	"societypay/config"
	"societypay/logger"
	"societypay/models"
)

// GeneratePDF creates a payment receipt PDF for a verified payment and
// returns the written file name.
func GeneratePDF(order *models.PaymentOrder, item models.PayableItem, proof models.PaymentProof, payerName string) (string, error) {
	receiptNo := uuid.NewString()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, fmt.Sprintf("%s - Payment Receipt", config.AppConfig.CompanyName))
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(40, 10, fmt.Sprintf("Receipt No: %s", receiptNo))
	pdf.Ln(10)
	pdf.Cell(40, 10, fmt.Sprintf("Date: %s", time.Now().Format("02 Jan 2006 15:04")))
	pdf.Ln(10)
	pdf.Cell(40, 10, fmt.Sprintf("Received from: %s", payerName))
	pdf.Ln(10)
	pdf.Cell(40, 10, fmt.Sprintf("Towards: %s", item.Description))
	pdf.Ln(10)
	pdf.Cell(40, 10, fmt.Sprintf("Amount: %s %.2f", order.Currency, float64(order.AmountMinorUnits)/100))
	pdf.Ln(10)
	pdf.Cell(40, 10, fmt.Sprintf("Order ID: %s", order.OrderID))
	pdf.Ln(10)
	pdf.Cell(40, 10, fmt.Sprintf("Payment ID: %s", proof.GatewayPaymentID))
	pdf.Ln(12)
	pdf.Cell(40, 10, "Thank you for your payment.")

	fileName := fmt.Sprintf("receipt_%s.pdf", order.OrderID)
	if err := pdf.OutputFileAndClose(fileName); err != nil {
		return "", fmt.Errorf("error generating receipt PDF: %w", err)
	}

	return fileName, nil
}

// Email sends the receipt PDF to the payer via SMTP.
func Email(to, payerName, attachment string) error {
	logger.Info("Sending receipt email - Recipient: %s", to)

	from := config.AppConfig.EmailFrom
	if from == "" {
		from = config.AppConfig.SMTPUser
	}
	if from == "" {
		return fmt.Errorf("email sender not configured (set EMAIL_FROM or SMTP_USER)")
	}

	if config.AppConfig.SMTPUser == "" || config.AppConfig.SMTPPass == "" {
		return fmt.Errorf("smtp credentials not configured (set SMTP_USER and SMTP_PASS)")
	}

	port := 587
	if v, err := strconv.Atoi(config.AppConfig.SMTPPort); err == nil {
		port = v
	}

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("%s - Payment Receipt", config.AppConfig.CompanyName))
	m.SetBody("text/html", fmt.Sprintf(
		"Dear %s,<br><br>Your payment has been verified. Your receipt is attached.<br><br>%s",
		payerName, config.AppConfig.CompanyName))
	m.Attach(attachment)

	d := gomail.NewDialer(config.AppConfig.SMTPHost, port, config.AppConfig.SMTPUser, config.AppConfig.SMTPPass)

	if err := d.DialAndSend(m); err != nil {
		logger.Error("Failed to send receipt email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info("Receipt email sent to: %s", to)
	return nil
}
